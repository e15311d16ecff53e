package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 50
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: DefaultPerPage,
		Offset:  0,
	}
}

// Normalize clamps page to >= 1 and perPage to 1..MaxPerPage (zero or
// negative becomes DefaultPerPage), and recomputes the offset.
func Normalize(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// FromLimitOffset translates limit/offset inputs to params. The offset is
// kept as given; Page is the page the offset falls in.
func FromLimitOffset(limit, offset int) Params {
	p := Normalize(1, limit)
	if offset > 0 {
		p.Page = offset/p.PerPage + 1
		p.Offset = offset
	}
	return p
}

// Resolve returns the params for a page-based or an offset-based request.
// A positive offset takes precedence over page.
func Resolve(page, perPage, offset int) Params {
	if offset > 0 {
		return FromLimitOffset(perPage, offset)
	}
	return Normalize(page, perPage)
}

// FromRequest extracts pagination parameters from an HTTP request. When
// limit or offset is present they take precedence over page/per_page.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	if q.Has("limit") || q.Has("offset") {
		return FromLimitOffset(atoi(q.Get("limit")), atoi(q.Get("offset")))
	}
	return Normalize(atoi(q.Get("page")), atoi(q.Get("per_page")))
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := total / perPage
	if total%perPage > 0 {
		pages++
	}
	return pages
}
