package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sedirimou/Gameva-sub003/pkg/slug"
)

// ErrInvalidDocument is returned when a product row cannot be projected into
// a searchable document.
var ErrInvalidDocument = errors.New("invalid document")

// SearchableDocument is the flattened projection of a product stored in the
// search index. Prices are rounded to cents.
type SearchableDocument struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Slug              string   `json:"slug"`
	Platform          string   `json:"platform"`
	Price             float64  `json:"price"`
	SalePrice         *float64 `json:"salePrice,omitempty"`
	FinalPrice        float64  `json:"finalPrice"`
	Genres            []string `json:"genres"`
	Description       string   `json:"description,omitempty"`
	CoverImageURL     string   `json:"coverImageUrl,omitempty"`
	CoverThumbnailURL string   `json:"coverThumbnailUrl,omitempty"`
	Type              string   `json:"type,omitempty"`
	AgeRating         string   `json:"ageRating,omitempty"`
	ReleaseDate       string   `json:"releaseDate,omitempty"`
	CreatedAt         int64    `json:"createdAt"`
}

// Product is a row of the relational products table as read by the search
// service. Prices are kept as the decimal text the database returns.
type Product struct {
	ID             string
	Name           string
	Slug           string
	Platform       string
	Price          string
	SalePrice      *string
	Genres         []string
	Description    string
	CoverURL       string
	CoverThumbnail string
	Type           string
	AgeRating      string
	ReleaseDate    string
	CreatedAt      time.Time
	IsActive       bool
}

// DocumentFromProduct maps a product row to its searchable document. The
// mapping is deterministic: the same row always yields an identical document.
func DocumentFromProduct(p *Product) (SearchableDocument, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return SearchableDocument{}, fmt.Errorf("%w: empty id", ErrInvalidDocument)
	}

	price, err := ParsePrice(p.Price)
	if err != nil {
		return SearchableDocument{}, fmt.Errorf("%w: product %s price: %w", ErrInvalidDocument, id, err)
	}

	doc := SearchableDocument{
		ID:                id,
		Name:              strings.TrimSpace(p.Name),
		Slug:              strings.TrimSpace(p.Slug),
		Platform:          strings.TrimSpace(p.Platform),
		Price:             price,
		FinalPrice:        price,
		Genres:            cleanGenres(p.Genres),
		Description:       strings.TrimSpace(p.Description),
		CoverImageURL:     p.CoverURL,
		CoverThumbnailURL: p.CoverThumbnail,
		Type:              strings.TrimSpace(p.Type),
		AgeRating:         strings.TrimSpace(p.AgeRating),
		ReleaseDate:       strings.TrimSpace(p.ReleaseDate),
		CreatedAt:         p.CreatedAt.Unix(),
	}
	if doc.Slug == "" {
		doc.Slug = slug.Generate(doc.Name)
	}

	if p.SalePrice != nil && strings.TrimSpace(*p.SalePrice) != "" {
		sale, err := ParsePrice(*p.SalePrice)
		if err != nil {
			return SearchableDocument{}, fmt.Errorf("%w: product %s sale price: %w", ErrInvalidDocument, id, err)
		}
		doc.SalePrice = &sale
		doc.FinalPrice = sale
	}

	return doc, nil
}

// ParsePrice parses a decimal price and rounds it to cents. An empty string
// is a zero price.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return math.Round(v*100) / 100, nil
}

func cleanGenres(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, g := range in {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// FacetValues returns the document's values for a facet field.
func (d *SearchableDocument) FacetValues(field string) []string {
	switch field {
	case FieldPlatform:
		return nonEmpty(d.Platform)
	case FieldGenres:
		return d.Genres
	case FieldType:
		return nonEmpty(d.Type)
	case FieldAgeRating:
		return nonEmpty(d.AgeRating)
	default:
		return nil
	}
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
