package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/sedirimou/Gameva-sub003/pkg/errors"
)

// errorEnvelope matches the failure body written by httputil.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and returns an
// AppError carrying the server's code and message when the body is a
// standard error envelope.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("status %d (read body: %w)", resp.StatusCode, err)
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) != nil || env.Error == nil {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	msg := env.Error.Message
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(msg, nil)
	default:
		return &apperrors.AppError{Code: env.Error.Code, Message: msg, Status: resp.StatusCode}
	}
}
