package sei

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies upstream failures so the HTTP layer can map them to a
// caller-facing status without inspecting messages.
type Kind string

const (
	// KindAuth covers 401/403 from the upstream: bad or expired token.
	KindAuth Kind = "authentication_error"

	// KindValidation covers 422: semantically invalid input such as an
	// unknown process number.
	KindValidation Kind = "validation_error"

	// KindUpstream covers every other non-2xx upstream response.
	KindUpstream Kind = "external_service_error"

	// KindTransport covers connect failures and timeouts after the retry
	// budget is spent.
	KindTransport Kind = "connection_error"

	// KindUnavailable is reported while the circuit breaker is open.
	KindUnavailable Kind = "service_unavailable"
)

// APIError is the structured error for any upstream call that did not
// succeed.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	err        error
}

func (apiErr *APIError) Error() string {
	if apiErr.StatusCode != 0 {
		return fmt.Sprintf("sei: %s (HTTP %d): %s", apiErr.Kind, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Sprintf("sei: %s: %s", apiErr.Kind, apiErr.Message)
}

func (apiErr *APIError) Unwrap() error { return apiErr.err }

// KindOf extracts the error kind, defaulting to KindUpstream for errors that
// did not originate at the client boundary.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUpstream
}

// upstreamMessage pulls a human-readable message out of an upstream error
// body when there is one.
func upstreamMessage(body []byte, fallback string) string {
	var decoded struct {
		Message  string `json:"Message"`
		Mensagem string `json:"Mensagem"`
		Detail   string `json:"detail"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		switch {
		case decoded.Mensagem != "":
			return decoded.Mensagem
		case decoded.Message != "":
			return decoded.Message
		case decoded.Detail != "":
			return decoded.Detail
		}
	}
	return fallback
}

// statusError maps a non-2xx upstream response to an APIError.
func statusError(statusCode int, body []byte, fallback string) *APIError {
	message := upstreamMessage(body, fallback)
	switch {
	case statusCode == 401 || statusCode == 403:
		return &APIError{Kind: KindAuth, StatusCode: statusCode, Message: message}
	case statusCode == 422:
		return &APIError{Kind: KindValidation, StatusCode: statusCode, Message: message}
	default:
		return &APIError{Kind: KindUpstream, StatusCode: statusCode, Message: message}
	}
}
