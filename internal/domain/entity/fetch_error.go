package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a feed fetch failure.
type ErrorType string

const (
	ErrTypeNotFound    ErrorType = "not_found"
	ErrTypeGone        ErrorType = "gone"
	ErrTypeDNS         ErrorType = "dns_not_found"
	ErrTypeForbidden   ErrorType = "forbidden"
	ErrTypeRateLimited ErrorType = "rate_limited"
	ErrTypeUpstream    ErrorType = "upstream_failure"
	ErrTypeTimeout     ErrorType = "timeout"
	ErrTypeTLS         ErrorType = "tls"
	ErrTypeNetwork     ErrorType = "network"
	ErrTypeParse       ErrorType = "parse_error"
	ErrTypeUnknown     ErrorType = "unknown"
)

// IsPermanent reports whether the error type suggests the source moved or
// disappeared.
func (t ErrorType) IsPermanent() bool {
	return t == ErrTypeNotFound || t == ErrTypeGone || t == ErrTypeDNS
}

// FetchError is a classified feed fetch failure reported by the host crawler.
type FetchError struct {
	Type       ErrorType
	StatusCode int
	URL        string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("feed fetch %s: HTTP %d for %s", e.Type, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("feed fetch %s: %v for %s", e.Type, e.Cause, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ClassifyHTTPStatus maps an HTTP status code to an ErrorType.
func ClassifyHTTPStatus(status int) ErrorType {
	switch {
	case status == 404:
		return ErrTypeNotFound
	case status == 410:
		return ErrTypeGone
	case status == 401 || status == 403:
		return ErrTypeForbidden
	case status == 429:
		return ErrTypeRateLimited
	case status >= 500 && status <= 599:
		return ErrTypeUpstream
	default:
		return ErrTypeUnknown
	}
}

// ClassifyError returns the ErrorType of err. A *FetchError keeps its own
// type; anything else is classified from its message.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrTypeUnknown
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Type != "" {
		return fe.Type
	}
	return ClassifyErrorMessage(err.Error())
}

// ClassifyErrorMessage classifies free-form error text. It is used on
// persisted error messages, so it only relies on substrings.
func ClassifyErrorMessage(msg string) ErrorType {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return ErrTypeUnknown
	case strings.Contains(m, "no such host"), strings.Contains(m, "enotfound"),
		strings.Contains(m, "dns"):
		return ErrTypeDNS
	case strings.Contains(m, "410"), strings.Contains(m, "gone"):
		return ErrTypeGone
	case strings.Contains(m, "404"), strings.Contains(m, "not found"):
		return ErrTypeNotFound
	case strings.Contains(m, "403"), strings.Contains(m, "401"), strings.Contains(m, "forbidden"),
		strings.Contains(m, "unauthorized"):
		return ErrTypeForbidden
	case strings.Contains(m, "429"), strings.Contains(m, "rate limit"), strings.Contains(m, "too many requests"):
		return ErrTypeRateLimited
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"), strings.Contains(m, "timed out"):
		return ErrTypeTimeout
	case strings.Contains(m, "certificate"), strings.Contains(m, "tls"), strings.Contains(m, "x509"),
		strings.Contains(m, "ssl"):
		return ErrTypeTLS
	case strings.Contains(m, "parse"), strings.Contains(m, "xml"), strings.Contains(m, "invalid feed"),
		strings.Contains(m, "failed to detect feed type"):
		return ErrTypeParse
	case strings.Contains(m, "connection refused"), strings.Contains(m, "connection reset"),
		strings.Contains(m, "network is unreachable"):
		return ErrTypeNetwork
	case strings.Contains(m, "500"), strings.Contains(m, "502"), strings.Contains(m, "503"),
		strings.Contains(m, "504"):
		return ErrTypeUpstream
	default:
		return ErrTypeUnknown
	}
}
