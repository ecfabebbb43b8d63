package extractors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/fetcher"
)

// Extraction failure kinds. Match with errors.Is.
var (
	ErrInvalidURLShape     = errors.New("invalid url shape")
	ErrContentNotFound     = errors.New("content not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNoStrategy          = errors.New("no extraction strategy for platform")
)

// ExtractionError is returned by every strategy.
type ExtractionError struct {
	Platform models.Platform
	Kind     error
	Cause    error
}

func (e *ExtractionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Platform, e.Kind, e.Cause)
}

func (e *ExtractionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// KindName is the snake_case tag of the failure kind.
func (e *ExtractionError) KindName() string {
	switch e.Kind {
	case ErrInvalidURLShape:
		return "invalid_url_shape"
	case ErrContentNotFound:
		return "content_not_found"
	case ErrUpstreamUnavailable:
		return "upstream_unavailable"
	case ErrNoStrategy:
		return "no_strategy"
	}
	return "unknown"
}

func invalidShape(platform models.Platform, format string, args ...any) error {
	return &ExtractionError{Platform: platform, Kind: ErrInvalidURLShape, Cause: fmt.Errorf(format, args...)}
}

func notFound(platform models.Platform, format string, args ...any) error {
	return &ExtractionError{Platform: platform, Kind: ErrContentNotFound, Cause: fmt.Errorf(format, args...)}
}

// upstream classifies a fetch failure. Missing resources count as not found.
func upstream(platform models.Platform, err error) error {
	var statusErr *fetcher.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			return &ExtractionError{Platform: platform, Kind: ErrContentNotFound, Cause: err}
		}
	}
	return &ExtractionError{Platform: platform, Kind: ErrUpstreamUnavailable, Cause: err}
}

// isStatus reports whether err carries the given HTTP status code.
func isStatus(err error, code int) bool {
	var statusErr *fetcher.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
