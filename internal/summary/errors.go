package summary

import (
	"errors"

	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/querysql"
	"github.com/roach88/mdstats/internal/reference"
)

// IsClientError reports whether err was caused by the request itself
// rather than by the backend: a malformed fragment, an unknown or
// malformed reference field, a field name the backend cannot address, or
// an operator the backend cannot run.
func IsClientError(err error) bool {
	var (
		parseErr       *querybuild.ParseError
		unknownErr     *reference.UnknownReferenceError
		malformedErr   *reference.MalformedFieldError
		unsupportedErr *querysql.UnsupportedOperatorError
		fieldErr       *querysql.InvalidFieldError
	)
	return errors.As(err, &parseErr) ||
		errors.As(err, &unknownErr) ||
		errors.As(err, &malformedErr) ||
		errors.As(err, &unsupportedErr) ||
		errors.As(err, &fieldErr)
}
