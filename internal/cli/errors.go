package cli

import (
	"errors"

	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/querysql"
	"github.com/roach88/mdstats/internal/reference"
)

// queryErrorCode maps a query error to its CLI error code and exit code.
// Errors caused by the query itself exit with ExitFailure; anything else
// is a command error.
func queryErrorCode(err error) (string, int) {
	var (
		parseErr       *querybuild.ParseError
		unknownErr     *reference.UnknownReferenceError
		malformedErr   *reference.MalformedFieldError
		unsupportedErr *querysql.UnsupportedOperatorError
		fieldErr       *querysql.InvalidFieldError
	)
	switch {
	case errors.As(err, &parseErr):
		return ErrCodeParse, ExitFailure
	case errors.As(err, &unknownErr):
		return ErrCodeUnknownRef, ExitFailure
	case errors.As(err, &malformedErr):
		return ErrCodeMalformedRef, ExitFailure
	case errors.As(err, &unsupportedErr):
		return ErrCodeUnsupported, ExitFailure
	case errors.As(err, &fieldErr):
		return ErrCodeInvalidField, ExitFailure
	default:
		return ErrCodeStore, ExitCommandError
	}
}

// reportError writes err through the formatter and returns the ExitError
// the command should fail with.
func reportError(f *OutputFormatter, code string, exit int, message string, err error) error {
	_ = f.Error(code, message+": "+err.Error(), nil)
	return WrapExitError(exit, message, err)
}
