package parser

import (
	"errors"
	"fmt"
)

// Parse failure sub-reasons. All three are terminal for the affected
// document; they never abort the full assessment on their own.
var (
	ErrCorrupt     = errors.New("document is unreadable or corrupt")
	ErrEncrypted   = errors.New("document is password protected")
	ErrUnsupported = errors.New("unsupported content type")
)

// IsParseFailure reports whether err is any of the parse failure sub-reasons.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrCorrupt) ||
		errors.Is(err, ErrEncrypted) ||
		errors.Is(err, ErrUnsupported)
}

func unsupportedError(contentType string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, contentType)
}
