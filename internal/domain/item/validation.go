package item

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var fieldValidate = validator.New(validator.WithRequiredStructEnabled())

// ValidateFields checks that title, content and detail are present once
// surrounding whitespace is ignored. The stored text is left untouched.
func ValidateFields(f Fields) error {
	trimmed := Fields{
		Title:   strings.TrimSpace(f.Title),
		Content: strings.TrimSpace(f.Content),
		Detail:  strings.TrimSpace(f.Detail),
	}
	if err := fieldValidate.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			names := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				names = append(names, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(names, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}

// NormalizeNewlines rewrites CRLF and lone CR line breaks to LF in every
// text field. Items are stored in this form so that a table export, which
// CSV readers decode with LF breaks, imports back unchanged.
func NormalizeNewlines(f Fields) Fields {
	return Fields{
		Title:   normalizeNewlines(f.Title),
		Content: normalizeNewlines(f.Content),
		Detail:  normalizeNewlines(f.Detail),
	}
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// ValidateNumber checks 1 <= n <= MaxNumber.
func ValidateNumber(n int) error {
	if n < 1 || n > MaxNumber {
		return fmt.Errorf("%w: %d", ErrInvalidNumber, n)
	}
	return nil
}
