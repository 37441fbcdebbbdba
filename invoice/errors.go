package invoice

import "fmt"

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invoicer: validation failed for %s: %s", e.Field, e.Message)
}
