package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// formatValidationErrors renders validator failures as "field: rule" pairs.
func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid input (" + strings.Join(parts, ", ") + ")"
}

// extractJSON returns the first balanced JSON object or array in s. Models
// sometimes wrap JSON answers in prose or code fences.
func extractJSON(s string) string {
	for i, ch := range s {
		if ch != '{' && ch != '[' {
			continue
		}
		closing := byte('}')
		if ch == '[' {
			closing = ']'
		}
		depth := 0
		inString := false
		for j := i; j < len(s); j++ {
			switch {
			case s[j] == '\\' && inString:
				j++
			case s[j] == '"':
				inString = !inString
			case inString:
			case s[j] == byte(ch):
				depth++
			case s[j] == closing:
				depth--
				if depth == 0 {
					return s[i : j+1]
				}
			}
		}
	}
	return ""
}
