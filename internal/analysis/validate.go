package analysis

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/settings"
)

// ValidateText checks the length of text and returns its sanitized form:
// control characters other than newline, carriage return and tab are removed,
// surrounding whitespace is trimmed and HTML special characters are escaped.
func ValidateText(text string) (string, error) {
	length := utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" {
		return "", invalidText("text must not be empty")
	}
	if length < settings.MinTextLength {
		return "", invalidText(fmt.Sprintf("text must be at least %d characters", settings.MinTextLength))
	}
	if length > settings.MaxTextLength {
		return "", invalidText(fmt.Sprintf("text must be at most %d characters", settings.MaxTextLength))
	}

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, text)
	cleaned = html.EscapeString(strings.TrimSpace(cleaned))

	if !hasASCIIAlnum(cleaned) {
		return "", invalidText("text must contain alphanumeric characters")
	}
	if utf8.RuneCountInString(cleaned) < settings.MinTextLength {
		return "", invalidText(fmt.Sprintf("text must contain at least %d valid characters", settings.MinTextLength))
	}
	return cleaned, nil
}

func invalidText(detail string) *apierror.Error {
	return apierror.Validation("Invalid text").WithDetail(detail)
}

func hasASCIIAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') {
			return true
		}
	}
	return false
}
