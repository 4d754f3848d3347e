package utils

import (
	"strings"
)

// ExtractEmailAddress pulls the bare address out of "Name <user@domain>" forms.
func ExtractEmailAddress(value string) string {
	value = strings.TrimSpace(value)

	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		startIdx := strings.LastIndex(value, "<") + 1
		endIdx := strings.LastIndex(value, ">")
		if startIdx > 0 && endIdx > startIdx {
			value = value[startIdx:endIdx]
		}
	}

	return strings.TrimSpace(value)
}

func NormalizeEmailAddress(value string) string {
	return strings.ToLower(ExtractEmailAddress(value))
}

func ExtractDomainFromEmail(email string) string {
	email = ExtractEmailAddress(email)
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}
