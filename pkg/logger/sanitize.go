package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	// Mask username: keep first char
	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD
	domainParts := strings.Split(domain, ".")
	for i := 0; i < len(domainParts)-1; i++ {
		domainParts[i] = strings.Repeat("*", len(domainParts[i]))
	}

	return username + "@" + strings.Join(domainParts, ".")
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password", "token", "secret", "api_key", "apikey", "email", "auth", "jti", "session",
}

// SanitizeQueryString reports whether a raw query string mentions a
// sensitive parameter and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

// RedactPath hides path segments that follow a sensitive route component,
// such as the token in /v1/blacklist/{token}.
func RedactPath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		switch segments[i-1] {
		case "blacklist", "sessions":
			if segments[i] != "" && segments[i] != "validate" {
				segments[i] = "[REDACTED]"
			}
		}
	}
	return strings.Join(segments, "/")
}
