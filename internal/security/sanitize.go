package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxFieldNameLength matches the Postgres identifier limit.
	MaxFieldNameLength = 63
	MaxRecordIDLength  = 128
)

var (
	// Safe patterns for validation
	fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	orderPattern     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.(asc|desc))?$`)
)

// ValidateFieldName ensures a record field name is safe to use as a column
// name in generated SQL and in PostgREST query strings.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if len(name) > MaxFieldNameLength {
		return fmt.Errorf("field name '%s' is too long (maximum %d characters)", name, MaxFieldNameLength)
	}
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("field name '%s' contains invalid characters (only a-z, A-Z, 0-9, _ allowed)", name)
	}
	return nil
}

// ValidateRecordID ensures an identity taken from the URL path is usable as a
// query value. Identities are opaque, so only emptiness, length and control
// characters are checked.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(id) > MaxRecordIDLength {
		return fmt.Errorf("id too long (maximum %d characters)", MaxRecordIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("id contains control characters")
		}
	}
	return nil
}

// ParseOrder splits an order expression like "position.desc" into its field
// and direction. A bare field sorts ascending.
func ParseOrder(expr string) (field string, desc bool, err error) {
	if !orderPattern.MatchString(expr) {
		return "", false, fmt.Errorf("invalid order '%s' (expected <field>[.asc|.desc])", expr)
	}
	field, dir, _ := strings.Cut(expr, ".")
	if err := ValidateFieldName(field); err != nil {
		return "", false, err
	}
	return field, dir == "desc", nil
}

// SanitizePath ensures a path doesn't contain traversal attempts and
// returns it cleaned and absolute.
func SanitizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	return filepath.Clean(abs), nil
}

// RedactURL drops the userinfo, query and fragment of a URL, where
// automation providers put their tokens. Unparseable input is returned
// with everything after the first '?' or '#' removed.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}

// RedactError rewrites every occurrence of rawURL in err's message to its
// redacted form.
func RedactError(err error, rawURL string) string {
	msg := err.Error()
	if rawURL == "" {
		return msg
	}
	return strings.ReplaceAll(msg, rawURL, RedactURL(rawURL))
}
