package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultAllowedDomains are the automation and webhook providers a payload may
// be forwarded to. Entries match as substrings of the target hostname.
var DefaultAllowedDomains = []string{
	"zapier.com",
	"make.com",
	"integromat.com",
	"n8n.cloud",
	"n8n.io",
	"pipedream.net",
	"ifttt.com",
	"webhook.site",
}

// Rejection messages returned to callers.
const (
	MsgMissingTarget    = "Missing targetUrl"
	MsgInvalidURL       = "Invalid URL format"
	MsgDomainNotAllowed = "Domain not allowed"
	MsgInternalAddress  = "Internal addresses are not allowed"
)

// TargetError explains why a target URL was refused. Policy failures are
// Forbidden; malformed input is not.
type TargetError struct {
	Message   string
	Forbidden bool
	Host      string
}

func (e *TargetError) Error() string {
	if e.Host == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Host)
}

// IsForbidden reports whether err is a policy rejection.
func IsForbidden(err error) bool {
	var te *TargetError
	return errors.As(err, &te) && te.Forbidden
}

// TargetGuard decides whether an outbound webhook target may be contacted.
//
// Matching is deliberately textual: an allowlist entry matches when the
// hostname contains it, and the blocklist catches the obvious private and
// loopback spellings only. The blocklist always overrides the allowlist.
type TargetGuard struct {
	allowed      []string
	extraBlocked []string
}

// NewTargetGuard creates a guard. An empty allowlist falls back to
// DefaultAllowedDomains. extraBlocked entries are matched as hostname
// substrings in addition to the built-in private address rules.
func NewTargetGuard(allowed, extraBlocked []string) *TargetGuard {
	if len(allowed) == 0 {
		allowed = DefaultAllowedDomains
	}
	return &TargetGuard{
		allowed:      normalizeEntries(allowed),
		extraBlocked: normalizeEntries(extraBlocked),
	}
}

// AllowedDomains returns the active allowlist.
func (g *TargetGuard) AllowedDomains() []string {
	out := make([]string, len(g.allowed))
	copy(out, g.allowed)
	return out
}

// Check validates rawURL in order: presence, format, allowlist, blocklist.
// It returns the parsed URL when the target may be contacted.
func (g *TargetGuard) Check(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, &TargetError{Message: MsgMissingTarget}
	}

	u, err := ParseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := g.CheckHost(u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckHost applies the allowlist and blocklist to a bare hostname.
func (g *TargetGuard) CheckHost(host string) error {
	host = strings.ToLower(host)
	allowed := g.isAllowed(host)
	if g.isBlocked(host) {
		return &TargetError{Message: MsgInternalAddress, Forbidden: true, Host: host}
	}
	if !allowed {
		return &TargetError{Message: MsgDomainNotAllowed, Forbidden: true, Host: host}
	}
	return nil
}

// ParseTargetURL accepts only absolute http(s) URLs with a host.
func ParseTargetURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &TargetError{Message: MsgInvalidURL}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &TargetError{Message: MsgInvalidURL}
	}
	if u.Hostname() == "" {
		return nil, &TargetError{Message: MsgInvalidURL}
	}
	return u, nil
}

func (g *TargetGuard) isAllowed(host string) bool {
	for _, domain := range g.allowed {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

func (g *TargetGuard) isBlocked(host string) bool {
	if isPrivateHost(host) {
		return true
	}
	for _, entry := range g.extraBlocked {
		if strings.Contains(host, entry) {
			return true
		}
	}
	return false
}

// isPrivateHost matches loopback and private network hostnames by spelling.
func isPrivateHost(host string) bool {
	return host == "localhost" ||
		host == "127.0.0.1" ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "10.") ||
		strings.Contains(host, ".internal")
}

func normalizeEntries(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
