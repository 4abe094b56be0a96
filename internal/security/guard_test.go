package security

import (
	"errors"
	"testing"
)

func TestTargetGuard_Check(t *testing.T) {
	guard := NewTargetGuard(nil, nil)

	tests := []struct {
		name          string
		url           string
		wantMessage   string
		wantForbidden bool
	}{
		// Allowed targets
		{"zapier hook", "https://hooks.zapier.com/abc", "", false},
		{"make hook", "https://hook.eu1.make.com/xyz", "", false},
		{"n8n cloud", "https://acme.app.n8n.cloud/webhook/123", "", false},
		{"http allowed", "http://hooks.zapier.com/abc", "", false},

		// Missing and malformed
		{"empty", "", MsgMissingTarget, false},
		{"whitespace", "   ", MsgMissingTarget, false},
		{"not a url", "not-a-url", MsgInvalidURL, false},
		{"relative path", "/hooks/abc", MsgInvalidURL, false},
		{"ftp scheme", "ftp://hooks.zapier.com/abc", MsgInvalidURL, false},
		{"no host", "https:///path", MsgInvalidURL, false},

		// Allowlist
		{"unknown domain", "https://example.com/hook", MsgDomainNotAllowed, true},

		// Blocklist, with or without an allowlist match
		{"loopback ip", "http://127.0.0.1/x", MsgInternalAddress, true},
		{"localhost", "http://localhost:8080/x", MsgInternalAddress, true},
		{"private 192.168", "http://192.168.1.10/hook", MsgInternalAddress, true},
		{"private 10.x", "http://10.0.0.5/hook", MsgInternalAddress, true},
		{"internal suffix", "https://zapier.com.internal/hook", MsgInternalAddress, true},
		{"allowlisted internal", "https://hooks.zapier.com.corp.internal/x", MsgInternalAddress, true},
		{"uppercase localhost", "http://LOCALHOST/x", MsgInternalAddress, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := guard.Check(tt.url)
			if tt.wantMessage == "" {
				if err != nil {
					t.Fatalf("Check(%q) unexpected error: %v", tt.url, err)
				}
				if u == nil {
					t.Fatalf("Check(%q) returned nil URL", tt.url)
				}
				return
			}

			var te *TargetError
			if !errors.As(err, &te) {
				t.Fatalf("Check(%q) error = %v, want *TargetError", tt.url, err)
			}
			if te.Message != tt.wantMessage {
				t.Errorf("Check(%q) message = %q, want %q", tt.url, te.Message, tt.wantMessage)
			}
			if IsForbidden(err) != tt.wantForbidden {
				t.Errorf("IsForbidden(%q) = %v, want %v", tt.url, IsForbidden(err), tt.wantForbidden)
			}
		})
	}
}

func TestTargetGuard_SubstringMatching(t *testing.T) {
	// Substring containment is the documented matching rule, weaknesses included.
	guard := NewTargetGuard([]string{"zapier.com"}, nil)

	if _, err := guard.Check("https://zapier.com.attacker.net/x"); err != nil {
		t.Errorf("Expected substring match to be allowed, got %v", err)
	}
	if _, err := guard.Check("https://hooks.slack.com/x"); err == nil {
		t.Error("Expected non-matching domain to be rejected")
	}
}

func TestTargetGuard_CustomLists(t *testing.T) {
	guard := NewTargetGuard([]string{" Example.ORG ", ""}, []string{"staging."})

	if got := guard.AllowedDomains(); len(got) != 1 || got[0] != "example.org" {
		t.Errorf("AllowedDomains() = %v, want [example.org]", got)
	}

	if _, err := guard.Check("https://api.example.org/hook"); err != nil {
		t.Errorf("Expected custom allowlist entry to match, got %v", err)
	}

	_, err := guard.Check("https://staging.example.org/hook")
	var te *TargetError
	if !errors.As(err, &te) || te.Message != MsgInternalAddress {
		t.Errorf("Expected extra blocklist entry to reject, got %v", err)
	}

	if _, err := guard.Check("https://hooks.zapier.com/abc"); err == nil {
		t.Error("Expected defaults to be replaced by a custom allowlist")
	}
}

func TestTargetGuard_CheckHost(t *testing.T) {
	guard := NewTargetGuard(nil, nil)

	if err := guard.CheckHost("hooks.zapier.com"); err != nil {
		t.Errorf("CheckHost() unexpected error: %v", err)
	}
	if err := guard.CheckHost("127.0.0.1"); !IsForbidden(err) {
		t.Errorf("CheckHost(127.0.0.1) = %v, want forbidden", err)
	}
}
