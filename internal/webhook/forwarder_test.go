package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"leadboard/internal/security"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestForward_PostsJSON(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	}))
	defer srv.Close()

	f := NewForwarder(nil)
	res, err := f.Forward(context.Background(), mustParse(t, srv.URL+"/hooks/abc"), json.RawMessage(`{"lead":"Ana"}`))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	r := <-received
	gotMethod, gotType, gotBody := r.Method, r.Header.Get("Content-Type"), <-bodies
	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST, got %s", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("Expected JSON content type, got %s", gotType)
	}
	if gotBody != `{"lead":"Ana"}` {
		t.Errorf("Payload not forwarded unchanged: %s", gotBody)
	}
	if res.StatusCode != http.StatusAccepted || !res.Success() {
		t.Errorf("Unexpected status %d", res.StatusCode)
	}
	if !res.JSON {
		t.Error("Expected JSON response detected")
	}
}

func TestForward_RelaysErrorStatusAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = io.WriteString(w, "hook disabled")
	}))
	defer srv.Close()

	res, err := NewForwarder(nil).Forward(context.Background(), mustParse(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if res.StatusCode != http.StatusGone || res.Success() {
		t.Errorf("Expected relayed 410, got %d", res.StatusCode)
	}
	if res.JSON || string(res.Body) != "hook disabled" {
		t.Errorf("Expected raw text body, got %q (json=%v)", res.Body, res.JSON)
	}
}

func TestForward_EmptyDataSendsNull(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
	}))
	defer srv.Close()

	if _, err := NewForwarder(nil).Forward(context.Background(), mustParse(t, srv.URL), nil); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if gotBody := <-bodies; gotBody != "null" {
		t.Errorf("Expected null body, got %q", gotBody)
	}
}

func TestForward_CapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	res, err := NewForwarder(nil, WithMaxResponseBytes(10)).Forward(context.Background(), mustParse(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(res.Body) != 10 {
		t.Errorf("Expected body capped at 10 bytes, got %d", len(res.Body))
	}
}

func TestForward_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := mustParse(t, srv.URL)
	srv.Close()

	if _, err := NewForwarder(nil).Forward(context.Background(), target, nil); err == nil {
		t.Error("Expected error for closed server")
	}
}

func TestForward_NetworkFailureRedactsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := mustParse(t, srv.URL+"/hook?token=SECRET123")
	srv.Close()

	_, err := NewForwarder(nil).Forward(context.Background(), target, nil)
	if err == nil {
		t.Fatal("Expected error for closed server")
	}
	if strings.Contains(err.Error(), "SECRET123") {
		t.Errorf("Error leaks the query string: %v", err)
	}
	if !strings.Contains(err.Error(), srv.URL+"/hook") {
		t.Errorf("Error should keep the redacted URL: %v", err)
	}
}

func TestForward_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := NewForwarder(nil, WithTimeout(50*time.Millisecond))
	if _, err := f.Forward(context.Background(), mustParse(t, srv.URL), nil); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestForward_FollowsRedirectWithoutGuard(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer final.Close()

	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusTemporaryRedirect)
	}))
	defer hop.Close()

	res, err := NewForwarder(nil).Forward(context.Background(), mustParse(t, hop.URL), nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 after redirect, got %d", res.StatusCode)
	}
}

func TestForward_RefusesRedirectToBlockedHost(t *testing.T) {
	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost:9/admin", http.StatusFound)
	}))
	defer hop.Close()

	f := NewForwarder(security.NewTargetGuard(nil, nil))
	_, err := f.Forward(context.Background(), mustParse(t, hop.URL), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Expected redirect to be refused")
	}
	if !security.IsForbidden(err) {
		t.Errorf("Expected forbidden target error, got %v", err)
	}
	if !strings.Contains(err.Error(), security.MsgInternalAddress) {
		t.Errorf("Expected internal address message, got %v", err)
	}
}

func TestForward_RefusesRedirectOutsideAllowlist(t *testing.T) {
	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://attacker.example/collect", http.StatusFound)
	}))
	defer hop.Close()

	f := NewForwarder(security.NewTargetGuard(nil, nil))
	_, err := f.Forward(context.Background(), mustParse(t, hop.URL), nil)
	if err == nil || !strings.Contains(err.Error(), security.MsgDomainNotAllowed) {
		t.Errorf("Expected domain not allowed, got %v", err)
	}
}
