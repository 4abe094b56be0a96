package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"leadboard/internal/audit"
	"leadboard/internal/security"
	"leadboard/internal/webhook"
)

// proxyResponse is the relayed upstream answer. Exactly one of Data and
// Message is set, depending on whether the upstream body was JSON.
type proxyResponse struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message *string         `json:"message,omitempty"`
}

type proxyError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HandleProxyWebhook validates the target URL of a {targetUrl, data} body
// and forwards data to it as JSON.
func (s *Server) HandleProxyWebhook(w http.ResponseWriter, r *http.Request) {
	body, tooLarge, err := readBody(r)
	if tooLarge {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, proxyError{Error: msgPayloadTooLarge})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusBadRequest, proxyError{Error: "Failed to read request body"})
		return
	}

	rawTarget, data, err := parseProxyRequest(body)
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, proxyError{Error: security.MsgInvalidURL})
		return
	}

	target, err := s.Guard.Check(rawTarget)
	if err != nil {
		s.respondTargetError(w, err)
		return
	}

	start := time.Now()
	res, err := s.Forwarder.Forward(r.Context(), target, data)
	duration := time.Since(start)
	s.recordForward(r, target, res, err, duration)

	if err != nil {
		if security.IsForbidden(err) {
			s.respondTargetError(w, err)
			return
		}
		msg := security.RedactError(err, target.String())
		s.Logger.Error("Webhook forward failed", "host", target.Hostname(), "role", roleOf(r), "error", msg)
		s.respondJSON(w, http.StatusInternalServerError, proxyError{Error: msg})
		return
	}

	s.Logger.Info("webhook_forward",
		"host", target.Hostname(),
		"role", roleOf(r),
		"status", res.StatusCode,
		"duration_ms", duration.Milliseconds())

	s.respondJSON(w, relayStatus(res.StatusCode), relayBody(res))
}

// HandleForwardHistory lists recent forwards from the audit log.
// Query parameters: limit=<n>, host=<hostname>.
func (s *Server) HandleForwardHistory(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Forward history is disabled"})
		return
	}

	limit := audit.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	forwards, err := s.Audit.Recent(r.Context(), r.URL.Query().Get("host"), limit)
	if err != nil {
		s.Logger.Error("Failed to get forward history", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch forward history"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"forwards": forwards})
}

// parseProxyRequest extracts targetUrl and data. An unparseable body or a
// missing targetUrl yields an empty target, which the guard reports as
// missing; a targetUrl that is not a string is an error.
func parseProxyRequest(body []byte) (string, json.RawMessage, error) {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		return "", nil, nil
	}

	raw, ok := req["targetUrl"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", req["data"], nil
	}

	var target string
	if err := json.Unmarshal(raw, &target); err != nil {
		return "", nil, errors.New("targetUrl must be a string")
	}
	return target, req["data"], nil
}

func (s *Server) respondTargetError(w http.ResponseWriter, err error) {
	var te *security.TargetError
	if !errors.As(err, &te) {
		s.respondJSON(w, http.StatusBadRequest, proxyError{Error: err.Error()})
		return
	}

	status := http.StatusBadRequest
	if te.Forbidden {
		status = http.StatusForbidden
		s.Logger.Warn("Webhook target refused", "host", te.Host, "reason", te.Message)
	}
	s.respondJSON(w, status, proxyError{Error: te.Message})
}

// relayStatus mirrors the upstream status, except for statuses that must
// not carry a body.
func relayStatus(code int) int {
	switch {
	case code < 200, code == http.StatusNoContent, code == http.StatusNotModified:
		return http.StatusOK
	}
	return code
}

func relayBody(res *webhook.Result) proxyResponse {
	out := proxyResponse{Success: res.Success(), Status: res.StatusCode}
	if res.JSON {
		out.Data = json.RawMessage(bytes.TrimSpace(res.Body))
		return out
	}
	text := string(res.Body)
	out.Message = &text
	return out
}

func (s *Server) recordForward(r *http.Request, target *url.URL, res *webhook.Result, fwdErr error, duration time.Duration) {
	if s.Audit == nil {
		return
	}

	entry := &audit.Forward{
		TargetHost: target.Hostname(),
		TargetURL:  security.RedactURL(target.String()),
		DurationMS: duration.Milliseconds(),
	}
	if res != nil {
		code := res.StatusCode
		entry.StatusCode = &code
		entry.Success = res.Success()
	}
	if fwdErr != nil {
		msg := security.RedactError(fwdErr, target.String())
		entry.ErrorMessage = &msg
	}

	if _, err := s.Audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		s.Logger.Error("Failed to record forward", "error", err, "host", entry.TargetHost)
	}
}
