// Package server implements the leadboard HTTP API.
//
// This package provides:
//   - CRUD routes for leads, kanban columns and kanban items, each a single
//     store operation answered as {data, error}
//   - The webhook proxy, which forwards JSON payloads to allowlisted
//     automation providers after SSRF checks on the target URL
//   - Health and service info endpoints
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/store: Backend queries (PostgREST, Postgres or SQLite)
//   - internal/auth: API key gate for non-public routes
//   - internal/webhook: Outbound forwarding
//   - internal/audit: SQLite log of forwards
//
// Security features:
//   - Target URL allowlist and private host blocklist, re-checked on redirects
//   - Field name validation before names reach generated SQL
//   - Payload size limits (1MB max)
//   - Optional per-IP rate limiting (global and per-proxy)
package server
