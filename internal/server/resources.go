package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leadboard/internal/resource"
	"leadboard/internal/security"
	"leadboard/internal/store"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	msgNotFound        = "Not found"
	msgPayloadTooLarge = "Payload too large"
)

// envelope is the {data, error} body of every resource route.
type envelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// HandleList returns the records of a collection. Query parameters:
// limit=<n>, order=<field>[.asc|.desc]; any other parameter is an
// equality filter.
func (s *Server) HandleList(c resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := listQuery(c, r.URL.Query())
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows, err := s.Store.Select(r.Context(), c.Table(), q)
		if err != nil {
			s.respondStoreError(w, r, c, http.StatusBadRequest, err)
			return
		}
		if rows == nil {
			rows = []resource.Record{}
		}
		s.respondJSON(w, http.StatusOK, envelope{Data: rows})
	}
}

// HandleGet returns one record by id. Zero rows is 404; a failed query
// is 400.
func (s *Server) HandleGet(c resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := security.ValidateRecordID(id); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := store.SelectOne(r.Context(), s.Store, c.Table(), id)
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, msgNotFound)
			return
		}
		if err != nil {
			s.respondStoreError(w, r, c, http.StatusBadRequest, err)
			return
		}
		s.respondJSON(w, http.StatusOK, envelope{Data: rec})
	}
}

// HandleCreate inserts the request body as one record.
func (s *Server) HandleCreate(c resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.readPayload(w, r, c)
		if !ok {
			return
		}

		rec, err := s.Store.Insert(r.Context(), c.Table(), p.Fields)
		if err != nil {
			s.respondStoreError(w, r, c, http.StatusBadRequest, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, envelope{Data: rec})
	}
}

// HandleUpdate applies the request body as a partial update. The id in
// the path wins over any id in the body.
func (s *Server) HandleUpdate(c resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := security.ValidateRecordID(id); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		p, ok := s.readPayload(w, r, c)
		if !ok {
			return
		}

		rec, err := s.Store.Update(r.Context(), c.Table(), id, p.ForUpdate())
		if err != nil {
			s.respondStoreError(w, r, c, http.StatusBadRequest, err)
			return
		}
		s.respondJSON(w, http.StatusOK, envelope{Data: rec})
	}
}

// HandleDelete removes one record and answers 204 with no body.
func (s *Server) HandleDelete(c resource.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := security.ValidateRecordID(id); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.Store.Delete(r.Context(), c.Table(), id); err != nil {
			s.respondStoreError(w, r, c, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// readPayload reads and validates a create or update body. Absent or
// malformed JSON becomes an empty record. It writes the error response
// itself and reports false when the request is rejected.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request, c resource.Collection) (*resource.Payload, bool) {
	body, tooLarge, err := readBody(r)
	if tooLarge {
		s.respondError(w, http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
		return nil, false
	}
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "collection", c)
		s.respondError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}

	p, err := resource.NewPayload(c, resource.DecodeBody(body))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(p.Unknown) > 0 {
		s.Logger.Debug("Passing through unknown fields", "collection", c, "fields", p.Unknown)
	}
	return p, true
}

// readBody reads at most MaxPayloadBytes and reports whether the body was
// larger.
func readBody(r *http.Request) ([]byte, bool, error) {
	if r.ContentLength > MaxPayloadBytes {
		return nil, true, nil
	}
	if r.Body == nil {
		return nil, false, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		return nil, false, err
	}
	if len(body) > MaxPayloadBytes {
		return nil, true, nil
	}
	return body, false, nil
}

// reservedParams are PostgREST query parameters that are not columns. They
// are refused rather than read as equality filters.
var reservedParams = map[string]bool{
	"select":      true,
	"offset":      true,
	"and":         true,
	"or":          true,
	"not":         true,
	"columns":     true,
	"on_conflict": true,
}

func listQuery(c resource.Collection, params url.Values) (store.Query, error) {
	var q store.Query

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := params.Get(name)
		switch name {
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return q, fmt.Errorf("limit must be a non-negative integer, got '%s'", value)
			}
			q.Limit = n
		case "order":
			field, desc, err := security.ParseOrder(value)
			if err != nil {
				return q, err
			}
			q.Order = []store.Order{{Field: field, Desc: desc}}
		default:
			if reservedParams[name] {
				return q, fmt.Errorf("unsupported query parameter '%s'", name)
			}
			if err := security.ValidateFieldName(name); err != nil {
				return q, err
			}
			q = q.Eq(name, value)
		}
	}

	if len(q.Order) == 0 {
		if field, desc := c.DefaultOrder(); field != "" {
			q.Order = []store.Order{{Field: field, Desc: desc}}
		}
	}
	return q, nil
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, envelope{Error: message})
}

// respondStoreError surfaces a backend failure in the error field. A
// missing record on update or delete is reported as "Not found".
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, c resource.Collection, statusCode int, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, statusCode, msgNotFound)
		return
	}

	s.Logger.Warn("Backend query failed",
		"method", r.Method,
		"collection", c,
		"error", err)
	s.respondJSON(w, statusCode, envelope{Error: store.AsQueryError(err)})
}
