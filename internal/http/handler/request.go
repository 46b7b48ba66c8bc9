package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/middleware"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

// decodeJSON rejects unknown fields and trailing data. It writes the error response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "unexpected data after JSON body", nil)
		return false
	}
	return true
}

func identity(w http.ResponseWriter, r *http.Request) (*service.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity", nil)
	}
	return id, ok
}

// parseEventFilter reads severity, type, user_id, from, to, limit and offset. Timestamps are RFC 3339.
func parseEventFilter(r *http.Request) (repository.SecurityEventFilter, []string) {
	q := r.URL.Query()
	var (
		f    repository.SecurityEventFilter
		errs []string
	)
	if raw := q.Get("severity"); raw != "" {
		sev, ok := domain.ParseSeverity(raw)
		if !ok {
			errs = append(errs, "severity is invalid")
		}
		f.Severity = sev
	}
	f.EventType = strings.TrimSpace(q.Get("type"))
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs = append(errs, "user_id must be a positive integer")
		} else {
			uid := uint(id)
			f.UserID = &uid
		}
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs = append(errs, p.key+" must be an RFC 3339 timestamp")
			continue
		}
		at = at.UTC()
		*p.dst = &at
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		errs = append(errs, "to must not be before from")
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		errs = append(errs, "limit must be an integer")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		errs = append(errs, "offset must be an integer")
	}
	return f, errs
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// parseWindow accepts a Go duration such as "15m" or a bare millisecond count.
func parseWindow(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
