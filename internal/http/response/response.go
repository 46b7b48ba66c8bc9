package response

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Envelope is the body of every JSON API response.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    Meta      `json:"meta"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

var now = time.Now

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data, Meta: metaFor(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, status, Envelope{Error: &APIError{Code: code, Message: message, Details: details}, Meta: metaFor(r)})
}

// Locked writes 423 ACCOUNT_LOCKED. When the lock has a known end it is reported as
// unlock_at and as a Retry-After hint.
func Locked(w http.ResponseWriter, r *http.Request, unlockAt *time.Time) {
	var details any
	if unlockAt != nil {
		details = map[string]any{"unlock_at": unlockAt.UTC()}
		if wait := unlockAt.Sub(now()); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}
	Error(w, r, http.StatusLocked, "ACCOUNT_LOCKED", "account is locked", details)
}

// Attachment writes body unwrapped, as a download named filename.
func Attachment(w http.ResponseWriter, status int, contentType, filename string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", `attachment; filename="`+safeFilename(filename)+`"`)
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func write(w http.ResponseWriter, status int, env Envelope) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	// Bodies may carry tokens or security telemetry.
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func metaFor(r *http.Request) Meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return Meta{RequestID: id, Timestamp: now().UTC()}
}

func safeFilename(name string) string {
	name = strings.Map(func(c rune) rune {
		switch {
		case c == '"' || c == '\\' || c == '/' || c < 0x20 || c == 0x7f:
			return '_'
		default:
			return c
		}
	}, name)
	if name == "" {
		return "download"
	}
	return name
}
