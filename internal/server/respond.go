package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/identity"
)

// Identity headers set by the upstream authentication proxy.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// actorFrom builds the caller from identity headers. A missing role falls
// back to the roster, then to student.
func (s *Server) actorFrom(r *http.Request) (identity.Actor, error) {
	a := identity.Actor{
		UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
		DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
		Role:        identity.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
	}
	if a.UserID == "" {
		return a, apperr.Unauthorized("server.actor", "missing %s header", HeaderUserID)
	}
	if a.Role != "" && !a.Role.Valid() {
		return a, apperr.Unauthorized("server.actor", "unknown role %q", a.Role)
	}
	// A rostered user always gets the roster role; the header only speaks
	// for users the roster does not know.
	if m, ok := s.eng.Directory().Lookup(a.UserID); ok {
		a.Role = m.Role
	} else if a.Role == "" {
		a.Role = identity.RoleStudent
	}
	return s.eng.Directory().Resolve(a), nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrInvalidState:
		return http.StatusConflict
	case apperr.ErrValidation:
		return http.StatusUnprocessableEntity
	case apperr.ErrUnauthorized:
		return http.StatusForbidden
	case apperr.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	}
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	if kind := apperr.KindOf(err); kind != nil {
		body["kind"] = kind.Error()
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body = map[string]string{"error": "internal error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
