package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/server/authctx"
	"github.com/go-chi/chi/v5"
)

type apiError struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Kind   string `json:"kind,omitempty"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	writeRawJSON(w, status, apiResponse{
		Status:  "ok",
		Message: "",
		Data:    payload,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorKind(w, status, "", message)
}

func writeErrorKind(w http.ResponseWriter, status int, kind domain.ErrorKind, message string) {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Data:    nil,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
			Kind:   string(kind),
		},
	})
}

// writeDomainError maps an error kind onto its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindStorage:
		if db.IsBusy(err) {
			status = http.StatusServiceUnavailable
		}
	default:
		kind = domain.KindStorage
	}
	message := err.Error()
	var de *domain.Error
	if kind == domain.KindStorage && errors.As(err, &de) && de.Message != "" {
		// Engine details stay in the logs.
		message = de.Message
	}
	writeErrorKind(w, status, kind, message)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Validationf("invalid payload: %v", err)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	return int64Param(r, "id")
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

func limitQuery(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// operatorID is the user recorded on activity entries.
func operatorID(r *http.Request) int64 {
	if op := authctx.FromContext(r.Context()); op != nil {
		return op.ID
	}
	return 0
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
