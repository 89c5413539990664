package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ssrltools/beamcore/internal/leveling"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/shutter"
	"github.com/ssrltools/beamcore/internal/stage"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeMotion      = "motion_failed"
)

// errBusy is returned when another motion operation holds the stage.
var errBusy = errors.New("another stage operation is running")

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeDomainError maps errors from the beamline packages onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shutter.ErrInvalidTarget),
		errors.Is(err, stage.ErrInvalidSelector),
		errors.Is(err, scan.ErrInvalidGrid),
		errors.Is(err, scan.ErrPinOutOfRange),
		errors.Is(err, leveling.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, stage.ErrSampleNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, shutter.ErrAlreadyMoving), errors.Is(err, errBusy):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, shutter.ErrMotion), errors.Is(err, leveling.ErrControlLoop):
		writeError(w, http.StatusBadGateway, ErrCodeMotion, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
