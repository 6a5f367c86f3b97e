package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var errBodyTooLarge = errors.New("request body too large")

// StatusFor maps an engine error kind to an HTTP status.
func StatusFor(kind goIdentity.ErrorKind) int {
	switch kind {
	case goIdentity.KindValidation:
		return http.StatusUnprocessableEntity
	case goIdentity.KindBadRequest:
		return http.StatusBadRequest
	case goIdentity.KindUnauthorized:
		return http.StatusUnauthorized
	case goIdentity.KindConflict:
		return http.StatusConflict
	case goIdentity.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondKind(w http.ResponseWriter, kind goIdentity.ErrorKind, message string) {
	respondJSON(w, StatusFor(kind), errorBody{Error: errorDetail{Kind: kind.String(), Message: message}})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := goIdentity.KindOf(err)
	if kind == goIdentity.KindInternal || kind == goIdentity.KindTransient {
		s.logger.Error("request failed",
			zapRequest(r, err)...,
		)
	}
	respondKind(w, kind, goIdentity.PublicMessage(err))
}

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = errBodyTooLarge
		}
		respondKind(w, goIdentity.KindValidation, "invalid request body: "+err.Error())
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		respondKind(w, goIdentity.KindValidation, "invalid request body: trailing data")
		return false
	}
	return true
}
