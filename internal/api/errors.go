package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// kind is the error taxonomy from the error-handling design: it maps to
// an HTTP status, never a type name leaked to the caller.
type kind int

const (
	kindValidation kind = iota
	kindAuth
	kindNotFound
	kindCapacity
	kindUpstream
	kindInternal
)

type apiError struct {
	k          kind
	message    string
	retryAfter int
}

func (e *apiError) Error() string { return e.message }

func validationError(msg string) *apiError { return &apiError{k: kindValidation, message: msg} }
func authError() *apiError                 { return &apiError{k: kindAuth, message: "invalid credentials"} }
func notFoundError(msg string) *apiError   { return &apiError{k: kindNotFound, message: msg} }
func capacityError(retryAfterSeconds int) *apiError {
	return &apiError{k: kindCapacity, message: "queue is at capacity", retryAfter: retryAfterSeconds}
}
func upstreamError(msg string) *apiError { return &apiError{k: kindUpstream, message: msg} }
func internalError(cause error) *apiError {
	log.Printf("internal error: %v", cause)
	return &apiError{k: kindInternal, message: "internal error"}
}

func (e *apiError) statusCode() int {
	switch e.k {
	case kindValidation:
		return http.StatusBadRequest
	case kindAuth:
		return http.StatusUnauthorized
	case kindNotFound:
		return http.StatusNotFound
	case kindCapacity:
		return http.StatusServiceUnavailable
	case kindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apiError)
	if !ok {
		apiErr = internalError(err)
	}
	if apiErr.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.retryAfter))
	}
	writeJSON(w, apiErr.statusCode(), map[string]string{"error": apiErr.message})
}
