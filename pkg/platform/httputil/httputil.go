// Package httputil writes JSON responses and translates domain errors into
// HTTP statuses in one place.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "dropin/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorSpec struct {
	status  int
	code    dErrors.Code
	message string
}

// One fixed message per code; details stay in the logs.
var errorSpecs = map[dErrors.Code]errorSpec{
	dErrors.CodeUnauthenticated:    {http.StatusUnauthorized, dErrors.CodeUnauthenticated, "authentication required"},
	dErrors.CodeUnauthorized:       {http.StatusForbidden, dErrors.CodeUnauthorized, "you are not allowed to perform this action"},
	dErrors.CodeInvalidArgument:    {http.StatusBadRequest, dErrors.CodeInvalidArgument, "invalid request parameters"},
	dErrors.CodeInvariantViolation: {http.StatusBadRequest, dErrors.CodeInvalidArgument, "invalid request parameters"},
	dErrors.CodeBadRequest:         {http.StatusBadRequest, dErrors.CodeBadRequest, "malformed request"},
	dErrors.CodeNotFound:           {http.StatusNotFound, dErrors.CodeNotFound, "not found"},
	dErrors.CodeAlreadyRegistered:  {http.StatusConflict, dErrors.CodeAlreadyRegistered, "already registered for this game"},
	dErrors.CodeNotRegistered:      {http.StatusConflict, dErrors.CodeNotRegistered, "not registered for this game"},
	dErrors.CodeGameFull:           {http.StatusConflict, dErrors.CodeGameFull, "game is full"},
	dErrors.CodeConflict:           {http.StatusConflict, dErrors.CodeConflict, "the game changed concurrently, please retry"},
	dErrors.CodeUnavailable:        {http.StatusServiceUnavailable, dErrors.CodeUnavailable, "service temporarily unavailable"},
	dErrors.CodeTimeout:            {http.StatusGatewayTimeout, dErrors.CodeTimeout, "request timed out"},
	dErrors.CodeRateLimited:        {http.StatusTooManyRequests, dErrors.CodeRateLimited, "too many requests, please try again later"},
	dErrors.CodeInternal:           {http.StatusInternalServerError, dErrors.CodeInternal, "internal server error"},
}

// StatusFor returns the HTTP status WriteError would use for err.
func StatusFor(err error) int {
	return specFor(err).status
}

func specFor(err error) errorSpec {
	if spec, ok := errorSpecs[dErrors.CodeOf(err)]; ok {
		return spec
	}
	return errorSpecs[dErrors.CodeInternal]
}

// WriteError translates err into a status and the fixed body for its code.
// Errors without a domain code are reported as internal.
func WriteError(w http.ResponseWriter, err error) {
	spec := specFor(err)
	WriteJSON(w, spec.status, ErrorResponse{Error: spec.message, Code: string(spec.code)})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a single JSON object from the request body into dst.
// Fields that match no struct field are rejected; names match
// case-insensitively, as encoding/json does.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid json body")
	}
	return nil
}
