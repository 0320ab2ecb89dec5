package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/phoneauth"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 16 << 10

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    phoneauth.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// StatusFor maps an engine error code to its HTTP status.
func StatusFor(code phoneauth.ErrorCode) int {
	switch code {
	case phoneauth.CodeValidation:
		return http.StatusBadRequest
	case phoneauth.CodeRateLimited, phoneauth.CodeAttemptsExhausted:
		return http.StatusTooManyRequests
	case phoneauth.CodeNotFound:
		return http.StatusNotFound
	case phoneauth.CodeExpired:
		return http.StatusGone
	case phoneauth.CodeCodeMismatch, phoneauth.CodeInvalidCredentials, phoneauth.CodeInvalidToken:
		return http.StatusUnauthorized
	case phoneauth.CodeAccountLocked:
		return http.StatusLocked
	case phoneauth.CodeAccountDisabled:
		return http.StatusForbidden
	case phoneauth.CodeConflict:
		return http.StatusConflict
	case phoneauth.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := phoneauth.DescribeError(err)
	status := StatusFor(code)

	logger := zerolog.Ctx(r.Context())
	var event *zerolog.Event
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	} else {
		event = logger.Debug()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("code", string(code)).
		Int("status", status).
		Msg("request failed")

	if code == phoneauth.CodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer realm="phoneauth"`)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    phoneauth.CodeValidation,
		Message: message,
	}})
}

// decode reads a single JSON object from the body. Unknown fields are
// rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := jsonDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
				Code:    phoneauth.CodeValidation,
				Message: "The request body is too large.",
			}})
			return false
		}
		writeBadRequest(w, "The request body is not valid JSON.")
		return false
	}
	return true
}

func jsonDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec
}
