package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	ledgererrors "labledger/core/errors"
	"labledger/rpc/middleware"
)

const maxRequestBytes = 1 << 20

// statusFor maps a ledger failure reason onto an HTTP status code.
func statusFor(reason string) int {
	switch reason {
	case "NotFound":
		return http.StatusNotFound
	case "NotAuthorized", "NotCurated":
		return http.StatusForbidden
	case "InvalidState", "AlreadyClaimed", "NothingToRetrieve", "OrderUnderpaid":
		return http.StatusConflict
	case "CooldownNotElapsed":
		return http.StatusTooEarly
	case "InsufficientBalance":
		return http.StatusPaymentRequired
	case "InvalidAmount", "InvalidArgument":
		return http.StatusBadRequest
	case "ModulePaused":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError reports err with the stable reason it wraps. Internal
// failures are logged and not echoed to the client.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	reason := ledgererrors.Reason(err)
	status := statusFor(reason)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("internal error serving request",
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err)
		message = "internal error"
	}
	middleware.WriteError(w, status, reason, message)
}

func writeBadRequest(w http.ResponseWriter, format string, args ...interface{}) {
	middleware.WriteError(w, http.StatusBadRequest, "InvalidArgument", fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields
// and trailing data.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
