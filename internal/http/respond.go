package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/fjod/go_cart/internal/checkout"
	cartgrpc "github.com/fjod/go_cart/internal/grpc"
	"github.com/fjod/go_cart/internal/inventory"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var errEmptyBody = errors.New("request body is required")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON rejects unknown fields and trailing data. An empty body is
// errEmptyBody so callers with optional bodies can accept it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// optionalBody tolerates an absent body for endpoints whose fields are all optional.
func optionalBody(err error) error {
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func respondDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, http.StatusRequestEntityTooLarge, "body_too_large",
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		return
	}
	respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON body: %v", err))
}

// handleError converts a service error to an HTTP response through the
// shared gRPC status mapping.
func handleError(w http.ResponseWriter, err error) {
	st := cartgrpc.StatusFromError(err)

	var httpStatus int
	var code string

	switch st.Code() {
	case codes.InvalidArgument:
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case codes.NotFound:
		httpStatus = http.StatusNotFound
		code = "not_found"
	case codes.AlreadyExists:
		httpStatus = http.StatusConflict
		code = "already_exists"
	case codes.Aborted:
		httpStatus = http.StatusConflict
		code = "conflict"
	case codes.FailedPrecondition:
		httpStatus = http.StatusConflict
		code = "failed_precondition"
	case codes.Unauthenticated:
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case codes.PermissionDenied:
		httpStatus = http.StatusForbidden
		code = "permission_denied"
	case codes.ResourceExhausted:
		httpStatus = http.StatusTooManyRequests
		code = "rate_limit_exceeded"
	case codes.Unavailable:
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case codes.DeadlineExceeded:
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	if kind := checkout.KindOf(err); kind != checkout.KindUnknown {
		code = kind.String()
	}
	resp := ErrorResponse{Error: st.Message(), Code: code}

	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Code = "insufficient_stock"
		resp.Details = stockErr.ProductID
	}
	respondJSON(w, httpStatus, resp)
}
