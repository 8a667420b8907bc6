package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Yellowatch/boxumco"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var (
	errBadRequest       = errors.New("malformed request body")
	errPasswordMismatch = errors.New("the two password fields didn't match")
	errConfirmRequired  = errors.New("confirm must be true to delete the account")
	errLogosDisabled    = errors.New("logo uploads are not configured")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, boxumco.ErrInvalidCredentials), errors.Is(err, boxumco.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, boxumco.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, boxumco.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, boxumco.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, boxumco.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, errPasswordMismatch),
		errors.Is(err, errConfirmRequired),
		errors.Is(err, errLogosDisabled):
		return http.StatusBadRequest
	}
	if boxumco.ErrorCode(err) != "internal" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "bad_request"
	case errors.Is(err, errPasswordMismatch):
		return "password_mismatch"
	case errors.Is(err, errConfirmRequired):
		return "confirm_required"
	case errors.Is(err, errLogosDisabled):
		return "logo_upload_disabled"
	}
	return boxumco.ErrorCode(err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, statusFor(err), err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	code := errorCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// accessLog writes one entry per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("remote", r.RemoteAddr),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// confirmRedirect builds the front-end URLs for the confirm-email outcome.
type confirmRedirect struct {
	ok   string
	fail string
}

func newConfirmRedirect(raw string) (confirmRedirect, error) {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return confirmRedirect{}, fmt.Errorf("httpapi: invalid redirect url %q", raw)
	}
	build := func(v string) string {
		q := u.Query()
		q.Set("email_confirmed", v)
		c := *u
		c.RawQuery = q.Encode()
		return c.String()
	}
	return confirmRedirect{ok: build("1"), fail: build("0")}, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
