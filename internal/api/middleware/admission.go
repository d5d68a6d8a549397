package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	apiContext "glucolog/internal/api/context"
	"glucolog/internal/engine/admission"
	"glucolog/internal/engine/usage"
	"glucolog/internal/pkg/errors"
)

type AdmissionMiddleware struct {
	controller *admission.Controller
	trustProxy bool
	now        func() time.Time
}

func NewAdmissionMiddleware(controller *admission.Controller, trustProxy bool) *AdmissionMiddleware {
	return &AdmissionMiddleware{controller: controller, trustProxy: trustProxy, now: time.Now}
}

// Guard admits anonymous callers on the anonymous tier.
func (m *AdmissionMiddleware) Guard(endpoint string) func(http.HandlerFunc) http.HandlerFunc {
	return m.guard(endpoint, false)
}

// Authenticated rejects callers presenting no credential.
func (m *AdmissionMiddleware) Authenticated(endpoint string) func(http.HandlerFunc) http.HandlerFunc {
	return m.guard(endpoint, true)
}

func (m *AdmissionMiddleware) guard(endpoint string, requireCredential bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := m.controller.Admit(r.Context(), admission.Request{
				Credential:        admission.Extract(r.Header),
				ClientAddr:        ClientIP(r, m.trustProxy),
				Endpoint:          endpoint,
				RequireCredential: requireCredential,
			})
			admission.WriteHeaders(w.Header(), d, m.now())

			if !d.Admitted() {
				m.controller.Complete(d, r.Method, d.Status())
				writeRejection(w, d)
				return
			}

			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				status := sw.status
				p := recover()
				switch {
				case p != nil:
					status = http.StatusInternalServerError
				case status == 0 && r.Context().Err() != nil:
					status = usage.StatusAborted
				case status == 0:
					status = http.StatusOK
				}
				m.controller.Complete(d, r.Method, status)
				if p != nil {
					panic(p)
				}
			}()

			ctx := context.WithValue(r.Context(), apiContext.Decision, d)
			next(sw, r.WithContext(ctx))
		}
	}
}

func writeRejection(w http.ResponseWriter, d admission.Decision) {
	switch d.Code {
	case admission.CodeRateLimitExceeded:
		errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", d.Info())
	case admission.CodeUnauthorized:
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
	default:
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeInvalidCredential, "Invalid credentials", nil)
	}
}

// ClientIP is the address anonymous budgets are keyed on.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
