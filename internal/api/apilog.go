package api

import (
	"net/http"
	"time"

	"github.com/h51assets/h51/internal/apilog"
	"github.com/h51assets/h51/internal/domain"
)

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// apiLogMiddleware pushes one domain.APILogEntry per authenticated request
// into the account's outcome-class ring (§4.5, §12), recording the called
// operation, remote IP, method/path, and terminal status code.
func (s *Server) apiLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		account := AccountFromContext(r.Context())
		if account == nil {
			return
		}
		entry := domain.APILogEntry{
			CallTime:   start,
			Called:     r.URL.Path,
			IPAddress:  clientIP(r),
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: wrapped.status,
		}
		_ = s.APILog.Push(r.Context(), account.ID, apilog.OutcomeForStatus(wrapped.status), entry)
		_ = s.Stats.Inc(r.Context(), account.ID, domain.StatAPICalls, 1, start)
	})
}
