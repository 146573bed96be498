package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLogging assigns a request id (keeping one sent by the client)
// and logs every request once it completes.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request handled",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// authorized runs the configured Authorizer before h. Without one every
// request is allowed.
func (s *Server) authorized(h http.HandlerFunc) http.HandlerFunc {
	if s.opts.Authorizer == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.opts.Authorizer(r); err != nil {
			s.logger.Warn("request rejected by authorizer",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			s.writeJSON(w, http.StatusForbidden, struct{}{})
			return
		}
		h(w, r)
	}
}
