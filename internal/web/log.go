package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request correlation id. A client supplied id is
// echoed back, otherwise a new one is generated.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 40

type responseObserver struct {
	http.ResponseWriter

	bytes int
	code  int
}

func (o *responseObserver) WriteHeader(code int) {
	o.ResponseWriter.WriteHeader(code)
	o.code = code
}

func (o *responseObserver) Write(b []byte) (int, error) {
	n, err := o.ResponseWriter.Write(b)
	o.bytes += n
	if o.code == 0 {
		o.code = http.StatusOK
	}
	return n, err
}

// logRequests logs one line per completed request.
func logRequests(log *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		} else if len(id) > maxRequestIDLen {
			id = id[:maxRequestIDLen]
		}
		w.Header().Set(RequestIDHeader, id)

		o := &responseObserver{ResponseWriter: w}
		next.ServeHTTP(o, r)

		log.WithFields(logrus.Fields{
			"request":  id,
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"uri":      r.URL.RequestURI(),
			"code":     o.code,
			"bytes":    o.bytes,
			"duration": time.Since(begin),
		}).Debug("request completed")
	})
}
