package errors

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/Median-Group/differential-evolution2/internal/logging"
)

// RecoveryMiddleware returns a middleware that recovers from panics in
// handlers and answers 500. http.ErrAbortHandler is re-raised.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Recovered from panic", map[string]interface{}{
					"panic":  rec,
					"stack":  string(debug.Stack()),
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
				})

				WriteJSON(w, New(http.StatusText(http.StatusInternalServerError)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Operation string `json:"operation,omitempty"`
}

// WriteJSON writes err as a JSON error response using StatusCode(err).
func WriteJSON(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var e *Error
	if As(err, &e) {
		body.Operation = e.Operation
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(body)
}
