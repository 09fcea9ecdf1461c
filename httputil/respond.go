package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/enverbisevac/actors/errors"
)

const ContentTypeJSON = "application/json; charset=utf-8"

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as errors.HttpResponse. Server side failures are logged
// with the request logger.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	resp := errors.Response(err)
	if resp.Status >= http.StatusInternalServerError {
		logr.FromContextOrDiscard(r.Context()).Error(err, "request failed",
			"method", r.Method, "path", r.URL.Path, "status", resp.Status)
	}
	JSON(w, resp.Status, resp)
}
