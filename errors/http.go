package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// HttpResponse is the JSON body written for a failed request.
type HttpResponse struct {
	Base
	Status int      `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

type httpResponder interface {
	HttpResponse() HttpResponse
}

// Response converts err into HttpResponse. Errors without a mapping are
// reported as internal server errors, context errors as timeouts.
func Response(err error) HttpResponse {
	var r httpResponder
	if errors.As(err, &r) {
		return r.HttpResponse()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return HttpResponse{
			Base:   Base{Msg: err.Error(), Timestamp: time.Now()},
			Status: http.StatusGatewayTimeout,
		}
	}

	return Internal(err, "%s", http.StatusText(http.StatusInternalServerError)).HttpResponse()
}

// HTTPStatus returns http status code for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Response(err).Status
}

// JSONResponse writes err to w as json.
func JSONResponse(w http.ResponseWriter, err error) error {
	resp := Response(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.Status)
	return json.NewEncoder(w).Encode(resp)
}
