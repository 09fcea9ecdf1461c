package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

type Base struct {
	// Msg contains user friendly error.
	Msg       string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newBasef(format string, args ...any) Base {
	return Base{
		Msg:       fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

func (b *Base) SetTraceID(id string) {
	b.TraceID = id
}

type tracer interface {
	SetTraceID(id string)
	Error() string
}

// TraceID sets trace id on err when err carries a Base.
func TraceID(id string, t error) error {
	var err tracer
	if errors.As(t, &err) {
		err.SetTraceID(id)
	}

	return t
}

type MarshalableErrors []error

func (me MarshalableErrors) MarshalJSON() ([]byte, error) {
	data := []byte("[")
	for i, err := range me {
		if i != 0 {
			data = append(data, ',')
		}
		errstr := strings.ReplaceAll(err.Error(), "\n", " or ")
		j, err := json.Marshal(errstr)
		if err != nil {
			return nil, err
		}

		data = append(data, j...)
	}
	data = append(data, ']')

	return data, nil
}

func (me MarshalableErrors) strings() []string {
	slice := make([]string, len(me))
	for i, e := range me {
		slice[i] = e.Error()
	}
	return slice
}

type InternalError struct {
	Base
	Err        error           `json:"-"`
	Stacktrace json.RawMessage `json:"-"`
}

// Internal is a helper function to return an internal Error.
func Internal(err error, format string, args ...any) *InternalError {
	return &InternalError{
		Base:       newBasef(format, args...),
		Err:        err,
		Stacktrace: debug.Stack(),
	}
}

func AsInternal(err error) (ierr *InternalError, b bool) {
	if errors.As(err, &ierr) {
		return ierr, true
	}

	return nil, false
}

// IsInternal checks if err is internal error.
func IsInternal(err error) bool {
	return errors.Is(err, &InternalError{})
}

func (e *InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return fmt.Sprintf("internal server error: %s", e.Err)
	}
	return "internal server error"
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (e *InternalError) ErrorDetails() string {
	sb := strings.Builder{}
	sb.WriteString(e.Error())
	sb.WriteString("\n\n")

	if e.Err != nil {
		sb.WriteString("Caused by:\n")
		sb.WriteString("\t" + e.Err.Error())
	}

	sb.WriteString("\tStacktrace:\n")
	sb.WriteString("\t")
	sb.Write(e.Stacktrace)

	return sb.String()
}

// HttpResponse returns http response for InternalError.
func (e *InternalError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusInternalServerError,
	}
}

func (e *InternalError) Is(err error) bool {
	_, ok := err.(*InternalError)
	return ok
}

type ValidationError struct {
	Base
	Errors MarshalableErrors `json:"errors,omitempty"`
}

// Validation is a helper function to return an invalid argument Error.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{
		Base: newBasef(format, args...),
	}
}

// IsValidation checks if err is invalid argument error.
func IsValidation(err error) bool {
	return errors.Is(err, &ValidationError{})
}

func AsValidation(err error) (verr *ValidationError, b bool) {
	if errors.As(err, &verr) {
		return verr, true
	}

	return nil, false
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "validation error"
}

func (e *ValidationError) ErrorDetails() string {
	sb := strings.Builder{}
	sb.WriteString(e.Error())
	sb.WriteString("\n\n")

	for _, err := range e.Errors {
		sb.WriteString("\t - " + err.Error())
		sb.WriteString("\n")
	}

	return sb.String()
}

// AsError returns nil when nothing was collected.
func (e *ValidationError) AsError() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// HttpResponse returns http response for ValidationError.
func (e *ValidationError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusBadRequest,
		Errors: e.Errors.strings(),
	}
}

func (e *ValidationError) AddError(err error) *ValidationError {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
	return e
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

func (e *ValidationError) Is(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

func Details(err error) error {
	switch e := err.(type) {
	case interface{ ErrorDetails() string }:
		return errors.New(e.ErrorDetails())
	default:
		return errors.New(err.Error())
	}
}
