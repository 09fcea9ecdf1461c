package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// KeyValidationError is returned for an empty or unusable partition or row key.
type KeyValidationError struct {
	Base
	// Key names the rejected part, "partition key" or "row key".
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

func KeyValidation(key, value, format string, args ...any) *KeyValidationError {
	return &KeyValidationError{
		Base:  newBasef(format, args...),
		Key:   key,
		Value: value,
	}
}

func IsKeyValidation(err error) bool {
	return errors.Is(err, &KeyValidationError{})
}

func AsKeyValidation(err error) (kerr *KeyValidationError, b bool) {
	if errors.As(err, &kerr) {
		return kerr, true
	}

	return nil, false
}

func (e *KeyValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Key != "" {
		return e.Key + " is invalid"
	}
	return "invalid key"
}

// HttpResponse returns http response for KeyValidationError.
func (e *KeyValidationError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusBadRequest,
	}
}

func (e *KeyValidationError) Is(err error) bool {
	_, ok := err.(*KeyValidationError)
	return ok
}

// LockConflictError reports a resource leased by somebody else.
type LockConflictError struct {
	Base
	Resource string `json:"resource"`
	Err      error  `json:"-"`
}

func LockConflict(resource string, err error) *LockConflictError {
	return &LockConflictError{
		Base:     newBasef("another job is already running for %s", resource),
		Resource: resource,
		Err:      err,
	}
}

// IsLockConflict also matches a LockAcquisitionError, which unwraps to the
// conflicts of its attempts. Check IsLockAcquisition first to tell retry
// exhaustion from a fail fast conflict.
func IsLockConflict(err error) bool {
	return errors.Is(err, &LockConflictError{})
}

func AsLockConflict(err error) (cerr *LockConflictError, b bool) {
	if errors.As(err, &cerr) {
		return cerr, true
	}

	return nil, false
}

func (e *LockConflictError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "resource " + e.Resource + " is locked"
}

func (e *LockConflictError) Unwrap() error {
	return e.Err
}

// HttpResponse returns http response for LockConflictError.
func (e *LockConflictError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusConflict,
	}
}

func (e *LockConflictError) Is(err error) bool {
	_, ok := err.(*LockConflictError)
	return ok
}

// LockAcquisitionError is returned when every attempt of a retry policy
// ended in a conflict. Errors holds one entry per attempt and Unwrap exposes
// them, so IsLockConflict is true for it as well.
type LockAcquisitionError struct {
	Base
	Resource string            `json:"resource"`
	Attempts int               `json:"attempts"`
	Errors   MarshalableErrors `json:"errors"`
}

func LockAcquisition(resource string, errs ...error) *LockAcquisitionError {
	return &LockAcquisitionError{
		Base:     newBasef("unable to acquire lock for %s after %d attempts", resource, len(errs)),
		Resource: resource,
		Attempts: len(errs),
		Errors:   errs,
	}
}

func IsLockAcquisition(err error) bool {
	return errors.Is(err, &LockAcquisitionError{})
}

func AsLockAcquisition(err error) (aerr *LockAcquisitionError, b bool) {
	if errors.As(err, &aerr) {
		return aerr, true
	}

	return nil, false
}

func (e *LockAcquisitionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "unable to acquire lock for " + e.Resource
}

func (e *LockAcquisitionError) ErrorDetails() string {
	sb := strings.Builder{}
	sb.WriteString(e.Error())
	sb.WriteString("\n\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\t#%d: %s\n", i+1, err)
	}

	return sb.String()
}

func (e *LockAcquisitionError) Unwrap() []error {
	return e.Errors
}

// HttpResponse returns http response for LockAcquisitionError.
func (e *LockAcquisitionError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusConflict,
		Errors: e.Errors.strings(),
	}
}

func (e *LockAcquisitionError) Is(err error) bool {
	_, ok := err.(*LockAcquisitionError)
	return ok
}

// TimeoutError is returned when a deadline expired while waiting for a lock.
type TimeoutError struct {
	Base
	Resource string `json:"resource"`
	Err      error  `json:"-"`
}

func Timeout(resource string, err error) *TimeoutError {
	return &TimeoutError{
		Base:     newBasef("timed out waiting for lock on %s", resource),
		Resource: resource,
		Err:      err,
	}
}

func IsTimeout(err error) bool {
	return errors.Is(err, &TimeoutError{})
}

func AsTimeout(err error) (terr *TimeoutError, b bool) {
	if errors.As(err, &terr) {
		return terr, true
	}

	return nil, false
}

func (e *TimeoutError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "timeout"
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// HttpResponse returns http response for TimeoutError.
func (e *TimeoutError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusGatewayTimeout,
	}
}

func (e *TimeoutError) Is(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

// PersistenceError wraps a failure reported by the index or state store.
// The original error stays reachable through Unwrap.
type PersistenceError struct {
	Base
	Op         string `json:"op"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func Persistence(op string, err error) *PersistenceError {
	msg := op + " failed"
	if err != nil {
		msg += ": " + err.Error()
	}
	return &PersistenceError{
		Base: newBasef("%s", msg),
		Op:   op,
		Err:  err,
	}
}

// PersistenceStatus is used when the store answered with a non success status.
func PersistenceStatus(op string, status int, message string) *PersistenceError {
	return &PersistenceError{
		Base:       newBasef("%s failed with status %d: %s", op, status, message),
		Op:         op,
		StatusCode: status,
	}
}

func IsPersistence(err error) bool {
	return errors.Is(err, &PersistenceError{})
}

func AsPersistence(err error) (perr *PersistenceError, b bool) {
	if errors.As(err, &perr) {
		return perr, true
	}

	return nil, false
}

func (e *PersistenceError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Op + " failed"
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// HttpResponse returns http response for PersistenceError.
func (e *PersistenceError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusBadGateway,
	}
}

func (e *PersistenceError) Is(err error) bool {
	_, ok := err.(*PersistenceError)
	return ok
}

// SerializationError is returned when a payload can not be encoded into or
// decoded from the expected record shape.
type SerializationError struct {
	Base
	PartitionKey string `json:"partition_key"`
	RowKey       string `json:"row_key"`
	Type         string `json:"type"`
	Err          error  `json:"-"`
}

func Serialization(pk, rk, typ string, err error) *SerializationError {
	return &SerializationError{
		Base:         newBasef("payload %s/%s is not a valid %s: %v", pk, rk, typ, err),
		PartitionKey: pk,
		RowKey:       rk,
		Type:         typ,
		Err:          err,
	}
}

func IsSerialization(err error) bool {
	return errors.Is(err, &SerializationError{})
}

func AsSerialization(err error) (serr *SerializationError, b bool) {
	if errors.As(err, &serr) {
		return serr, true
	}

	return nil, false
}

func (e *SerializationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "serialization error"
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// HttpResponse returns http response for SerializationError.
func (e *SerializationError) HttpResponse() HttpResponse {
	return HttpResponse{
		Base:   e.Base,
		Status: http.StatusInternalServerError,
	}
}

func (e *SerializationError) Is(err error) bool {
	_, ok := err.(*SerializationError)
	return ok
}
