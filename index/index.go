// Package index defines the metadata index store: small records addressed
// by partition key and row key, grouped by record kind.
package index

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// MatchAny disables the version check of an upsert.
const MatchAny = "*"

// Metadata is the index record of one actor entity.
type Metadata struct {
	PartitionKey string          `json:"partitionKey" bson:"partitionKey"`
	RowKey       string          `json:"rowKey" bson:"rowKey"`
	Timestamp    time.Time       `json:"timestamp" bson:"timestamp"`
	ETag         string          `json:"etag" bson:"etag"`
	// Data carries the payload when the index is the only store.
	Data json.RawMessage `json:"data,omitempty" bson:"data,omitempty"`
}

// Response is returned by every store call that reached the backend.
type Response struct {
	StatusCode int
	Message    string
	ETag       string
	Timestamp  time.Time
	Result     *Metadata
}

func (r Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Response) IsNotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// Store reads and writes index records. A missing record or a failed
// precondition is reported in Response, errors are reserved for failures to
// talk to the backend.
type Store interface {
	Get(ctx context.Context, kind, pk, rk string) (Response, error)
	// Upsert replaces the record. With match == MatchAny the write is
	// unconditional, otherwise it only succeeds when match equals the stored
	// ETag.
	Upsert(ctx context.Context, kind string, md Metadata, match string) (Response, error)
}

// Found builds a 200 response for md.
func Found(md Metadata) Response {
	return Response{
		StatusCode: http.StatusOK,
		ETag:       md.ETag,
		Timestamp:  md.Timestamp,
		Result:     &md,
	}
}

func NotFound() Response {
	return Response{
		StatusCode: http.StatusNotFound,
		Message:    "entity not found",
	}
}

func PreconditionFailed(etag string) Response {
	return Response{
		StatusCode: http.StatusPreconditionFailed,
		Message:    "etag mismatch",
		ETag:       etag,
	}
}

// Written builds the response of a successful upsert.
func Written(md Metadata) Response {
	r := Found(md)
	r.StatusCode = http.StatusNoContent
	return r
}
