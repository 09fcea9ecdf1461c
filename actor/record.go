package actor

import "time"

// Record is the caller visible entity. It is stored as a JSON envelope, ETag
// only lives in the index.
type Record[T any] struct {
	PartitionKey string    `json:"partitionKey"`
	RowKey       string    `json:"rowKey"`
	Timestamp    time.Time `json:"timestamp"`
	ETag         string    `json:"-"`
	Payload      T         `json:"payload"`
}

// Kinder is implemented by payloads declaring their index namespace.
type Kinder interface {
	Kind() string
}
