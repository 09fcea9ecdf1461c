// Package key normalizes partition and row keys so that the lock, index and
// state stores all address a record by the same identifiers.
package key

import (
	"strings"

	"github.com/enverbisevac/actors/errors"
)

// disallowed reports characters the index store refuses in key values.
func disallowed(r rune) bool {
	switch r {
	case '\\', '#', '%', '+', '/', '?':
		return true
	}
	return r <= 0x1f || (r >= 0x7f && r <= 0x9f)
}

// Normalize strips disallowed characters from value.
func Normalize(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errors.KeyValidation("", value, "key must not be empty")
	}

	out := strings.Map(func(r rune) rune {
		if disallowed(r) {
			return -1
		}
		return r
	}, value)

	if strings.TrimSpace(out) == "" {
		return "", errors.KeyValidation("", value, "key %q has no allowed characters", value)
	}
	return out, nil
}

// Pair is a normalized partition key and row key.
type Pair struct {
	PartitionKey string
	RowKey       string
}

// NewPair normalizes pk and rk. Both halves are validated and reported
// together.
func NewPair(pk, rk string) (Pair, error) {
	verr := errors.Validation("invalid key pair %q/%q", pk, rk)

	npk, err := Normalize(pk)
	if err != nil {
		verr.AddError(errors.KeyValidation("partition key", pk, "partition key: %s", err))
	}

	nrk, err := Normalize(rk)
	if err != nil {
		verr.AddError(errors.KeyValidation("row key", rk, "row key: %s", err))
	}

	if err := verr.AsError(); err != nil {
		return Pair{}, err
	}

	return Pair{PartitionKey: npk, RowKey: nrk}, nil
}

// Resource is the name of the lock guarding the pair.
func (p Pair) Resource() string {
	return p.PartitionKey + "/" + p.RowKey
}

// BlobName is the state store object name holding the pair payload.
func (p Pair) BlobName() string {
	return p.PartitionKey + "/" + p.RowKey + ".json"
}

func (p Pair) String() string {
	return p.Resource()
}
