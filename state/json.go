package state

import (
	"encoding/json"
	"fmt"

	"github.com/enverbisevac/actors/errors"
)

// Decode unmarshals data into a T. Failures are reported as
// errors.SerializationError carrying pk, rk and the type name.
func Decode[T any](pk, rk string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Serialization(pk, rk, typeName[T](), err)
	}
	return v, nil
}

// Encode marshals v, see Decode.
func Encode[T any](pk, rk string, v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Serialization(pk, rk, typeName[T](), err)
	}
	return data, nil
}

func typeName[T any]() string {
	var v T
	return fmt.Sprintf("%T", v)
}
