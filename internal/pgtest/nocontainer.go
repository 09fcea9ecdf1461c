//go:build !integration

package pgtest

import "testing"

var startContainer func(t *testing.T) string
