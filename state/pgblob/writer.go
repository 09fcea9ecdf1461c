package pgblob

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
)

var errMD5Mismatch = errors.New("pgblob: content MD5 mismatch")

// writer buffers the object and stores it in one statement on Close.
type writer struct {
	ctx         context.Context
	bucket      *bucket
	key         string
	contentType string
	contentMD5  []byte
	buf         bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	data := w.buf.Bytes()
	sum := md5.Sum(data)
	if len(w.contentMD5) > 0 && !bytes.Equal(sum[:], w.contentMD5) {
		return errMD5Mismatch
	}

	return w.bucket.put(w.ctx, w.key, w.contentType, data, sum[:])
}
