// Package blob is the storage contract for uploaded document files and its
// adapters. Refs are content addressed, so storing the same bytes twice is
// idempotent and yields the same ref.
package blob

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Object is a stored file as returned by Fetch.
type Object struct {
	Ref         string
	ContentType string
	Data        []byte
}

// Storage stores and retrieves file blobs.
//
// Error Contract:
// - Fetch returns sentinel.ErrNotFound for an unknown ref
// - Backend failures wrap sentinel.ErrUnavailable
type Storage interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, ref string) (*Object, error)
}

const refPrefix = "b2b256-"

// ContentRef derives the ref for data from its BLAKE2b-256 digest.
func ContentRef(data []byte) string {
	sum := blake2b.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:])
}
