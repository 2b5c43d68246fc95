package idhash

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// jobIDBytes is the entropy of a job id.
const jobIDBytes = 16

// NewJobID returns a random base58-encoded job id.
func NewJobID() string {
	var b [jobIDBytes]byte
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b[:])
	return base58.Encode(b[:])
}
