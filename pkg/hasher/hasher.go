// Package hasher computes content digests of downloaded files.
//
// Files are streamed in fixed 1 MiB chunks, so memory use does not depend on
// file size. The digest algorithm is a policy chosen at construction; blake2b
// (512-bit) is the default and matches digests already stored in existing
// ledgers.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	errs "mediadl/pkg/errors"
)

// ChunkSize is the read size used while streaming a file
const ChunkSize = 1 << 20

// Algorithm names a digest policy
type Algorithm string

const (
	Blake2b Algorithm = "blake2b"
	SHA256  Algorithm = "sha256"
	XXHash  Algorithm = "xxhash"
)

// Hasher digests files with one algorithm
type Hasher struct {
	algorithm Algorithm
	newHash   func() hash.Hash
}

// New returns a Hasher for the named algorithm
func New(algorithm string) (*Hasher, error) {
	alg := Algorithm(strings.ToLower(algorithm))
	if alg == "" {
		alg = Blake2b
	}

	var fn func() hash.Hash
	switch alg {
	case Blake2b:
		fn = func() hash.Hash {
			h, _ := blake2b.New512(nil)
			return h
		}
	case SHA256:
		fn = sha256.New
	case XXHash:
		fn = func() hash.Hash { return xxhash.New() }
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	return &Hasher{algorithm: alg, newHash: fn}, nil
}

// Algorithm reports the configured algorithm
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash returns the hex digest of the file at path. A missing or unreadable
// file yields a *errors.FileError; a partial digest is never returned.
func (h *Hasher) Hash(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &errs.FileError{Path: path, Err: err}
	}
	defer f.Close()

	acc := h.newHash()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", &errs.FileError{Path: path, Err: rerr}
		}
	}

	return hex.EncodeToString(acc.Sum(nil)), nil
}
