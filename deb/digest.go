package deb

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Digest algorithm names as they appear in Checksums-* headers, lowercased.
const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// chunkSize bounds the memory used while hashing a file.
const chunkSize = 32 * 1024

var hashes = map[string]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
}

// NewHash returns a hash for the named algorithm. Names are case-insensitive.
func NewHash(algo string) (hash.Hash, error) {
	fn, ok := hashes[strings.ToLower(algo)]
	if !ok {
		return nil, &UnsupportedDigestError{Algorithm: algo}
	}
	return fn(), nil
}

// Digests reads r to the end once and returns its size and the hex digest
// for each requested algorithm.
func Digests(r io.Reader, algos ...string) (int64, map[string]string, error) {
	hs := make(map[string]hash.Hash, len(algos))
	ws := make([]io.Writer, 0, len(algos))
	for _, algo := range algos {
		algo = strings.ToLower(algo)
		if _, ok := hs[algo]; ok {
			continue
		}
		h, err := NewHash(algo)
		if err != nil {
			return 0, nil, err
		}
		hs[algo] = h
		ws = append(ws, h)
	}

	n, err := io.CopyBuffer(io.MultiWriter(ws...), r, make([]byte, chunkSize))
	if err != nil {
		return 0, nil, err
	}
	sums := make(map[string]string, len(hs))
	for algo, h := range hs {
		sums[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return n, sums, nil
}

// DigestFile is like Digests for the file at path.
func DigestFile(path string, algos ...string) (int64, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	n, sums, err := Digests(f, algos...)
	if err != nil {
		return 0, nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return n, sums, nil
}
