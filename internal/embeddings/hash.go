package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// DefaultDimensions is the vector length of the hash driver unless
// configured otherwise.
const DefaultDimensions = 16

// HashDriver is a deterministic, offline embedding driver. It derives each
// component from sha256 digests of the input text, so identical text always
// yields an identical vector across processes and platforms. The vectors
// carry no semantic meaning but are stable enough for cosine ranking in
// development and tests.
type HashDriver struct {
	dims int
}

var _ Driver = (*HashDriver)(nil)

// NewHashDriver creates a hash embedder with the given dimensionality.
// dims <= 0 falls back to DefaultDimensions.
func NewHashDriver(dims int) *HashDriver {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashDriver{dims: dims}
}

func (d *HashDriver) Kind() string    { return "hash" }
func (d *HashDriver) Dimensions() int { return d.dims }

func (d *HashDriver) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *HashDriver) HealthCheck(context.Context) error { return nil }

// embedOne expands counter-suffixed sha256 digests of the text into enough
// bytes for the vector, then maps each 4-byte little-endian chunk into
// [0, 1). Empty text maps to the zero vector.
func (d *HashDriver) embedOne(text string) []float64 {
	vec := make([]float64, d.dims)
	if text == "" {
		return vec
	}

	needed := d.dims * 4
	buf := make([]byte, 0, needed+sha256.Size)
	base := []byte(text)
	var counter uint32
	for len(buf) < needed {
		h := sha256.New()
		h.Write(base)
		var suffix [4]byte
		binary.LittleEndian.PutUint32(suffix[:], counter)
		h.Write(suffix[:])
		buf = h.Sum(buf)
		counter++
	}

	for i := 0; i < d.dims; i++ {
		n := binary.LittleEndian.Uint32(buf[i*4 : (i+1)*4])
		vec[i] = float64(n%10_000_000) / 10_000_000.0
	}
	return vec
}
