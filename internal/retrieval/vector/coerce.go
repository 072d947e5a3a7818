package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

const maxSkippedSample = 8

// Stats counts how stored embeddings were coerced during one ranking pass.
type Stats struct {
	// Normalized embeddings already matched the query dimension.
	Normalized int
	// Short embeddings were zero-padded or truncated to the query dimension.
	Short int
	// Skipped embeddings could not be used at all.
	Skipped int
	// SkippedSample holds the first few skipped candidate positions.
	SkippedSample []int
}

// Total returns the number of coerced embeddings.
func (s Stats) Total() int { return s.Normalized + s.Short + s.Skipped }

// Record adds the counts to the coercion counter.
func (s Stats) Record() {
	metrics.CoercionTotal.WithLabelValues("normalized").Add(float64(s.Normalized))
	metrics.CoercionTotal.WithLabelValues("short").Add(float64(s.Short))
	metrics.CoercionTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
}

func (s *Stats) skip(idx int) {
	s.Skipped++
	if len(s.SkippedSample) < maxSkippedSample {
		s.SkippedSample = append(s.SkippedSample, idx)
	}
}

// Coerce converts a stored embedding at candidate position idx to a vector of
// length dim. Shorter vectors are zero-padded and longer ones truncated; both
// count as Short. Nil, empty, non-finite or unparsable embeddings return nil
// and count as Skipped, and so do byte or string values made only of
// printable ASCII that are not a JSON array. dim <= 0 keeps the stored
// length. Coerce never panics.
func Coerce(raw any, idx, dim int, stats *Stats) (vec []float64) {
	if stats == nil {
		stats = &Stats{}
	}
	defer func() {
		if recover() != nil {
			vec = nil
			stats.skip(idx)
		}
	}()

	v, ok := decode(raw)
	if !ok || len(v) == 0 || !finite(v) {
		stats.skip(idx)
		return nil
	}

	switch {
	case dim <= 0 || len(v) == dim:
		stats.Normalized++
		return v
	case len(v) < dim:
		stats.Short++
		padded := make([]float64, dim)
		copy(padded, v)
		return padded
	default:
		stats.Short++
		return v[:dim:dim]
	}
}

func decode(raw any) ([]float64, bool) {
	switch v := raw.(type) {
	case []byte:
		return decodeBytes(v)
	case string:
		return decodeBytes([]byte(v))
	case json.RawMessage:
		return decodeBytes(v)
	}
	vec, err := materialize(raw)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// decodeBytes accepts a JSON array of numbers or a little-endian float32 blob.
func decodeBytes(b []byte) ([]float64, bool) {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '[' {
		var vec []float64
		if err := json.Unmarshal(trimmed, &vec); err == nil {
			return vec, true
		}
	}
	if isText(b) {
		return nil, false
	}
	f32, ok := DecodeFloat32LE(b)
	if !ok {
		return nil, false
	}
	return fromFloat32(f32), true
}

// EncodeFloat32LE packs v as little-endian float32 values.
func EncodeFloat32LE(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeFloat32LE unpacks a little-endian float32 blob. It fails on empty
// input or a length that is not a multiple of 4.
func DecodeFloat32LE(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, true
}

// isText reports whether b holds only printable ASCII and common whitespace.
// Such a value is stored text, never a float32 blob.
func isText(b []byte) bool {
	for _, c := range b {
		switch {
		case c == '\t' || c == '\n' || c == '\r':
		case c < 0x20 || c > 0x7e:
			return false
		}
	}
	return true
}

func finite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
