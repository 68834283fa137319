// Package security holds the resource bounds applied to untrusted input and
// the standard security handler used to open encrypted documents.
package security

import "time"

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion attacks (e.g., zip bombs, stack overflows).
type Limits struct {
	// Maximum ratio of decoded to encoded size for a single stream. Default: 100.
	MaxDecodeRatio float64

	// Streams smaller than this are exempt from the ratio check, since a few
	// bytes of Flate legitimately expand a lot. Default: 0 (always checked).
	RatioFloor int64

	// Maximum decompressed stream size. Default: 256 MB.
	MaxDecompressedSize int64

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum form XObject nesting depth. Default: 16.
	MaxXObjectDepth int

	// Maximum array/dictionary nesting while scanning. Default: 256.
	MaxNesting int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum number of objects inside one object stream. Default: 100,000.
	MaxObjectStreamSize int

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecodeRatio:      100,
		MaxDecompressedSize: 256 * 1024 * 1024,
		MaxXRefDepth:        50,
		MaxXObjectDepth:     16,
		MaxNesting:          256,
		MaxStringLength:     10 * 1024 * 1024,
		MaxObjectStreamSize: 100000,
		MaxDecodeTime:       30 * time.Second,
	}
}

// DecodeBudget returns how many decoded bytes a stream with encodedLen
// input bytes may produce. Zero means unbounded.
func (l Limits) DecodeBudget(encodedLen int64) int64 {
	budget := l.MaxDecompressedSize
	if l.MaxDecodeRatio > 0 {
		base := encodedLen
		if base < l.RatioFloor {
			base = l.RatioFloor
		}
		byRatio := int64(float64(base) * l.MaxDecodeRatio)
		if budget <= 0 || byRatio < budget {
			budget = byRatio
		}
	}
	return budget
}
