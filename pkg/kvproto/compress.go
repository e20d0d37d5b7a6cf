package kvproto

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

// bulkCompressionThreshold is the value size at or above which the faster
// SIMD-accelerated s2 encoder is used in place of the reference snappy
// encoder; both produce snappy-framed output so either is valid on the
// wire (§4.G "snappy enables value compression for writes").
const bulkCompressionThreshold = 32 * 1024

// CompressValue snappy-compresses value for the wire, returning the
// compressed bytes. Values at or above bulkCompressionThreshold are
// compressed with klauspost/compress/s2's snappy-compatible encoder for
// its faster throughput on large bodies; smaller values use the
// reference golang/snappy encoder. Both are decoded the same way by
// DecompressValue, since s2.EncodeSnappy emits the standard snappy
// block format.
func CompressValue(value []byte) []byte {
	if len(value) >= bulkCompressionThreshold {
		return s2.EncodeSnappy(nil, value)
	}
	return snappy.Encode(nil, value)
}

// DecompressValue reverses CompressValue, used when a response frame's
// datatype carries the snappy bit (§4.G).
func DecompressValue(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}
