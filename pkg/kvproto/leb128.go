package kvproto

import "fmt"

// EncodeLEB128 appends the unsigned LEB128 encoding of n to dst (§3
// "Document identity": the collection UID prefix on keys).
func EncodeLEB128(dst []byte, n uint32) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		dst = append(dst, b)
		return dst
	}
}

// DecodeLEB128 decodes an unsigned LEB128 value from the front of src,
// returning the value and the number of bytes consumed.
func DecodeLEB128(src []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, b := range src {
		if shift >= 32 {
			return 0, 0, fmt.Errorf("kvproto: leb128 value exceeds 32 bits")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("kvproto: truncated leb128 sequence")
}

// EncodeCollectionKey prefixes key with the LEB128 encoding of
// collectionUID, unless collectionUID is the default collection (0), in
// which case the prefix is suppressed (§3, §8 "Boundary behaviors").
func EncodeCollectionKey(collectionUID uint32, key []byte) []byte {
	if collectionUID == 0 {
		return key
	}
	out := EncodeLEB128(make([]byte, 0, 5+len(key)), collectionUID)
	return append(out, key...)
}

// MaxKeyLength is the largest key accepted pre-send, before any collection
// prefix is added (§3 "Document identity", §8 "Boundary behaviors").
const MaxKeyLength = 250
