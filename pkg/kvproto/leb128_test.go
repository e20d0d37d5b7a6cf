package kvproto

import "testing"

func TestLEB128RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 1 << 20, 1<<32 - 1}
	for _, n := range cases {
		enc := EncodeLEB128(nil, n)
		got, consumed, err := DecodeLEB128(enc)
		if err != nil {
			t.Fatalf("n=%d: DecodeLEB128: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d: decoded %d", n, got)
		}
		if consumed != len(enc) {
			t.Fatalf("n=%d: consumed %d, want %d", n, consumed, len(enc))
		}
	}
}

func TestEncodeCollectionKeySuppressesDefaultCollection(t *testing.T) {
	key := []byte("my-doc")
	if got := EncodeCollectionKey(0, key); string(got) != string(key) {
		t.Fatalf("default collection (uid=0) must not be prefixed, got %x", got)
	}
	prefixed := EncodeCollectionKey(42, key)
	if len(prefixed) <= len(key) {
		t.Fatalf("non-default collection uid must add a LEB128 prefix")
	}
	n, consumed, err := DecodeLEB128(prefixed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 || string(prefixed[consumed:]) != string(key) {
		t.Fatalf("round trip broken: uid=%d rest=%q", n, prefixed[consumed:])
	}
}

func TestKeyLengthBoundary(t *testing.T) {
	if MaxKeyLength != 250 {
		t.Fatalf("MaxKeyLength = %d, want 250", MaxKeyLength)
	}
}
