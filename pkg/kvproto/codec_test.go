package kvproto

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name: "get request, no body",
			frame: &Frame{Header: Header{
				Magic: MagicClientRequest, Opcode: uint8(OpGet), Vbucket: 42, Opaque: 7,
			}},
		},
		{
			name: "get response with value",
			frame: &Frame{
				Header: Header{Magic: MagicClientResponse, Opcode: uint8(OpGet), Opaque: 7, Cas: 123, StatusCode: uint16(StatusSuccess), ExtrasLen: 4, BodyLength: 21},
				Extras: []byte{0, 0, 0, 1}, // flags
				Value:  []byte(`{"hello":"world"}`),
			},
		},
		{
			name: "alt request with framing extras and key",
			frame: &Frame{
				Header:       Header{Magic: MagicAltClientRequest, Opcode: uint8(OpUpsert), Vbucket: 3, Opaque: 99, FramingLen: 2, KeyLength: 10, BodyLength: 17},
				FramingExtra: DurabilityExtra{Level: DurabilityMajority}.Encode(nil),
				Key:          []byte("document-1"),
				Value:        []byte("value"),
			},
		},
		{
			name: "not-my-vbucket response carries new config body",
			frame: &Frame{
				Header: Header{Magic: MagicClientResponse, Opcode: uint8(OpUpsert), Opaque: 5, StatusCode: uint16(StatusNotMyVbucket), BodyLength: 9},
				Value:  []byte(`{"rev":2}`),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var enc Encoder
			buf, err := enc.Encode(nil, tc.frame)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			d := NewDecoder(nil)
			d.Feed(buf)
			got, result, err := d.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if result != ResultOK {
				t.Fatalf("Next result = %v, want ok", result)
			}
			if diff := cmp.Diff(tc.frame, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("decode(encode(x)) mismatch (-want +got):\n%s\nwant: %s\ngot: %s",
					diff, spew.Sdump(tc.frame), spew.Sdump(got))
			}

			// re-encode the decoded frame and expect byte-identical output
			// (encode(decode(f)) == f).
			buf2, err := enc.Encode(nil, got)
			if err != nil {
				t.Fatalf("re-Encode: %v", err)
			}
			if diff := cmp.Diff(buf, buf2); diff != "" {
				t.Fatalf("encode(decode(f)) != f (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecoderNeedsData(t *testing.T) {
	d := NewDecoder(nil)
	d.Feed([]byte{0x81, 0x00})
	_, result, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if result != ResultNeedData {
		t.Fatalf("result = %v, want need_data", result)
	}
}

func TestDecoderResyncOnInvalidMagic(t *testing.T) {
	var enc Encoder
	good, err := enc.Encode(nil, &Frame{Header: Header{Magic: MagicClientResponse, Opcode: uint8(OpGet), StatusCode: uint16(StatusSuccess)}})
	if err != nil {
		t.Fatal(err)
	}
	garbage := []byte{0xff, 0xff, 0xff}

	d := NewDecoder(nil)
	d.Feed(append(append([]byte{}, good...), garbage...))

	_, result, err := d.Next()
	if err != nil || result != ResultOK {
		t.Fatalf("first Next() = %v, %v", result, err)
	}
	if d.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after resync discard", d.Pending())
	}
}

func TestEncodeRejectsFramingExtrasOnNonAltMagic(t *testing.T) {
	var enc Encoder
	_, err := enc.Encode(nil, &Frame{
		Header:       Header{Magic: MagicClientRequest, Opcode: uint8(OpUpsert)},
		FramingExtra: []byte{0x21},
	})
	if err == nil {
		t.Fatal("expected error for framing extras on non-alt magic")
	}
}
