// Package kvproto implements the KV binary protocol's frame layer: the
// 24-byte header, magic/opcode/status/datatype constants, and the
// nibble-packed framing-extras used by alt-request/alt-response frames
// (§3, §6).
package kvproto

import "fmt"

// Magic identifies the frame's direction and shape (§3 "Frame").
type Magic uint8

const (
	MagicClientRequest     Magic = 0x80
	MagicAltClientRequest  Magic = 0x08
	MagicClientResponse    Magic = 0x81
	MagicAltClientResponse Magic = 0x18
	MagicServerRequest     Magic = 0x82
	MagicServerResponse    Magic = 0x83
)

// IsValid reports whether m is one of the six magics the protocol defines.
func (m Magic) IsValid() bool {
	switch m {
	case MagicClientRequest, MagicAltClientRequest,
		MagicClientResponse, MagicAltClientResponse,
		MagicServerRequest, MagicServerResponse:
		return true
	}
	return false
}

// IsAlt reports whether m is one of the two alt-frame magics, in which the
// high byte of the key-length field carries framing-extras length instead.
func (m Magic) IsAlt() bool {
	return m == MagicAltClientRequest || m == MagicAltClientResponse
}

// IsResponse reports whether m denotes a frame flowing server->client.
func (m Magic) IsResponse() bool {
	return m == MagicClientResponse || m == MagicAltClientResponse || m == MagicServerResponse
}

func (m Magic) String() string {
	switch m {
	case MagicClientRequest:
		return "client_request"
	case MagicAltClientRequest:
		return "alt_client_request"
	case MagicClientResponse:
		return "client_response"
	case MagicAltClientResponse:
		return "alt_client_response"
	case MagicServerRequest:
		return "server_request"
	case MagicServerResponse:
		return "server_response"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(m))
	}
}

// Datatype is a bitset describing the value's encoding (§3 "Frame").
type Datatype uint8

const (
	DatatypeRaw    Datatype = 0x00
	DatatypeJSON   Datatype = 0x01
	DatatypeSnappy Datatype = 0x02
	DatatypeXattr  Datatype = 0x04
)

func (d Datatype) HasJSON() bool   { return d&DatatypeJSON != 0 }
func (d Datatype) HasSnappy() bool { return d&DatatypeSnappy != 0 }
func (d Datatype) HasXattr() bool  { return d&DatatypeXattr != 0 }

// HeaderSize is the fixed size of a KV frame header (§3 "Frame").
const HeaderSize = 24

// Header is the decoded 24-byte KV frame header. Status and Vbucket share
// wire offset 6-7: Vbucket is populated in requests, StatusCode in
// responses (§3).
type Header struct {
	Magic       Magic
	Opcode      uint8
	KeyLength   uint16 // low byte of wire field in alt frames
	FramingLen  uint8  // high byte of wire field in alt frames; 0 in non-alt frames
	ExtrasLen   uint8
	Datatype    Datatype
	Vbucket     uint16 // requests
	StatusCode  uint16 // responses
	BodyLength  uint32
	Opaque      uint32
	Cas         uint64
}

// Frame is a fully decoded KV protocol message: header plus its four body
// sections in wire order (§3 "Body layout").
type Frame struct {
	Header       Header
	FramingExtra []byte
	Extras       []byte
	Key          []byte
	Value        []byte
}

// Status returns the response status code; meaningless on a request frame.
func (f *Frame) Status() uint16 { return f.Header.StatusCode }

// bodyLength computes the total-body-length invariant from §3:
// "Frame total body length equals framing-extras + extras + key + value".
func (f *Frame) bodyLength() uint32 {
	return uint32(len(f.FramingExtra) + len(f.Extras) + len(f.Key) + len(f.Value))
}
