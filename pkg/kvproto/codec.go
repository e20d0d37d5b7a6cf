package kvproto

import (
	"encoding/binary"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/kvlog"
)

// Result is the outcome of one Decoder.Next call (§4.A).
type Result int

const (
	ResultOK Result = iota
	ResultNeedData
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNeedData:
		return "need_data"
	default:
		return "failure"
	}
}

// Decoder accumulates bytes from a stream and yields complete frames
// (§4.A "Frame codec"). It is not safe for concurrent use; callers own
// serialization (per §5, a connection's codec is touched only on that
// connection's executor).
type Decoder struct {
	buf []byte
	log kvlog.Logger
}

// NewDecoder returns a Decoder that logs resynchronization warnings
// through log (kvlog.Nop{} if nil).
func NewDecoder(log kvlog.Logger) *Decoder {
	if log == nil {
		log = kvlog.Nop{}
	}
	return &Decoder{log: log}
}

// Feed appends newly read bytes to the decode buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to decode one frame from the buffer. It never blocks; the
// caller is responsible for reading more bytes and calling Feed again when
// Next returns ResultNeedData.
func (d *Decoder) Next() (*Frame, Result, error) {
	if len(d.buf) < HeaderSize {
		return nil, ResultNeedData, nil
	}

	hdr, err := decodeHeader(d.buf[:HeaderSize])
	if err != nil {
		return nil, ResultFailure, err
	}

	bodyEnd := HeaderSize + int(hdr.BodyLength)
	if len(d.buf) < bodyEnd {
		return nil, ResultNeedData, nil
	}

	body := d.buf[HeaderSize:bodyEnd]
	frame, err := splitBody(hdr, body)
	if err != nil {
		return nil, ResultFailure, err
	}

	rest := d.buf[bodyEnd:]
	// best-effort resynchronization (§4.A): sanity-check the next frame's
	// leading magic byte; if it's not one of the six valid magics, the
	// buffer is unrecoverable and we discard it rather than attempt to
	// hunt for the next valid frame boundary.
	if len(rest) > 0 && !Magic(rest[0]).IsValid() {
		d.log.Log(kvlog.LevelWarn, "discarding decode buffer after invalid magic",
			"opcode", hdr.Opcode, "opaque", hdr.Opaque, "next_magic", fmt.Sprintf("0x%02x", rest[0]), "discarded_bytes", len(rest))
		d.buf = d.buf[:0]
	} else {
		d.buf = append(d.buf[:0], rest...)
	}

	return frame, ResultOK, nil
}

// Pending reports how many undecoded bytes are currently buffered.
func (d *Decoder) Pending() int { return len(d.buf) }

func decodeHeader(b []byte) (Header, error) {
	var h Header
	magic := Magic(b[0])
	if !magic.IsValid() {
		return h, fmt.Errorf("kvproto: invalid magic 0x%02x", b[0])
	}
	h.Magic = magic
	h.Opcode = b[1]

	rawKeyLen := binary.BigEndian.Uint16(b[2:4])
	if magic.IsAlt() {
		h.FramingLen = uint8(rawKeyLen >> 8)
		h.KeyLength = rawKeyLen & 0x00ff
	} else {
		h.KeyLength = rawKeyLen
	}

	h.ExtrasLen = b[4]
	h.Datatype = Datatype(b[5])

	specific := binary.BigEndian.Uint16(b[6:8])
	if magic.IsResponse() {
		h.StatusCode = specific
	} else {
		h.Vbucket = specific
	}

	h.BodyLength = binary.BigEndian.Uint32(b[8:12])
	h.Opaque = binary.BigEndian.Uint32(b[12:16])
	h.Cas = binary.BigEndian.Uint64(b[16:24])
	return h, nil
}

func splitBody(h Header, body []byte) (*Frame, error) {
	want := int(h.FramingLen) + int(h.ExtrasLen) + int(h.KeyLength)
	if want > len(body) {
		return nil, fmt.Errorf("kvproto: body too short for framing+extras+key: have %d want >= %d", len(body), want)
	}

	f := &Frame{Header: h}
	off := 0
	if h.FramingLen > 0 {
		f.FramingExtra = body[off : off+int(h.FramingLen)]
		off += int(h.FramingLen)
	}
	if h.ExtrasLen > 0 {
		f.Extras = body[off : off+int(h.ExtrasLen)]
		off += int(h.ExtrasLen)
	}
	if h.KeyLength > 0 {
		f.Key = body[off : off+int(h.KeyLength)]
		off += int(h.KeyLength)
	}
	if off < len(body) {
		f.Value = body[off:]
	}
	return f, nil
}

// Encoder produces wire bytes for outbound frames (§4.A "Encoding").
type Encoder struct{}

// Encode appends the wire representation of f to dst and returns the
// extended slice. For alt-request magic, the framing-extras length is
// packed into the high byte of the 2-byte key-length field and the key
// length into the low byte, per §4.A.
func (Encoder) Encode(dst []byte, f *Frame) ([]byte, error) {
	if !f.Header.Magic.IsValid() {
		return nil, fmt.Errorf("kvproto: invalid magic 0x%02x", uint8(f.Header.Magic))
	}
	if len(f.FramingExtra) > 0 && !f.Header.Magic.IsAlt() {
		return nil, fmt.Errorf("kvproto: framing extras present but magic %s is not an alt magic", f.Header.Magic)
	}
	if len(f.Key) > 0xff && f.Header.Magic.IsAlt() {
		return nil, fmt.Errorf("kvproto: key length %d exceeds alt-frame 8-bit field", len(f.Key))
	}

	body := f.bodyLength()
	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize)...)
	hdr := dst[start : start+HeaderSize]

	hdr[0] = byte(f.Header.Magic)
	hdr[1] = f.Header.Opcode

	if f.Header.Magic.IsAlt() {
		keyLenField := uint16(len(f.FramingExtra))<<8 | uint16(len(f.Key))&0x00ff
		binary.BigEndian.PutUint16(hdr[2:4], keyLenField)
	} else {
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(f.Key)))
	}

	hdr[4] = uint8(len(f.Extras))
	hdr[5] = byte(f.Header.Datatype)

	if f.Header.Magic.IsResponse() {
		binary.BigEndian.PutUint16(hdr[6:8], f.Header.StatusCode)
	} else {
		binary.BigEndian.PutUint16(hdr[6:8], f.Header.Vbucket)
	}

	binary.BigEndian.PutUint32(hdr[8:12], body)
	binary.BigEndian.PutUint32(hdr[12:16], f.Header.Opaque)
	binary.BigEndian.PutUint64(hdr[16:24], f.Header.Cas)

	dst = append(dst, f.FramingExtra...)
	dst = append(dst, f.Extras...)
	dst = append(dst, f.Key...)
	dst = append(dst, f.Value...)
	return dst, nil
}
