package kvproto

import (
	"encoding/binary"
	"fmt"
)

// Framing-extras identifier nibble values (§6 "Wire (KV)"): entries are
// nibble-packed as [id:4bit][len:4bit] followed by len bytes of payload.
const (
	framingIDBarrier    = 1
	framingIDDurability = 2
)

// DurabilityLevel is the enhanced-durability level requested on a write
// (§4.B, §6).
type DurabilityLevel uint8

const (
	DurabilityNone                      DurabilityLevel = 0x00
	DurabilityMajority                  DurabilityLevel = 0x01
	DurabilityMajorityAndPersistActive  DurabilityLevel = 0x02
	DurabilityPersistToMajority         DurabilityLevel = 0x03
)

func (d DurabilityLevel) IsValid() bool {
	switch d {
	case DurabilityNone, DurabilityMajority, DurabilityMajorityAndPersistActive, DurabilityPersistToMajority:
		return true
	}
	return false
}

// DurabilityExtra is the decoded durability framing-extras entry: a level
// and an optional timeout override in milliseconds, sent only when
// HasTimeout is true (§4.B).
type DurabilityExtra struct {
	Level      DurabilityLevel
	TimeoutMS  uint16
	HasTimeout bool
}

// Encode appends this durability entry's framing-extras bytes (one nibble
// header byte plus 1 or 3 payload bytes) to dst.
func (d DurabilityExtra) Encode(dst []byte) []byte {
	if d.HasTimeout {
		dst = append(dst, byte(framingIDDurability<<4|3))
		dst = append(dst, byte(d.Level))
		var tb [2]byte
		binary.BigEndian.PutUint16(tb[:], d.TimeoutMS)
		dst = append(dst, tb[:]...)
	} else {
		dst = append(dst, byte(framingIDDurability<<4|1))
		dst = append(dst, byte(d.Level))
	}
	return dst
}

// BarrierExtra appends the zero-length barrier framing-extras entry.
func BarrierExtra(dst []byte) []byte {
	return append(dst, byte(framingIDBarrier<<4|0))
}

// ParseFramingExtras walks a frame's framing-extras section, invoking fn
// for each nibble-packed entry with its id and payload.
func ParseFramingExtras(raw []byte, fn func(id uint8, payload []byte) error) error {
	for off := 0; off < len(raw); {
		b := raw[off]
		id := b >> 4
		length := int(b & 0x0f)
		off++
		if off+length > len(raw) {
			return fmt.Errorf("kvproto: framing extras entry id=%d length=%d overruns buffer", id, length)
		}
		if err := fn(id, raw[off:off+length]); err != nil {
			return err
		}
		off += length
	}
	return nil
}

// ParseDurability extracts a durability framing-extras entry, if present.
func ParseDurability(raw []byte) (DurabilityExtra, bool, error) {
	var out DurabilityExtra
	found := false
	err := ParseFramingExtras(raw, func(id uint8, payload []byte) error {
		if id != framingIDDurability {
			return nil
		}
		switch len(payload) {
		case 1:
			out = DurabilityExtra{Level: DurabilityLevel(payload[0])}
		case 3:
			out = DurabilityExtra{
				Level:      DurabilityLevel(payload[0]),
				TimeoutMS:  binary.BigEndian.Uint16(payload[1:3]),
				HasTimeout: true,
			}
		default:
			return fmt.Errorf("kvproto: durability framing extras has unexpected length %d", len(payload))
		}
		found = true
		return nil
	})
	return out, found, err
}
