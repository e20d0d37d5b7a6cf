// Package sasl implements the client side of the KV protocol's
// authentication handshake (§4.C "SASL engine"): mechanism selection
// followed by a PLAIN one-shot exchange or a SCRAM-SHA-{1,256,512}
// multi-round challenge/response.
package sasl

import (
	"context"
	"strings"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Mechanism names and starts a sasl session, mirroring the shape the
// teacher package (franz-go's pkg/sasl) uses for its Mechanism interface.
type Mechanism interface {
	Name() string
	Authenticate(ctx context.Context, username, password string) (Session, []byte, error)
}

// Session drives one mechanism's challenge/response state machine
// (§4.C "step(bytes) -> (error, next-bytes)"). Challenge returns the
// bytes to send next and whether authentication is complete; a non-nil
// error means the handshake failed and must not continue.
type Session interface {
	Challenge(serverBytes []byte) (done bool, clientBytes []byte, err error)
}

// mechanismPriority orders mechanisms from strongest to weakest, per
// §4.C "the client picks the strongest in the fixed order".
var mechanismPriority = []string{"SCRAM-SHA512", "SCRAM-SHA256", "SCRAM-SHA1", "PLAIN"}

// SelectMechanism parses the server's space-separated mechanism
// advertisement and returns the strongest mechanism both sides support.
func SelectMechanism(serverAdvertised string, available map[string]Mechanism) (Mechanism, error) {
	offered := make(map[string]bool)
	for _, name := range strings.Fields(serverAdvertised) {
		offered[name] = true
	}
	for _, name := range mechanismPriority {
		if !offered[name] {
			continue
		}
		if m, ok := available[name]; ok {
			return m, nil
		}
	}
	return nil, kerr.NoMech
}

// DefaultMechanisms returns PLAIN and all three SCRAM variants keyed by
// their protocol name, ready to hand to SelectMechanism.
func DefaultMechanisms() map[string]Mechanism {
	return map[string]Mechanism{
		"PLAIN":        Plain{},
		"SCRAM-SHA1":   scramMechanism{hash: hashSHA1},
		"SCRAM-SHA256": scramMechanism{hash: hashSHA256},
		"SCRAM-SHA512": scramMechanism{hash: hashSHA512},
	}
}
