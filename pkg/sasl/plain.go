package sasl

import (
	"context"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Plain implements the PLAIN mechanism: one shot, no step phase
// (§4.C "PLAIN", ext/couchbase/cbsasl/plain/plain.cc).
type Plain struct{}

func (Plain) Name() string { return "PLAIN" }

func (Plain) Authenticate(_ context.Context, username, password string) (Session, []byte, error) {
	buf := make([]byte, 0, len(username)+len(password)+2)
	buf = append(buf, 0)
	buf = append(buf, username...)
	buf = append(buf, 0)
	buf = append(buf, password...)
	return plainSession{}, buf, nil
}

type plainSession struct{}

// Challenge on a one-shot mechanism is always a protocol violation: the
// server must not send a continue for PLAIN (§4.C "No step phase; if the
// server sends a continue, that is a protocol error").
func (plainSession) Challenge(serverBytes []byte) (bool, []byte, error) {
	return false, nil, fmt.Errorf("sasl: PLAIN received unexpected continuation: %w", kerr.ProtocolViolation)
}
