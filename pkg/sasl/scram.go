package sasl

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/util"
)

// hashKind identifies which digest a SCRAM mechanism variant uses.
type hashKind int

const (
	hashSHA1 hashKind = iota
	hashSHA256
	hashSHA512
)

func (h hashKind) new() func() hash.Hash {
	switch h {
	case hashSHA256:
		return sha256.New
	case hashSHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

func (h hashKind) name() string {
	switch h {
	case hashSHA256:
		return "SCRAM-SHA256"
	case hashSHA512:
		return "SCRAM-SHA512"
	default:
		return "SCRAM-SHA1"
	}
}

// scramMechanism is the Mechanism implementation shared by all three
// SCRAM-SHA variants (§4.C "SCRAM-SHA-{1,256,512}").
type scramMechanism struct {
	hash hashKind
	rand util.RandSource
}

func (m scramMechanism) Name() string { return m.hash.name() }

func (m scramMechanism) Authenticate(_ context.Context, username, password string) (Session, []byte, error) {
	src := m.rand
	if src == nil {
		src = util.SystemRand
	}
	nonce, err := util.RandomBytes(src, 24)
	if err != nil {
		return nil, nil, fmt.Errorf("sasl: generating client nonce: %w", err)
	}
	cnonce := base64.StdEncoding.EncodeToString(nonce)

	clientFirstBare := "n=" + escapeSaslName(username) + ",r=" + cnonce
	clientFirst := "n,," + clientFirstBare

	s := &scramSession{
		hash:            m.hash.new,
		username:        username,
		password:        password,
		cnonce:          cnonce,
		clientFirstBare: clientFirstBare,
		state:           scramAwaitingChallenge,
	}
	return s, []byte(clientFirst), nil
}

func escapeSaslName(name string) string {
	name = strings.ReplaceAll(name, "=", "=3D")
	return strings.ReplaceAll(name, ",", "=2C")
}

type scramState int

const (
	scramAwaitingChallenge scramState = iota
	scramAwaitingFinal
	scramDone
)

// scramSession implements RFC 5802 (no channel binding) as a state
// machine matching §4.C's three-step diagram.
type scramSession struct {
	hash            func() hash.Hash
	username        string
	password        string
	cnonce          string
	clientFirstBare string
	state           scramState

	serverKey []byte
	authMsg   string
}

func (s *scramSession) Challenge(serverBytes []byte) (bool, []byte, error) {
	switch s.state {
	case scramAwaitingChallenge:
		return s.challengeServerFirst(serverBytes)
	case scramAwaitingFinal:
		return s.challengeServerFinal(serverBytes)
	default:
		return false, nil, fmt.Errorf("sasl: scram Challenge called after completion: %w", kerr.ProtocolViolation)
	}
}

func (s *scramSession) challengeServerFirst(serverFirst []byte) (bool, []byte, error) {
	fields, err := parseScramFields(string(serverFirst))
	if err != nil {
		return false, nil, err
	}
	rnonce := fields["r"]
	saltB64 := fields["s"]
	iterStr := fields["i"]
	if rnonce == "" || saltB64 == "" || iterStr == "" {
		return false, nil, fmt.Errorf("sasl: malformed server-first message %q: %w", serverFirst, kerr.ProtocolViolation)
	}
	if !strings.HasPrefix(rnonce, s.cnonce) {
		return false, nil, fmt.Errorf("sasl: server nonce %q does not extend client nonce %q: %w", rnonce, s.cnonce, kerr.ProtocolViolation)
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, nil, fmt.Errorf("sasl: invalid salt encoding: %w", err)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations < 1 {
		return false, nil, fmt.Errorf("sasl: invalid iteration count %q: %w", iterStr, kerr.ProtocolViolation)
	}

	hLen := s.hash().Size()
	saltedPassword := pbkdf2.Key([]byte(s.password), salt, iterations, hLen, s.hash)

	clientKey := hmacSum(s.hash, saltedPassword, []byte("Client Key"))
	storedKeyHash := s.hash()
	storedKeyHash.Write(clientKey)
	storedKey := storedKeyHash.Sum(nil)

	clientFinalWithoutProof := "c=biws,r=" + rnonce
	authMessage := s.clientFirstBare + "," + string(serverFirst) + "," + clientFinalWithoutProof
	s.authMsg = authMessage

	clientSignature := hmacSum(s.hash, storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	s.serverKey = hmacSum(s.hash, saltedPassword, []byte("Server Key"))

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	s.state = scramAwaitingFinal
	return false, []byte(clientFinal), nil
}

func (s *scramSession) challengeServerFinal(serverFinal []byte) (bool, []byte, error) {
	fields, err := parseScramFields(string(serverFinal))
	if err != nil {
		return false, nil, err
	}
	sigB64 := fields["v"]
	if sigB64 == "" {
		return false, nil, fmt.Errorf("sasl: malformed server-final message %q: %w", serverFinal, kerr.ProtocolViolation)
	}
	gotSig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, nil, fmt.Errorf("sasl: invalid server signature encoding: %w", err)
	}

	wantSig := hmacSum(func() hash.Hash { return s.hash() }, s.serverKey, []byte(s.authMsg))
	if !hmac.Equal(gotSig, wantSig) {
		return false, nil, fmt.Errorf("sasl: server signature mismatch: %w", kerr.ServerSignatureMismatch)
	}

	s.state = scramDone
	return true, nil, nil
}

func hmacSum(h func() hash.Hash, key, msg []byte) []byte {
	mac := hmac.New(h, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// parseScramFields parses a comma-separated "k=v" message into a map.
func parseScramFields(msg string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("sasl: malformed scram field %q: %w", part, kerr.ProtocolViolation)
		}
		fields[part[:eq]] = part[eq+1:]
	}
	return fields, nil
}
