package sasl

import (
	"strings"
	"testing"
)

// TestScramSHA256RFCVector reproduces the RFC 7677 SCRAM-SHA-256 worked
// example (user "user", password "pencil"), matching the scenario spec.md
// §8 lists as a testable property.
func TestScramSHA256RFCVector(t *testing.T) {
	const (
		cnonce          = "rOprNGfwEbeRWgbNEkqO"
		clientFirstBare = "n=user,r=" + cnonce
		serverFirst     = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
		wantProof       = "dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	)

	s := &scramSession{
		hash:            hashSHA256.new(),
		username:        "user",
		password:        "pencil",
		cnonce:          cnonce,
		clientFirstBare: clientFirstBare,
		state:           scramAwaitingChallenge,
	}

	done, clientFinal, err := s.Challenge([]byte(serverFirst))
	if err != nil {
		t.Fatalf("challengeServerFirst: %v", err)
	}
	if done {
		t.Fatalf("expected not done after server-first message")
	}
	if !strings.Contains(string(clientFinal), "p="+wantProof) {
		t.Fatalf("client-final = %q, want proof %q", clientFinal, wantProof)
	}
}

// TestScramServerSignatureMismatchRejected checks the universal invariant
// from spec.md §8: a tampered server signature must fail the handshake
// rather than silently completing it.
func TestScramServerSignatureMismatchRejected(t *testing.T) {
	const (
		cnonce          = "rOprNGfwEbeRWgbNEkqO"
		clientFirstBare = "n=user,r=" + cnonce
		serverFirst     = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	)

	s := &scramSession{
		hash:            hashSHA256.new(),
		username:        "user",
		password:        "pencil",
		cnonce:          cnonce,
		clientFirstBare: clientFirstBare,
		state:           scramAwaitingChallenge,
	}
	if _, _, err := s.Challenge([]byte(serverFirst)); err != nil {
		t.Fatalf("challengeServerFirst: %v", err)
	}

	tampered := "v=" + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	done, _, err := s.Challenge([]byte(tampered))
	if err == nil {
		t.Fatalf("expected server signature mismatch to be rejected")
	}
	if done {
		t.Fatalf("session must not report done on a rejected signature")
	}
}

func TestSelectMechanismPrefersStrongest(t *testing.T) {
	mechs := DefaultMechanisms()
	m, err := SelectMechanism("PLAIN SCRAM-SHA1 SCRAM-SHA256", mechs)
	if err != nil {
		t.Fatalf("SelectMechanism: %v", err)
	}
	if m.Name() != "SCRAM-SHA256" {
		t.Fatalf("got mechanism %q, want SCRAM-SHA256", m.Name())
	}
}
