package kvcfg

import "testing"

func TestDefaults(t *testing.T) {
	c := New()
	if c.Timeouts().KV != defaultTimeouts.KV {
		t.Fatalf("KV timeout = %v, want %v", c.Timeouts().KV, defaultTimeouts.KV)
	}
	if !c.UseAnySession() {
		t.Fatal("UseAnySession default should be true")
	}
	if c.Logger() == nil {
		t.Fatal("Logger default should not be nil")
	}
}

func TestOptsApply(t *testing.T) {
	c := New(
		WithCredentials("user", "pencil"),
		WithBucket("travel-sample"),
		WithUseAnySession(false),
		WithTLS(true),
		WithDNSSRV(true),
	)

	user, pass := c.Credentials()
	if user != "user" || pass != "pencil" {
		t.Fatalf("Credentials = %q/%q, want user/pencil", user, pass)
	}
	if c.Bucket() != "travel-sample" {
		t.Fatalf("Bucket = %q, want travel-sample", c.Bucket())
	}
	if c.UseAnySession() {
		t.Fatal("UseAnySession should be false")
	}
	if !c.TLS() || !c.DNSSRVEnabled() {
		t.Fatal("TLS and DNSSRVEnabled should be true")
	}
}
