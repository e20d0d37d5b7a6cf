package dnssrv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFirstNameserver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	if err := os.WriteFile(path, []byte("# comment\nnameserver 10.0.0.1\nnameserver 10.0.0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got := firstNameserverFromReader(f)
	if got != "10.0.0.1:53" {
		t.Fatalf("firstNameserverFromReader = %q, want 10.0.0.1:53", got)
	}
}

func TestNewFallsBackWhenEmpty(t *testing.T) {
	r := New("")
	if r.nameserver != fallbackServer {
		t.Fatalf("nameserver = %q, want %q", r.nameserver, fallbackServer)
	}
}

func TestNewKeepsExplicitNameserver(t *testing.T) {
	r := New("192.168.1.1:53")
	if r.nameserver != "192.168.1.1:53" {
		t.Fatalf("nameserver = %q, want 192.168.1.1:53", r.nameserver)
	}
}
