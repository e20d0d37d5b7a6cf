package dispatch

import "testing"

func TestVbucketForIsStableAndInRange(t *testing.T) {
	const n = 1024
	seen := map[uint16]int{}
	for _, key := range []string{"a", "b", "user::1234", "document-id-789", ""} {
		vb := vbucketFor([]byte(key), n)
		if vb >= n {
			t.Fatalf("vbucketFor(%q) = %d, out of range [0,%d)", key, vb, n)
		}
		again := vbucketFor([]byte(key), n)
		if again != vb {
			t.Fatalf("vbucketFor(%q) not stable: %d vs %d", key, vb, again)
		}
		seen[vb]++
	}
	if len(seen) < 2 {
		t.Fatalf("expected distinct keys to spread across vbuckets, got %+v", seen)
	}
}
