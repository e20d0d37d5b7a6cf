package bucketcfg

import "testing"

func TestRevisionAfter(t *testing.T) {
	cases := []struct {
		a, b Revision
		want bool
	}{
		{Revision{1, 5}, Revision{1, 4}, true},
		{Revision{1, 4}, Revision{1, 5}, false},
		{Revision{1, 4}, Revision{1, 4}, false},
		{Revision{2, 0}, Revision{1, 999}, true},
		{Revision{1, 999}, Revision{2, 0}, false},
	}
	for _, c := range cases {
		if got := c.a.After(c.b); got != c.want {
			t.Errorf("%+v.After(%+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestParseConfigAndVBucketFor(t *testing.T) {
	body := []byte(`{
		"name": "travel-sample",
		"revEpoch": 3,
		"rev": 12,
		"nodesExt": [
			{"hostname": "node1", "services": {"kv": 11210, "mgmt": 8091}},
			{"services": {"kv": 11210, "mgmt": 8091}}
		],
		"vBucketServerMap": [[0, 1], [1, 0]]
	}`)

	cfg, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Revision != (Revision{Epoch: 3, Rev: 12}) {
		t.Fatalf("revision = %+v", cfg.Revision)
	}
	if got := cfg.VBucketFor(1); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("VBucketFor(1) = %v", got)
	}
	if cfg.VBucketFor(99) != nil {
		t.Fatalf("expected nil for out-of-range vbucket id")
	}

	FillThisNode(&cfg, "10.0.0.5")
	if !cfg.Nodes[1].ThisNode || cfg.Nodes[1].Hostname != "10.0.0.5" {
		t.Fatalf("FillThisNode did not fill the empty-hostname node: %+v", cfg.Nodes[1])
	}
	if cfg.Nodes[0].ThisNode {
		t.Fatalf("FillThisNode should not touch a node that already has a hostname")
	}
}

func TestParseManifest(t *testing.T) {
	body := []byte(`{
		"uid": "7",
		"scopes": [
			{"uid": "0", "name": "_default", "collections": [
				{"uid": "0", "name": "_default"}
			]},
			{"uid": "8", "name": "inventory", "collections": [
				{"uid": "9", "name": "hotel"},
				{"uid": "a", "name": "airline"}
			]}
		]
	}`)

	m, err := ParseManifest(body)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.UID != 7 {
		t.Fatalf("manifest uid = %d, want 7", m.UID)
	}
	if m.LogID == "" {
		t.Fatalf("expected a non-empty correlation id")
	}
	if len(m.Scopes) != 2 || m.Scopes[1].Collections[1].UID != 0xa {
		t.Fatalf("scopes = %+v", m.Scopes)
	}
}
