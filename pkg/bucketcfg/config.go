// Package bucketcfg holds the cluster-configuration data model (§3):
// the node list, vbucket map, and revision the configuration monitor and
// dispatcher reason about, plus the collections manifest shape.
package bucketcfg

import "encoding/json"

// Revision is the strictly-increasing (rev_epoch, rev) pair gating
// configuration replacement (§3 "Configuration replacement happens only
// when (rev_epoch, rev) is strictly greater than the currently stored
// value").
type Revision struct {
	Epoch int64
	Rev   int64
}

// After reports whether r strictly exceeds other, comparing epoch first.
func (r Revision) After(other Revision) bool {
	if r.Epoch != other.Epoch {
		return r.Epoch > other.Epoch
	}
	return r.Rev > other.Rev
}

// NodePorts is the per-service port map one node advertises.
type NodePorts struct {
	KV      int `json:"kv,omitempty"`
	Mgmt    int `json:"mgmt,omitempty"`
	Capi    int `json:"capi,omitempty"`
	N1QL    int `json:"n1ql,omitempty"`
	FTS     int `json:"fts,omitempty"`
	CBAS    int `json:"cbas,omitempty"`
	KVSSL   int `json:"kvSSL,omitempty"`
	MgmtSSL int `json:"mgmtSSL,omitempty"`
}

// Node is one member of a cluster configuration's node list.
type Node struct {
	Hostname string    `json:"hostname"`
	Ports    NodePorts `json:"services"`
	ThisNode bool      `json:"thisNode,omitempty"`
}

// Config is a cluster configuration snapshot: node list, optional bucket
// name, revision, and vbucket map (§3 "Cluster configuration").
type Config struct {
	Nodes    []Node     `json:"nodesExt"`
	Bucket   string     `json:"name,omitempty"`
	Revision Revision   `json:"-"`
	VBuckets [][]int    `json:"vBucketServerMap,omitempty"`
}

// rawRevision is how (rev_epoch, rev) actually appears on the wire,
// decoded separately because the two fields aren't nested the way the
// rest of the struct is.
type rawRevision struct {
	RevEpoch int64 `json:"revEpoch"`
	Rev      int64 `json:"rev"`
}

// Parse decodes a cluster-configuration JSON payload as sent by
// get_cluster_config responses and cluster_map_change_notification
// pushes (§4.F).
func Parse(body []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return Config{}, err
	}
	var rev rawRevision
	if err := json.Unmarshal(body, &rev); err != nil {
		return Config{}, err
	}
	cfg.Revision = Revision{Epoch: rev.RevEpoch, Rev: rev.Rev}
	return cfg, nil
}

// FillThisNode sets ThisNode on the first node whose hostname is empty,
// per §4.F "this node hostname filled in from the remote endpoint if
// absent" for pushed configurations that omit it.
func FillThisNode(cfg *Config, remoteHost string) {
	for i := range cfg.Nodes {
		if cfg.Nodes[i].Hostname == "" {
			cfg.Nodes[i].Hostname = remoteHost
			cfg.Nodes[i].ThisNode = true
			return
		}
	}
}

// VBucketFor returns the ordered node-index list ([active, replica1, …])
// for vbucket id, or nil if id is out of range.
func (c Config) VBucketFor(id int) []int {
	if id < 0 || id >= len(c.VBuckets) {
		return nil
	}
	return c.VBuckets[id]
}
