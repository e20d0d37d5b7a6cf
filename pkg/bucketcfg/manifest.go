package bucketcfg

import (
	"encoding/json"
	"strconv"

	"github.com/couchbaselabs/kvcore/pkg/util"
)

// Collection is one named collection within a scope, tagged with its
// numeric UID (§3 "Collections manifest").
type Collection struct {
	UID  uint32
	Name string
}

// Scope is one named scope within a manifest, with its collections.
type Scope struct {
	UID         uint32
	Name        string
	Collections []Collection
}

// Manifest is a collections-manifest snapshot: a manifest UID plus the
// set of scopes it defines. LogID is a random per-snapshot UUID used
// purely to correlate log lines about this manifest instance, matching
// `collections_manifest.hxx`'s debugging handle.
type Manifest struct {
	UID    uint64
	Scopes []Scope
	LogID  string
}

type wireCollection struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

type wireScope struct {
	UID         string           `json:"uid"`
	Name        string           `json:"name"`
	Collections []wireCollection `json:"collections"`
}

type wireManifest struct {
	UID    string      `json:"uid"`
	Scopes []wireScope `json:"scopes"`
}

// ParseManifest decodes a get_collections_manifest response body. UIDs
// are transmitted as hex strings on this endpoint, unlike the binary
// big-endian UIDs get_collection_id's extras carry.
func ParseManifest(body []byte) (Manifest, error) {
	var w wireManifest
	if err := json.Unmarshal(body, &w); err != nil {
		return Manifest{}, err
	}

	manifestUID, err := strconv.ParseUint(w.UID, 16, 64)
	if err != nil {
		return Manifest{}, err
	}

	m := Manifest{UID: manifestUID, LogID: util.NewV4()}
	for _, ws := range w.Scopes {
		scopeUID, err := strconv.ParseUint(ws.UID, 16, 32)
		if err != nil {
			return Manifest{}, err
		}
		scope := Scope{UID: uint32(scopeUID), Name: ws.Name}
		for _, wc := range ws.Collections {
			collUID, err := strconv.ParseUint(wc.UID, 16, 32)
			if err != nil {
				return Manifest{}, err
			}
			scope.Collections = append(scope.Collections, Collection{UID: uint32(collUID), Name: wc.Name})
		}
		m.Scopes = append(m.Scopes, scope)
	}
	return m, nil
}
