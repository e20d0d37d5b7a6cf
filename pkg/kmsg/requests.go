package kmsg

import (
	"encoding/binary"

	"github.com/couchbaselabs/kvcore/pkg/kvproto"
)

// GetRequest fetches a document by key (§4.B "get").
type GetRequest struct {
	Key []byte
}

func (r *GetRequest) Opcode() kvproto.Opcode { return kvproto.OpGet }
func (r *GetRequest) Alt() bool              { return false }
func (r *GetRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, r.Key, nil
}

// MutationRequest covers insert/upsert/replace/remove/append/prepend:
// insert/upsert/replace send the {flags, expiry} extras, remove/append/
// prepend send no extras (Flags/Expiry are ignored for them), and all
// carry an optional durability framing extra
// (§4.B "write-like opcodes that support enhanced durability").
type MutationRequest struct {
	Op         kvproto.Opcode
	Key        []byte
	Value      []byte
	Flags      uint32
	ExpirySecs uint32
	Cas        uint64
	Durability *kvproto.DurabilityExtra
}

func (r *MutationRequest) Opcode() kvproto.Opcode { return r.Op }
func (r *MutationRequest) Alt() bool              { return r.Durability != nil }

func (r *MutationRequest) Assemble() (framingExtras, extras, key, value []byte) {
	if r.Durability != nil {
		framingExtras = r.Durability.Encode(nil)
	}
	switch r.Op {
	case kvproto.OpInsert, kvproto.OpUpsert, kvproto.OpReplace:
		extras = make([]byte, 8)
		binary.BigEndian.PutUint32(extras[0:4], r.Flags)
		binary.BigEndian.PutUint32(extras[4:8], r.ExpirySecs)
	}
	return framingExtras, extras, r.Key, r.Value
}

// CounterRequest covers increment/decrement (§4.B).
type CounterRequest struct {
	Op         kvproto.Opcode
	Key        []byte
	Delta      uint64
	Initial    uint64
	ExpirySecs uint32
	Durability *kvproto.DurabilityExtra
}

func (r *CounterRequest) Opcode() kvproto.Opcode { return r.Op }
func (r *CounterRequest) Alt() bool              { return r.Durability != nil }

func (r *CounterRequest) Assemble() (framingExtras, extras, key, value []byte) {
	if r.Durability != nil {
		framingExtras = r.Durability.Encode(nil)
	}
	extras = make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], r.Delta)
	binary.BigEndian.PutUint64(extras[8:16], r.Initial)
	binary.BigEndian.PutUint32(extras[16:20], r.ExpirySecs)
	return framingExtras, extras, r.Key, nil
}

// TouchRequest updates a document's expiry (§4.B "touch").
type TouchRequest struct {
	Key        []byte
	ExpirySecs uint32
}

func (r *TouchRequest) Opcode() kvproto.Opcode { return kvproto.OpTouch }
func (r *TouchRequest) Alt() bool              { return false }
func (r *TouchRequest) Assemble() (framingExtras, extras, key, value []byte) {
	extras = make([]byte, 4)
	binary.BigEndian.PutUint32(extras, r.ExpirySecs)
	return nil, extras, r.Key, nil
}

// UnlockRequest releases a pessimistic lock (§4.B "unlock").
type UnlockRequest struct {
	Key []byte
	Cas uint64
}

func (r *UnlockRequest) Opcode() kvproto.Opcode { return kvproto.OpUnlock }
func (r *UnlockRequest) Alt() bool              { return false }
func (r *UnlockRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, r.Key, nil
}

// NoopRequest is a keepalive / in-flight-order barrier.
type NoopRequest struct{}

func (r *NoopRequest) Opcode() kvproto.Opcode { return kvproto.OpNoop }
func (r *NoopRequest) Alt() bool              { return false }
func (r *NoopRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, nil, nil
}

// SaslListMechsRequest lists mechanisms the server supports (§4.C).
type SaslListMechsRequest struct{}

func (r *SaslListMechsRequest) Opcode() kvproto.Opcode { return kvproto.OpSaslListMechs }
func (r *SaslListMechsRequest) Alt() bool              { return false }
func (r *SaslListMechsRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, nil, nil
}

// SaslAuthRequest begins authentication with the chosen mechanism
// (§4.C); SaslStepRequest continues it. Both share the same wire shape:
// key = mechanism name, value = mechanism payload.
type SaslAuthRequest struct {
	Mechanism string
	Payload   []byte
}

func (r *SaslAuthRequest) Opcode() kvproto.Opcode { return kvproto.OpSaslAuth }
func (r *SaslAuthRequest) Alt() bool              { return false }
func (r *SaslAuthRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, []byte(r.Mechanism), r.Payload
}

type SaslStepRequest struct {
	Mechanism string
	Payload   []byte
}

func (r *SaslStepRequest) Opcode() kvproto.Opcode { return kvproto.OpSaslStep }
func (r *SaslStepRequest) Alt() bool              { return false }
func (r *SaslStepRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, []byte(r.Mechanism), r.Payload
}

// HelloRequest negotiates connection-level features (§4.G "Feature
// negotiation"). Key carries the client identity string; value carries
// the requested feature codes as 2-byte big-endian entries.
type HelloRequest struct {
	ClientID string
	Features []HelloFeature
}

func (r *HelloRequest) Opcode() kvproto.Opcode { return kvproto.OpHello }
func (r *HelloRequest) Alt() bool              { return false }
func (r *HelloRequest) Assemble() (framingExtras, extras, key, value []byte) {
	value = make([]byte, 2*len(r.Features))
	for i, f := range r.Features {
		binary.BigEndian.PutUint16(value[i*2:i*2+2], uint16(f))
	}
	return nil, nil, []byte(r.ClientID), value
}

// HelloFeature is a connection-level feature code (§4.G).
type HelloFeature uint16

const (
	FeatureTLS                          HelloFeature = 0x02
	FeatureTCPNoDelay                   HelloFeature = 0x03
	FeatureMutationSeqno                HelloFeature = 0x04
	FeatureXError                       HelloFeature = 0x07
	FeatureSnappy                       HelloFeature = 0x0a
	FeatureJSON                         HelloFeature = 0x0b
	FeatureDuplex                       HelloFeature = 0x0f
	FeatureClustermapChangeNotification HelloFeature = 0x10
	FeatureAltRequest                   HelloFeature = 0x11
	FeatureSyncReplication               HelloFeature = 0x13
	FeatureCollections                  HelloFeature = 0x14
	FeatureTracing                      HelloFeature = 0x19
)

// SelectBucketRequest binds the connection to a bucket (§4.G).
type SelectBucketRequest struct {
	Bucket string
}

func (r *SelectBucketRequest) Opcode() kvproto.Opcode { return kvproto.OpSelectBucket }
func (r *SelectBucketRequest) Alt() bool              { return false }
func (r *SelectBucketRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, []byte(r.Bucket), nil
}

// GetClusterConfigRequest polls for the current cluster configuration
// (§4.F "poll via the client-request get_cluster_config").
type GetClusterConfigRequest struct{}

func (r *GetClusterConfigRequest) Opcode() kvproto.Opcode { return kvproto.OpGetClusterConfig }
func (r *GetClusterConfigRequest) Alt() bool              { return false }
func (r *GetClusterConfigRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, nil, nil
}

// GetCollectionsManifestRequest fetches the full collections manifest.
type GetCollectionsManifestRequest struct{}

func (r *GetCollectionsManifestRequest) Opcode() kvproto.Opcode {
	return kvproto.OpGetCollectionsManifest
}
func (r *GetCollectionsManifestRequest) Alt() bool { return false }
func (r *GetCollectionsManifestRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, nil, nil
}

// GetCollectionIDRequest resolves "scope.collection" to a numeric UID
// (§4.D "Collection resolver").
type GetCollectionIDRequest struct {
	Path string // "scope.collection"
}

func (r *GetCollectionIDRequest) Opcode() kvproto.Opcode { return kvproto.OpGetCollectionID }
func (r *GetCollectionIDRequest) Alt() bool              { return false }
func (r *GetCollectionIDRequest) Assemble() (framingExtras, extras, key, value []byte) {
	return nil, nil, nil, []byte(r.Path)
}

// SubdocPath is one operation within a subdoc lookup/mutate (§4.B).
type SubdocPath struct {
	Opcode kvproto.Opcode
	Flags  uint8
	Path   string
	Value  []byte
}

// SubdocLookupRequest issues multiple path lookups against one document.
type SubdocLookupRequest struct {
	Key   []byte
	Paths []SubdocPath
}

func (r *SubdocLookupRequest) Opcode() kvproto.Opcode { return kvproto.OpSubdocLookupIn }
func (r *SubdocLookupRequest) Alt() bool              { return false }
func (r *SubdocLookupRequest) Assemble() (framingExtras, extras, key, value []byte) {
	for _, p := range r.Paths {
		value = appendSubdocSpec(value, p)
	}
	return nil, nil, r.Key, value
}

// SubdocMutateRequest issues multiple path mutations against one document.
type SubdocMutateRequest struct {
	Key        []byte
	Paths      []SubdocPath
	Cas        uint64
	Durability *kvproto.DurabilityExtra
}

func (r *SubdocMutateRequest) Opcode() kvproto.Opcode { return kvproto.OpSubdocMutateIn }
func (r *SubdocMutateRequest) Alt() bool              { return r.Durability != nil }
func (r *SubdocMutateRequest) Assemble() (framingExtras, extras, key, value []byte) {
	if r.Durability != nil {
		framingExtras = r.Durability.Encode(nil)
	}
	for _, p := range r.Paths {
		value = appendSubdocSpec(value, p)
	}
	return framingExtras, nil, r.Key, value
}

func appendSubdocSpec(dst []byte, p SubdocPath) []byte {
	dst = append(dst, byte(p.Opcode), p.Flags)
	var pl [2]byte
	binary.BigEndian.PutUint16(pl[:], uint16(len(p.Path)))
	dst = append(dst, pl[:]...)
	var vl [4]byte
	binary.BigEndian.PutUint32(vl[:], uint32(len(p.Value)))
	dst = append(dst, vl[:]...)
	dst = append(dst, p.Path...)
	dst = append(dst, p.Value...)
	return dst
}
