package kmsg

import (
	"encoding/binary"
	"fmt"

	"github.com/couchbaselabs/kvcore/pkg/kvproto"
	"github.com/couchbaselabs/kvcore/pkg/mutation"
)

// EmptyResponse is used by opcodes whose success body carries nothing
// beyond the header (touch, unlock, noop, select_bucket).
type EmptyResponse struct{}

func (r *EmptyResponse) Parse(f *kvproto.Frame) error { return nil }

// GetResponse is the body of get/get_and_lock/get_and_touch/get_replica:
// extras are a 4-byte flags field, value is the document body.
type GetResponse struct {
	Flags uint32
	Cas   uint64
	Value []byte
}

func (r *GetResponse) Parse(f *kvproto.Frame) error {
	if len(f.Extras) < 4 {
		return fmt.Errorf("kmsg: get response extras too short: %d", len(f.Extras))
	}
	r.Flags = binary.BigEndian.Uint32(f.Extras[:4])
	r.Cas = f.Header.Cas
	if f.Header.Datatype.HasSnappy() {
		value, err := kvproto.DecompressValue(f.Value)
		if err != nil {
			return fmt.Errorf("kmsg: decompressing get response value: %w", err)
		}
		r.Value = value
		return nil
	}
	r.Value = f.Value
	return nil
}

// MutationResponse is the body of insert/upsert/replace/remove/append/
// prepend: a CAS and, when mutation_seqno was negotiated, a mutation
// token packed into extras as partition_uuid(8) + sequence_number(8)
// (the partition id itself is not on the wire; callers fill it in from
// the request's computed vbucket, per §3 "Mutation token").
type MutationResponse struct {
	Cas   uint64
	Token mutation.Token
}

func (r *MutationResponse) Parse(f *kvproto.Frame) error {
	r.Cas = f.Header.Cas
	if len(f.Extras) >= 16 {
		r.Token.PartitionUUID = binary.BigEndian.Uint64(f.Extras[0:8])
		r.Token.SequenceNumber = binary.BigEndian.Uint64(f.Extras[8:16])
	}
	return nil
}

// CounterResponse is the body of increment/decrement: value is the new
// 64-bit counter value, plus the same optional mutation-token extras as
// MutationResponse.
type CounterResponse struct {
	Cas     uint64
	Value   uint64
	Token   mutation.Token
}

func (r *CounterResponse) Parse(f *kvproto.Frame) error {
	r.Cas = f.Header.Cas
	if len(f.Value) >= 8 {
		r.Value = binary.BigEndian.Uint64(f.Value[:8])
	}
	if len(f.Extras) >= 16 {
		r.Token.PartitionUUID = binary.BigEndian.Uint64(f.Extras[0:8])
		r.Token.SequenceNumber = binary.BigEndian.Uint64(f.Extras[8:16])
	}
	return nil
}

// ObserveSeqnoResponse reports the persisted/current sequence numbers for
// a vbucket (§4.B "exists (observe-seqno)").
type ObserveSeqnoResponse struct {
	PartitionUUID    uint64
	LastSequence     uint64
	CurrentSequence  uint64
}

func (r *ObserveSeqnoResponse) Parse(f *kvproto.Frame) error {
	if len(f.Value) < 27 {
		return fmt.Errorf("kmsg: observe-seqno body too short: %d", len(f.Value))
	}
	// format byte at [0] (hard vs soft failover) is not modeled; this
	// client only consumes the base fields every format shares.
	r.PartitionUUID = binary.BigEndian.Uint64(f.Value[1:9])
	r.CurrentSequence = binary.BigEndian.Uint64(f.Value[9:17])
	r.LastSequence = binary.BigEndian.Uint64(f.Value[17:25])
	return nil
}

// SaslListMechsResponse's value is the space-separated mechanism list
// (§4.C "Mechanism selection").
type SaslListMechsResponse struct {
	Mechanisms string
}

func (r *SaslListMechsResponse) Parse(f *kvproto.Frame) error {
	r.Mechanisms = string(f.Value)
	return nil
}

// SaslStepResponse covers both SASL auth and step: a continuation
// challenge (status auth_continue) or the final success payload.
type SaslStepResponse struct {
	Payload []byte
}

func (r *SaslStepResponse) Parse(f *kvproto.Frame) error {
	r.Payload = f.Value
	return nil
}

// HelloResponse's value is the list of features the server actually
// enabled, as 2-byte big-endian codes (§4.G "Feature negotiation").
type HelloResponse struct {
	Features []HelloFeature
}

func (r *HelloResponse) Parse(f *kvproto.Frame) error {
	if len(f.Value)%2 != 0 {
		return fmt.Errorf("kmsg: HELLO response value has odd length %d", len(f.Value))
	}
	r.Features = make([]HelloFeature, 0, len(f.Value)/2)
	for i := 0; i+2 <= len(f.Value); i += 2 {
		r.Features = append(r.Features, HelloFeature(binary.BigEndian.Uint16(f.Value[i:i+2])))
	}
	return nil
}

// Supports reports whether f was negotiated.
func (r *HelloResponse) Supports(f HelloFeature) bool {
	for _, got := range r.Features {
		if got == f {
			return true
		}
	}
	return false
}

// ClusterConfigResponse's value is the raw cluster-configuration JSON
// document (§3 "Cluster configuration"); decoding into a typed struct is
// bucketcfg's job, not the message registry's (§4.B only parses the
// frame shape, not domain semantics).
type ClusterConfigResponse struct {
	JSON []byte
}

func (r *ClusterConfigResponse) Parse(f *kvproto.Frame) error {
	r.JSON = f.Value
	return nil
}

// CollectionsManifestResponse's value is the raw manifest JSON document
// (§3 "Collections manifest").
type CollectionsManifestResponse struct {
	JSON []byte
}

func (r *CollectionsManifestResponse) Parse(f *kvproto.Frame) error {
	r.JSON = f.Value
	return nil
}

// GetCollectionIDResponse's extras carry manifest_uid(8) + collection_uid(4),
// both big-endian (§4.D "The response carries manifest_uid and
// collection_uid (both big-endian)").
type GetCollectionIDResponse struct {
	ManifestUID   uint64
	CollectionUID uint32
}

func (r *GetCollectionIDResponse) Parse(f *kvproto.Frame) error {
	if len(f.Extras) != 12 {
		return fmt.Errorf("kmsg: get_collection_id response extras length = %d, want 12", len(f.Extras))
	}
	r.ManifestUID = binary.BigEndian.Uint64(f.Extras[0:8])
	r.CollectionUID = binary.BigEndian.Uint32(f.Extras[8:12])
	return nil
}

// SubdocResult is one path's outcome within a lookup/mutate response.
type SubdocResult struct {
	Status kvproto.Status
	Value  []byte
}

// SubdocLookupResponse is the body of subdoc_lookup_in: a sequence of
// {status(2), length(4), value} entries, one per requested path.
type SubdocLookupResponse struct {
	Results []SubdocResult
}

func (r *SubdocLookupResponse) Parse(f *kvproto.Frame) error {
	return parseSubdocResults(f.Value, &r.Results)
}

// SubdocMutateResponse is the body of subdoc_mutate_in: for multi-path
// mutations only paths with a status and a value (e.g. counter results,
// or a failed path) are present; the overall CAS is in the header.
type SubdocMutateResponse struct {
	Cas     uint64
	Results []SubdocResult
}

func (r *SubdocMutateResponse) Parse(f *kvproto.Frame) error {
	r.Cas = f.Header.Cas
	return parseSubdocResults(f.Value, &r.Results)
}

func parseSubdocResults(value []byte, out *[]SubdocResult) error {
	for off := 0; off < len(value); {
		if off+6 > len(value) {
			return fmt.Errorf("kmsg: truncated subdoc result entry at offset %d", off)
		}
		status := kvproto.Status(binary.BigEndian.Uint16(value[off : off+2]))
		length := binary.BigEndian.Uint32(value[off+2 : off+6])
		off += 6
		if off+int(length) > len(value) {
			return fmt.Errorf("kmsg: subdoc result value overruns buffer at offset %d", off)
		}
		*out = append(*out, SubdocResult{Status: status, Value: value[off : off+int(length)]})
		off += int(length)
	}
	return nil
}
