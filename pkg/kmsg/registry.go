package kmsg

import (
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
)

// Request is the capability set every request body implements (§9
// "Polymorphic message bodies": interface-style capability set rather
// than a tagged variant, since Go has no sum types).
type Request interface {
	Opcode() kvproto.Opcode
	// Assemble returns the framing-extras, extras, key and value sections
	// in wire order (§4.B "request-body assembly").
	Assemble() (framingExtras, extras, key, value []byte)
	// Alt reports whether this request must use an alt-magic frame (true
	// when framing extras, e.g. durability, are present).
	Alt() bool
}

// Response is the capability set every response body implements.
type Response interface {
	// Parse decodes status-dependent fields out of a successfully framed
	// response. Parse is only called for StatusSuccess and, for SASL
	// responses, StatusAuthContinue; callers consult KindForStatus
	// themselves for every other status (§4.B).
	Parse(f *kvproto.Frame) error
}

// Entry is one row of the opcode registry.
type Entry struct {
	Opcode          kvproto.Opcode
	SupportsDurability bool
	NewResponse     func() Response
}

var registry = map[kvproto.Opcode]Entry{
	kvproto.OpGet:                    {Opcode: kvproto.OpGet, NewResponse: func() Response { return new(GetResponse) }},
	kvproto.OpGetAndLock:             {Opcode: kvproto.OpGetAndLock, NewResponse: func() Response { return new(GetResponse) }},
	kvproto.OpGetAndTouch:            {Opcode: kvproto.OpGetAndTouch, NewResponse: func() Response { return new(GetResponse) }},
	kvproto.OpGetReplica:             {Opcode: kvproto.OpGetReplica, NewResponse: func() Response { return new(GetResponse) }},
	kvproto.OpObserveSeqno:           {Opcode: kvproto.OpObserveSeqno, NewResponse: func() Response { return new(ObserveSeqnoResponse) }},
	kvproto.OpInsert:                 {Opcode: kvproto.OpInsert, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpUpsert:                 {Opcode: kvproto.OpUpsert, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpReplace:                {Opcode: kvproto.OpReplace, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpRemove:                 {Opcode: kvproto.OpRemove, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpAppend:                 {Opcode: kvproto.OpAppend, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpPrepend:                {Opcode: kvproto.OpPrepend, SupportsDurability: true, NewResponse: func() Response { return new(MutationResponse) }},
	kvproto.OpIncrement:              {Opcode: kvproto.OpIncrement, SupportsDurability: true, NewResponse: func() Response { return new(CounterResponse) }},
	kvproto.OpDecrement:              {Opcode: kvproto.OpDecrement, SupportsDurability: true, NewResponse: func() Response { return new(CounterResponse) }},
	kvproto.OpTouch:                  {Opcode: kvproto.OpTouch, NewResponse: func() Response { return new(EmptyResponse) }},
	kvproto.OpUnlock:                 {Opcode: kvproto.OpUnlock, NewResponse: func() Response { return new(EmptyResponse) }},
	kvproto.OpNoop:                   {Opcode: kvproto.OpNoop, NewResponse: func() Response { return new(EmptyResponse) }},
	kvproto.OpSubdocLookupIn:         {Opcode: kvproto.OpSubdocLookupIn, NewResponse: func() Response { return new(SubdocLookupResponse) }},
	kvproto.OpSubdocMutateIn:         {Opcode: kvproto.OpSubdocMutateIn, SupportsDurability: true, NewResponse: func() Response { return new(SubdocMutateResponse) }},
	kvproto.OpSaslListMechs:          {Opcode: kvproto.OpSaslListMechs, NewResponse: func() Response { return new(SaslListMechsResponse) }},
	kvproto.OpSaslAuth:               {Opcode: kvproto.OpSaslAuth, NewResponse: func() Response { return new(SaslStepResponse) }},
	kvproto.OpSaslStep:               {Opcode: kvproto.OpSaslStep, NewResponse: func() Response { return new(SaslStepResponse) }},
	kvproto.OpHello:                  {Opcode: kvproto.OpHello, NewResponse: func() Response { return new(HelloResponse) }},
	kvproto.OpSelectBucket:           {Opcode: kvproto.OpSelectBucket, NewResponse: func() Response { return new(EmptyResponse) }},
	kvproto.OpGetClusterConfig:       {Opcode: kvproto.OpGetClusterConfig, NewResponse: func() Response { return new(ClusterConfigResponse) }},
	kvproto.OpGetCollectionsManifest: {Opcode: kvproto.OpGetCollectionsManifest, NewResponse: func() Response { return new(CollectionsManifestResponse) }},
	kvproto.OpGetCollectionID:        {Opcode: kvproto.OpGetCollectionID, NewResponse: func() Response { return new(GetCollectionIDResponse) }},
}

// Lookup returns the registry entry for opcode.
func Lookup(opcode kvproto.Opcode) (Entry, bool) {
	e, ok := registry[opcode]
	return e, ok
}
