package kvproto

// Opcode is a client KV command opcode (magic = client_request/
// alt_client_request). Only the subset this client uses is named here
// (§4.B "subset used").
type Opcode uint8

const (
	OpGet                    Opcode = 0x00
	OpInsert                 Opcode = 0x01 // memcached "add"
	OpUpsert                 Opcode = 0x02 // memcached "set"
	OpReplace                Opcode = 0x03
	OpRemove                 Opcode = 0x04 // memcached "delete"
	OpIncrement              Opcode = 0x05
	OpDecrement              Opcode = 0x06
	OpNoop                   Opcode = 0x0a
	OpAppend                 Opcode = 0x0e
	OpPrepend                Opcode = 0x0f
	OpTouch                  Opcode = 0x1c
	OpGetAndTouch            Opcode = 0x1d
	OpHello                  Opcode = 0x1f
	OpSaslListMechs          Opcode = 0x20
	OpSaslAuth               Opcode = 0x21
	OpSaslStep               Opcode = 0x22
	OpGetAndLock             Opcode = 0x94
	OpUnlock                 Opcode = 0x95
	OpGetReplica             Opcode = 0x83
	OpObserveSeqno           Opcode = 0x91
	OpSelectBucket           Opcode = 0x89
	OpSubdocLookupIn         Opcode = 0xd0
	OpSubdocMutateIn         Opcode = 0xd1
	OpGetClusterConfig       Opcode = 0xb5
	OpGetCollectionsManifest Opcode = 0xba
	OpGetCollectionID        Opcode = 0xbb
)

// ServerOpcode is the opcode space for server-initiated requests
// (magic = server_request), distinct from the client opcode space above
// (ext/couchbase/protocol/server_opcode.hxx).
type ServerOpcode uint8

const (
	ServerOpClusterMapChangeNotification ServerOpcode = 0x01
	ServerOpInvalid                      ServerOpcode = 0xff
)

// IsValid reports whether o is a recognized server-request opcode.
func (o ServerOpcode) IsValid() bool {
	return o == ServerOpClusterMapChangeNotification
}
