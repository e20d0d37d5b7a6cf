// Package kmsg is the message registry (§4.B): for each opcode, the shape
// of the request body, how to parse the response body, and which server
// status codes map to which logical error kind. The mapping is built as
// data (a table) rather than a chain of switch statements, so test suites
// can enumerate it directly (§4.B "The mapping is data, not code").
package kmsg

import (
	"github.com/couchbaselabs/kvcore/pkg/kerr"
	"github.com/couchbaselabs/kvcore/pkg/kvproto"
)

// statusKinds maps wire status codes to logical error kinds (§6, §7).
// Entries not present here fall back to kerr.InternalServerFailure.
var statusKinds = map[kvproto.Status]*kerr.Kind{
	kvproto.StatusSuccess:                     nil, // success is not an error
	kvproto.StatusKeyNotFound:                 kerr.DocumentNotFound,
	kvproto.StatusKeyExists:                   kerr.DocumentExists,
	kvproto.StatusValueTooLarge:               kerr.ValueTooLarge,
	kvproto.StatusInvalidArguments:            kerr.InvalidArgument,
	kvproto.StatusItemNotStored:               kerr.DocumentNotFound,
	kvproto.StatusNotMyVbucket:                kerr.ServiceNotAvailable,
	kvproto.StatusNoBucket:                    kerr.BucketNotFound,
	kvproto.StatusLocked:                      kerr.DocumentLocked,
	kvproto.StatusAuthError:                   kerr.AuthenticationFailure,
	kvproto.StatusAuthStale:                   kerr.AuthenticationFailure,
	kvproto.StatusUnknownCommand:              kerr.UnsupportedOperation,
	kvproto.StatusTemporaryFailure:            kerr.TemporaryFailure,
	kvproto.StatusUnknownCollection:           kerr.CollectionNotFound,
	kvproto.StatusSyncWriteInProgress:         kerr.DurableWriteInProgress,
	kvproto.StatusSyncWriteReCommitInProgress: kerr.DurableWriteReCommitInProgress,
	kvproto.StatusSyncWriteAmbiguous:          kerr.DurabilityAmbiguous,
}

// subdocKinds maps the subdoc status range (§6 "0x00c0-0x00cf") to kinds.
var subdocKinds = map[kvproto.Status]*kerr.Kind{
	0x00c0: kerr.PathNotFound,
	0x00c1: kerr.PathMismatch,
	0x00c2: kerr.PathInvalid,
	0x00c3: kerr.ValueTooLarge,
	0x00c4: kerr.DocumentNotFound, // doc not JSON
	0x00c5: kerr.NumberTooBig,
	0x00c6: kerr.ValueInvalid,
	0x00c7: kerr.PathExists,
	0x00c8: kerr.ValueTooLarge, // value+path too deep
	0x00c9: kerr.InvalidArgument,
	0x00ca: kerr.XattrInvalid,
	0x00cb: kerr.XattrUnknownMacro,
	0x00cc: kerr.XattrUnknownVirtualAttribute,
	0x00cd: kerr.XattrCannotModifyVirtualAttribute,
}

// KindForStatus returns the logical error kind for a raw wire status,
// or nil if status denotes success.
func KindForStatus(status kvproto.Status) *kerr.Kind {
	if status == kvproto.StatusSuccess {
		return nil
	}
	if status.IsSubdoc() {
		if k, ok := subdocKinds[status]; ok {
			return k
		}
		return kerr.InternalServerFailure
	}
	if k, ok := statusKinds[status]; ok && k != nil {
		return k
	}
	return kerr.InternalServerFailure
}

// RetryReasonForStatus returns the always-retry reason associated with a
// status code, if the status is one of the §4.E(1) always-retry triggers
// that originates purely from a KV status (as opposed to a connection or
// service-level condition detected elsewhere).
func RetryReasonForStatus(status kvproto.Status) (kerr.RetryReason, bool) {
	switch status {
	case kvproto.StatusNotMyVbucket:
		return kerr.ReasonKVNotMyVbucket, true
	case kvproto.StatusLocked:
		return kerr.ReasonKVLocked, true
	case kvproto.StatusTemporaryFailure:
		return kerr.ReasonKVTemporaryFailure, true
	case kvproto.StatusSyncWriteInProgress:
		return kerr.ReasonKVSyncWriteInProgress, true
	case kvproto.StatusSyncWriteReCommitInProgress:
		return kerr.ReasonKVSyncWriteReCommitInProgress, true
	case kvproto.StatusUnknownCollection:
		return kerr.ReasonKVCollectionOutdated, true
	}
	return "", false
}
