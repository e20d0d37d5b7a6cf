// Package kerr defines the logical error kinds the client surfaces to
// callers, independent of the KV status code or HTTP status that produced
// them. Status-code-to-kind mapping lives in kmsg (it is data, not code).
package kerr

// Kind is a sentinel error identifying a logical failure category. Kinds
// are compared with errors.Is, never by value equality, so that a Kind can
// be wrapped with request-specific context (fmt.Errorf("%w: ...", kind))
// without losing its identity. errors.Is's default Unwrap-chain pointer
// comparison is sufficient here; no custom Is method is needed.
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

func newKind(name string) *Kind { return &Kind{name: name} }

// Common kinds (§7).
var (
	RequestCancelled       = newKind("request_cancelled")
	InvalidArgument        = newKind("invalid_argument")
	ServiceNotAvailable    = newKind("service_not_available")
	InternalServerFailure  = newKind("internal_server_failure")
	AuthenticationFailure  = newKind("authentication_failure")
	TemporaryFailure       = newKind("temporary_failure")
	ParsingFailure         = newKind("parsing_failure")
	CasMismatch            = newKind("cas_mismatch")
	BucketNotFound         = newKind("bucket_not_found")
	CollectionNotFound     = newKind("collection_not_found")
	UnsupportedOperation   = newKind("unsupported_operation")
	AmbiguousTimeout       = newKind("ambiguous_timeout")
	UnambiguousTimeout     = newKind("unambiguous_timeout")
	FeatureNotAvailable    = newKind("feature_not_available")
	ScopeNotFound          = newKind("scope_not_found")
	IndexNotFound          = newKind("index_not_found")
	IndexExists            = newKind("index_exists")
	RateLimited            = newKind("rate_limited")
	QuotaLimited           = newKind("quota_limited")
)

// Key-value kinds (§7).
var (
	DocumentNotFound               = newKind("document_not_found")
	DocumentExists                 = newKind("document_exists")
	DocumentLocked                 = newKind("document_locked")
	ValueTooLarge                  = newKind("value_too_large")
	DurabilityLevelNotAvailable    = newKind("durability_level_not_available")
	DurabilityImpossible           = newKind("durability_impossible")
	DurabilityAmbiguous            = newKind("durability_ambiguous")
	DurableWriteInProgress         = newKind("durable_write_in_progress")
	DurableWriteReCommitInProgress = newKind("durable_write_re_commit_in_progress")
	PathNotFound                   = newKind("path_not_found")
	PathMismatch                   = newKind("path_mismatch")
	PathExists                     = newKind("path_exists")
	PathInvalid                    = newKind("path_invalid")
	NumberTooBig                   = newKind("number_too_big")
	ValueInvalid                   = newKind("value_invalid")
	XattrInvalid                   = newKind("xattr_invalid")
	XattrUnknownMacro              = newKind("xattr_unknown_macro")
	XattrUnknownVirtualAttribute   = newKind("xattr_unknown_virtual_attribute")
	XattrCannotModifyVirtualAttribute = newKind("xattr_cannot_modify_virtual_attribute")
)

// Query / analytics / search / view / management kinds (§7, operation-specific).
var (
	PreparedStatementFailure = newKind("query_prepared_statement_failure")
	QueryIndexNotFound       = newKind("query_index_not_found")
	AnalyticsTemporaryFailure = newKind("analytics_temporary_failure")
	SearchTooManyRequests    = newKind("search_too_many_requests")
	ViewNotFound             = newKind("view_not_found")
	DesignDocumentNotFound   = newKind("design_document_not_found")
)

// Network kinds (§7).
var (
	EndOfStream               = newKind("end_of_stream")
	SocketClosedWhileInFlight = newKind("socket_closed_while_in_flight")
	HandshakeFailure          = newKind("handshake_failure")
	SocketNotAvailable        = newKind("socket_not_available")
	NodeNotAvailable          = newKind("node_not_available")
	CircuitBreakerOpen        = newKind("circuit_breaker_open")
)

// SASL-specific kinds (§4.C).
var (
	NoMech              = newKind("no_mech")
	ProtocolViolation   = newKind("protocol_violation")
	ServerSignatureMismatch = newKind("server_signature_mismatch")
)
