package kerr

import "fmt"

// RetryReason names a condition that caused a retry decision (§4.E, §3).
type RetryReason string

const (
	ReasonSocketNotAvailable               RetryReason = "socket_not_available"
	ReasonServiceNotAvailable              RetryReason = "service_not_available"
	ReasonNodeNotAvailable                 RetryReason = "node_not_available"
	ReasonKVNotMyVbucket                   RetryReason = "kv_not_my_vbucket"
	ReasonKVCollectionOutdated             RetryReason = "kv_collection_outdated"
	ReasonKVErrorMapRetryIndicated         RetryReason = "kv_error_map_retry_indicated"
	ReasonKVLocked                         RetryReason = "kv_locked"
	ReasonKVTemporaryFailure               RetryReason = "kv_temporary_failure"
	ReasonKVSyncWriteInProgress            RetryReason = "kv_sync_write_in_progress"
	ReasonKVSyncWriteReCommitInProgress    RetryReason = "kv_sync_write_re_commit_in_progress"
	ReasonServiceResponseCodeIndicated     RetryReason = "service_response_code_indicated"
	ReasonCircuitBreakerOpen               RetryReason = "circuit_breaker_open"
	ReasonQueryPreparedStatementFailure    RetryReason = "query_prepared_statement_failure"
	ReasonQueryIndexNotFound               RetryReason = "query_index_not_found"
	ReasonAnalyticsTemporaryFailure        RetryReason = "analytics_temporary_failure"
	ReasonSearchTooManyRequests            RetryReason = "search_too_many_requests"
)

// alwaysRetry is the set from §4.E(1): these reasons always trigger a
// controlled-backoff retry regardless of the request's retry strategy.
var alwaysRetry = map[RetryReason]bool{
	ReasonSocketNotAvailable:            true,
	ReasonServiceNotAvailable:           true,
	ReasonNodeNotAvailable:              true,
	ReasonKVNotMyVbucket:                true,
	ReasonKVCollectionOutdated:          true,
	ReasonKVErrorMapRetryIndicated:      true,
	ReasonKVLocked:                      true,
	ReasonKVTemporaryFailure:            true,
	ReasonKVSyncWriteInProgress:         true,
	ReasonKVSyncWriteReCommitInProgress: true,
	ReasonServiceResponseCodeIndicated:  true,
	ReasonCircuitBreakerOpen:            true,
	ReasonQueryPreparedStatementFailure: true,
	ReasonQueryIndexNotFound:            true,
	ReasonAnalyticsTemporaryFailure:     true,
	ReasonSearchTooManyRequests:         true,
}

// AlwaysRetry reports whether reason is in the unconditional-retry set.
func AlwaysRetry(reason RetryReason) bool { return alwaysRetry[reason] }

// EnhancedErrorInfo carries server-supplied extended error detail, present
// only when the connection negotiated the xerror HELLO feature (§4.G).
type EnhancedErrorInfo struct {
	Ref     string
	Context string
}

// ErrorMapInfo is the decoded subset of the server's error-map JSON blob
// for one status code, when available (§3 "Error context").
type ErrorMapInfo struct {
	Name        string
	Description string
	Attributes  []string
}

// KeyValueContext is the error context attached to a KV operation failure
// (§3 "Error context", ext/couchbase/error_context/key_value.hxx).
type KeyValueContext struct {
	Bucket     string
	Scope      string
	Collection string
	Key        string

	Kind *Kind

	Opaque     uint32
	StatusCode uint16

	ErrorMap *ErrorMapInfo
	Enhanced *EnhancedErrorInfo

	LastDispatchedTo   string
	LastDispatchedFrom string
	RetryAttempts      int
	RetryReasons       map[RetryReason]struct{}
}

func (c *KeyValueContext) Error() string {
	if c == nil || c.Kind == nil {
		return "key_value error"
	}
	return fmt.Sprintf("%s: %s/%s/%s/%s (opaque=%d status=0x%04x attempts=%d)",
		c.Kind.Error(), c.Bucket, c.Scope, c.Collection, c.Key, c.Opaque, c.StatusCode, c.RetryAttempts)
}

func (c *KeyValueContext) Unwrap() error {
	if c == nil {
		return nil
	}
	return c.Kind
}

// AddRetry records one retry attempt against this context, mirroring the
// mutation the retry orchestrator applies to the command's retry context
// (§4.E "Each retry mutates the command's retry context").
func (c *KeyValueContext) AddRetry(reason RetryReason) {
	if c.RetryReasons == nil {
		c.RetryReasons = make(map[RetryReason]struct{})
	}
	c.RetryAttempts++
	c.RetryReasons[reason] = struct{}{}
}

// HTTPContext is the error context attached to an HTTP management/data
// service operation failure (ext/couchbase/error_context/http.hxx).
type HTTPContext struct {
	Kind *Kind

	ClientContextID string
	Method          string
	Path            string
	HTTPStatus      int
	HTTPBody        string

	LastDispatchedTo   string
	LastDispatchedFrom string
	RetryAttempts      int
	RetryReasons       map[RetryReason]struct{}
}

func (c *HTTPContext) Error() string {
	if c == nil || c.Kind == nil {
		return "http error"
	}
	return fmt.Sprintf("%s: %s %s -> %d (attempts=%d)", c.Kind.Error(), c.Method, c.Path, c.HTTPStatus, c.RetryAttempts)
}

func (c *HTTPContext) Unwrap() error {
	if c == nil {
		return nil
	}
	return c.Kind
}

func (c *HTTPContext) AddRetry(reason RetryReason) {
	if c.RetryReasons == nil {
		c.RetryReasons = make(map[RetryReason]struct{})
	}
	c.RetryAttempts++
	c.RetryReasons[reason] = struct{}{}
}
