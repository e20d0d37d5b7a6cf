package kvconn

import "github.com/couchbaselabs/kvcore/pkg/kmsg"

// defaultFeatures is the feature set requested during HELLO negotiation
// (§4.G "sending HELLO with feature set {tls, tcp_nodelay, mutation_seqno,
// xerror, snappy, json, tracing, alt_request, sync_replication,
// collections, duplex, clustermap_change_notification, ...}").
var defaultFeatures = []kmsg.HelloFeature{
	kmsg.FeatureTCPNoDelay,
	kmsg.FeatureMutationSeqno,
	kmsg.FeatureXError,
	kmsg.FeatureSnappy,
	kmsg.FeatureJSON,
	kmsg.FeatureTracing,
	kmsg.FeatureAltRequest,
	kmsg.FeatureSyncReplication,
	kmsg.FeatureCollections,
	kmsg.FeatureDuplex,
	kmsg.FeatureClustermapChangeNotification,
}

// NegotiatedFeatures is the subset of requested HELLO features the
// server actually enabled, exposed as named booleans so callers don't
// re-scan HelloResponse.Features (§4.G "Subsequent behavior depends on
// this set").
type NegotiatedFeatures struct {
	MutationSeqno                bool
	AltRequest                   bool
	Collections                  bool
	ClustermapChangeNotification bool
	Snappy                       bool
	XError                       bool
}

func negotiatedFrom(resp *kmsg.HelloResponse) NegotiatedFeatures {
	return NegotiatedFeatures{
		MutationSeqno:                resp.Supports(kmsg.FeatureMutationSeqno),
		AltRequest:                   resp.Supports(kmsg.FeatureAltRequest),
		Collections:                  resp.Supports(kmsg.FeatureCollections),
		ClustermapChangeNotification: resp.Supports(kmsg.FeatureClustermapChangeNotification),
		Snappy:                       resp.Supports(kmsg.FeatureSnappy),
		XError:                       resp.Supports(kmsg.FeatureXError),
	}
}

// clientIdentity builds the HELLO key: connection id plus user agent,
// per §4.G "a client identity string (connection id + user agent)".
func clientIdentity(connID, userAgent string) string {
	if userAgent == "" {
		return connID
	}
	return connID + "/" + userAgent
}
