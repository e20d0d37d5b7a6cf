package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/couchbaselabs/kvcore/pkg/bucketcfg"
	"github.com/couchbaselabs/kvcore/pkg/kerr"
)

// Service is a named HTTP-exposed service a node may advertise (§4.H
// "pick a node that exposes the required service").
type Service int

const (
	ServiceMgmt Service = iota
	ServiceN1QL
	ServiceFTS
	ServiceAnalytics
	ServiceViews
)

func (s Service) port(p bucketcfg.NodePorts) int {
	switch s {
	case ServiceMgmt:
		return p.Mgmt
	case ServiceN1QL:
		return p.N1QL
	case ServiceFTS:
		return p.FTS
	case ServiceAnalytics:
		return p.CBAS
	case ServiceViews:
		return p.Capi
	default:
		return 0
	}
}

// HTTPNodeSelector picks a node address for an HTTP-style service request
// (§4.H): round-robin across eligible nodes, with a sticky preference for
// the last node used per service when use_any_session is false.
type HTTPNodeSelector struct {
	mu       sync.Mutex
	rr       uint64
	sticky   bool
	lastNode map[Service]string
}

// NewHTTPNodeSelector returns a selector. sticky mirrors the negated
// use_any_session setting: true means prefer the last node picked for a
// service over rotating, as long as it is still eligible.
func NewHTTPNodeSelector(sticky bool) *HTTPNodeSelector {
	return &HTTPNodeSelector{sticky: sticky, lastNode: make(map[Service]string)}
}

// Select returns the address ("host:port") of a node exposing svc.
func (s *HTTPNodeSelector) Select(cfg bucketcfg.Config, svc Service) (string, error) {
	var eligible []string
	for _, node := range cfg.Nodes {
		if port := svc.port(node.Ports); port != 0 {
			eligible = append(eligible, fmt.Sprintf("%s:%d", node.Hostname, port))
		}
	}
	if len(eligible) == 0 {
		return "", fmt.Errorf("dispatch: no node exposes service %d: %w", svc, kerr.ServiceNotAvailable)
	}

	if s.sticky {
		s.mu.Lock()
		last, ok := s.lastNode[svc]
		s.mu.Unlock()
		if ok {
			for _, addr := range eligible {
				if addr == last {
					return addr, nil
				}
			}
		}
	}

	idx := atomic.AddUint64(&s.rr, 1) - 1
	addr := eligible[idx%uint64(len(eligible))]

	if s.sticky {
		s.mu.Lock()
		s.lastNode[svc] = addr
		s.mu.Unlock()
	}
	return addr, nil
}
