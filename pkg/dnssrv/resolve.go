// Package dnssrv implements the DNS-SRV cluster-bootstrap lookup (§6):
// given a domain hostname, resolve "_couchbase._tcp.<host>" (or
// "_couchbases._tcp.<host>" for TLS) against the first nameserver listed
// in /etc/resolv.conf, falling back to 8.8.8.8:53 if that file can't be
// read or carries no usable nameserver line (§9 "Global RNG and DNS
// config").
package dnssrv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	resolvConfPath = "/etc/resolv.conf"
	fallbackServer = "8.8.8.8:53"
	defaultTimeout = 500 * time.Millisecond
)

// Target is one SRV-resolved KV node.
type Target struct {
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Resolver performs SRV bootstrap lookups against one nameserver address.
type Resolver struct {
	nameserver string
	timeout    time.Duration
	resolver   *net.Resolver
}

// New returns a Resolver that queries nameserver ("host:port"); an empty
// nameserver falls back to 8.8.8.8:53.
func New(nameserver string) *Resolver {
	if nameserver == "" {
		nameserver = fallbackServer
	}
	r := &Resolver{nameserver: nameserver, timeout: defaultTimeout}
	r.resolver = &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: r.timeout}
			return d.DialContext(ctx, network, r.nameserver)
		},
	}
	return r
}

// Bootstrap resolves the SRV record for host, returning the ordered set
// of KV node targets. tls selects "_couchbases._tcp" over
// "_couchbase._tcp" (§6 "DNS-SRV bootstrap").
func (r *Resolver) Bootstrap(ctx context.Context, host string, tls bool) ([]Target, error) {
	service := "couchbase"
	if tls {
		service = "couchbases"
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, addrs, err := r.resolver.LookupSRV(ctx, service, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("dnssrv: lookup _%s._tcp.%s: %w", service, host, err)
	}

	targets := make([]Target, 0, len(addrs))
	for _, a := range addrs {
		targets = append(targets, Target{
			Host:     strings.TrimSuffix(a.Target, "."),
			Port:     a.Port,
			Priority: a.Priority,
			Weight:   a.Weight,
		})
	}
	return targets, nil
}

var (
	systemOnce     sync.Once
	systemResolver *Resolver
)

// System returns the process-wide resolver, lazily initialized from
// /etc/resolv.conf on first call and reused afterward — the singleton
// shape §9's design note calls for ("Retain as explicit process-scope
// state with documented init"). Tests construct their own *Resolver via
// New instead of reaching for this singleton.
func System() *Resolver {
	systemOnce.Do(func() {
		systemResolver = New(readFirstNameserver())
	})
	return systemResolver
}

// readFirstNameserver parses /etc/resolv.conf for the first "nameserver"
// directive. Returns "" if the file is unreadable, which New treats as a
// request to fall back to 8.8.8.8:53.
func readFirstNameserver() string {
	f, err := os.Open(resolvConfPath)
	if err != nil {
		return ""
	}
	defer f.Close()
	return firstNameserverFromReader(f)
}

// firstNameserverFromReader scans r for the first "nameserver" directive,
// appending the default DNS port, split out from readFirstNameserver so
// tests can exercise the parsing logic against an in-memory file.
func firstNameserverFromReader(r io.Reader) string {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			ip := fields[1]
			if strings.Contains(ip, ":") {
				return "[" + ip + "]:53"
			}
			return ip + ":53"
		}
	}
	return ""
}
