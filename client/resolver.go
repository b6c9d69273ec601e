package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// DefaultDNSServer is the systemd-resolved stub listener queried when no
// server is configured.
const DefaultDNSServer = "127.0.0.53:53"

// EndpointResolver turns a service domain into reachable endpoints. The
// client uses it during configuration validation.
type EndpointResolver interface {
	LookupEndpoints(domain string) ([]string, error)
}

// Resolver resolves recovery service domains through DNS SRV records.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns a resolver that queries the given DNS server address.
// An empty address selects DefaultDNSServer.
func NewResolver(server string) *Resolver {
	if server == "" {
		server = DefaultDNSServer
	}
	return &Resolver{server: server, client: new(dns.Client)}
}

// LookupEndpoints queries the SRV records of a service domain such as
// _recovery._tcp.example.com and returns the targets as host:port pairs.
func (r *Resolver) LookupEndpoints(domain string) ([]string, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{Name: dns.Fqdn(domain), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}}

	in, _, err := r.client.Exchange(m, r.server)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", domain, err)
	}

	endpoints := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		srv, ok := answer.(*dns.SRV)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(srv.Target, ".")
		endpoints = append(endpoints, net.JoinHostPort(host, strconv.Itoa(int(srv.Port))))
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no SRV records for %s", domain)
	}
	return endpoints, nil
}
