package client

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer runs a local DNS server answering every SRV query with the
// given targets.
func startDNSServer(t *testing.T, targets map[string]uint16) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err, "Failed to open UDP listener")

	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			for target, port := range targets {
				m.Answer = append(m.Answer, &dns.SRV{
					Hdr: dns.RR_Header{
						Name:   r.Question[0].Name,
						Rrtype: dns.TypeSRV,
						Class:  dns.ClassINET,
						Ttl:    60,
					},
					Priority: 10,
					Weight:   5,
					Port:     port,
					Target:   target,
				})
			}
			w.WriteMsg(m)
		}),
	}

	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolver_LookupEndpoints(t *testing.T) {
	addr := startDNSServer(t, map[string]uint16{"vault-1.example.com.": 8443})

	resolver := NewResolver(addr)
	endpoints, err := resolver.LookupEndpoints("_recovery._tcp.example.com")
	require.NoError(t, err, "Failed to resolve SRV records")
	assert.Equal(t, []string{"vault-1.example.com:8443"}, endpoints)
}

func TestResolver_NoRecords(t *testing.T) {
	addr := startDNSServer(t, nil)

	_, err := NewResolver(addr).LookupEndpoints("_missing._tcp.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SRV records")
}

func TestNewResolver_DefaultServer(t *testing.T) {
	resolver := NewResolver("")
	assert.Equal(t, DefaultDNSServer, resolver.server)
}
