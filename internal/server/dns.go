package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/acme"
	"github.com/shrey-shah842/phishguard/internal/logging"
)

// ChallengeDNS is a minimal authoritative responder for DNS-01 challenges.
// The operator delegates each zone (usually _acme-challenge.<domain>) to
// this host; it answers SOA and NS for the zone and TXT from the store.
type ChallengeDNS struct {
	Zones    []string
	NSName   string
	TXTStore *acme.TXTStore
	Logger   *zap.Logger

	udpServer *dns.Server
	tcpServer *dns.Server
}

// Start listens on addr over UDP and TCP.
func (s *ChallengeDNS) Start(addr string) error {
	handler := dns.HandlerFunc(s.handleDNS)
	logger := logging.OrNop(s.Logger)

	s.udpServer = &dns.Server{Addr: addr, Net: "udp", Handler: handler}
	s.tcpServer = &dns.Server{Addr: addr, Net: "tcp", Handler: handler}

	udpErrCh := make(chan error, 1)
	tcpErrCh := make(chan error, 1)

	go func() {
		logger.Info("starting challenge dns", zap.String("net", "udp"), logging.Addr(addr))
		if err := s.udpServer.ListenAndServe(); err != nil {
			udpErrCh <- err
		}
		close(udpErrCh)
	}()

	go func() {
		logger.Info("starting challenge dns", zap.String("net", "tcp"), logging.Addr(addr))
		if err := s.tcpServer.ListenAndServe(); err != nil {
			tcpErrCh <- err
		}
		close(tcpErrCh)
	}()

	timeout := time.After(100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		select {
		case err := <-udpErrCh:
			if err != nil {
				return fmt.Errorf("UDP DNS server failed to start: %w", err)
			}
		case err := <-tcpErrCh:
			if err != nil {
				return fmt.Errorf("TCP DNS server failed to start: %w", err)
			}
		case <-timeout:
			return nil
		}
	}
	return nil
}

func (s *ChallengeDNS) Shutdown(ctx context.Context) {
	logger := logging.OrNop(s.Logger)
	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(ctx); err != nil {
			logger.Warn("dns udp shutdown error", zap.Error(err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(ctx); err != nil {
			logger.Warn("dns tcp shutdown error", zap.Error(err))
		}
	}
}

// zoneFor returns the served zone containing qname, or "".
func (s *ChallengeDNS) zoneFor(qname string) string {
	for _, z := range s.Zones {
		z = acme.NormalizeName(z)
		if qname == z || strings.HasSuffix(qname, "."+z) {
			return z
		}
	}
	return ""
}

func (s *ChallengeDNS) handleDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		qname := acme.NormalizeName(q.Name)
		zone := s.zoneFor(qname)
		if zone == "" {
			m.Authoritative = false
			m.Rcode = dns.RcodeRefused
			continue
		}

		switch q.Qtype {
		case dns.TypeSOA:
			m.Answer = append(m.Answer, s.soa(zone))
		case dns.TypeNS:
			if qname == zone && s.NSName != "" {
				m.Answer = append(m.Answer, &dns.NS{
					Hdr: dns.RR_Header{Name: dns.Fqdn(zone), Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 300},
					Ns:  dns.Fqdn(s.NSName),
				})
			}
		case dns.TypeTXT:
			if s.TXTStore == nil {
				break
			}
			for _, value := range s.TXTStore.Get(qname) {
				m.Answer = append(m.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 1},
					Txt: []string{value},
				})
			}
		}

		if len(m.Answer) == 0 {
			m.Ns = append(m.Ns, s.soa(zone))
		}
	}

	logging.OrNop(s.Logger).Debug("challenge query",
		zap.String("remote", remoteIP(w.RemoteAddr())),
		zap.Int("answers", len(m.Answer)),
		zap.String("rcode", dns.RcodeToString[m.Rcode]))

	if err := w.WriteMsg(m); err != nil {
		logging.OrNop(s.Logger).Debug("failed to write DNS response", zap.Error(err))
	}
}

// soa uses a 1s minimum TTL so validators do not cache stale challenges.
func (s *ChallengeDNS) soa(zone string) *dns.SOA {
	ns := s.NSName
	if ns == "" {
		ns = "ns1." + zone
	}
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: dns.Fqdn(zone), Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 300},
		Ns:      dns.Fqdn(ns),
		Mbox:    dns.Fqdn("hostmaster." + zone),
		Serial:  1,
		Refresh: 3600,
		Retry:   600,
		Expire:  604800,
		Minttl:  1,
	}
}

func remoteIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	case nil:
		return ""
	default:
		return addr.String()
	}
}
