package acme

import (
	"context"
	"strings"

	"github.com/libdns/libdns"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/logging"
)

var _ libdns.RecordAppender = (*Provider)(nil)
var _ libdns.RecordDeleter = (*Provider)(nil)

// Provider publishes DNS-01 challenge records into a TXTStore served by the
// challenge responder. Non-TXT records are ignored.
type Provider struct {
	Store  *TXTStore
	Logger *zap.Logger
}

func (p *Provider) AppendRecords(_ context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	return p.apply(zone, recs, p.Store.Add, "challenge published")
}

func (p *Provider) DeleteRecords(_ context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	return p.apply(zone, recs, p.Store.Remove, "challenge removed")
}

func (p *Provider) apply(zone string, recs []libdns.Record, fn func(fqdn, value string), msg string) ([]libdns.Record, error) {
	done := make([]libdns.Record, 0, len(recs))
	for _, r := range recs {
		rr := r.RR()
		if !strings.EqualFold(rr.Type, "TXT") {
			continue
		}
		fqdn := absoluteName(zone, rr.Name)
		fn(fqdn, rr.Data)
		logging.OrNop(p.Logger).Debug(msg, logging.Domain(fqdn))
		done = append(done, r)
	}
	return done, nil
}

// absoluteName joins a zone-relative record name onto zone.
func absoluteName(zone, name string) string {
	zone = NormalizeName(zone)
	name = NormalizeName(name)

	switch {
	case name == "" || name == "@":
		return zone
	case name == zone || strings.HasSuffix(name, "."+zone):
		return name
	}
	return name + "." + zone
}
