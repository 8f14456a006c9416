// Package features turns a URL and its registration details into the fixed
// numeric vector consumed by the prediction model.
package features

import (
	"encoding/json"
	"fmt"
)

// Vector is the model input. Field order is the wire order.
type Vector struct {
	LengthURL            int `json:"length_url"`
	DomainLength         int `json:"domain_length"`
	DirectoryLength      int `json:"directory_length"`
	FileLength           int `json:"file_length"`
	ParamsLength         int `json:"params_length"`
	QtySlashURL          int `json:"qty_slash_url"`
	QtyDotURL            int `json:"qty_dot_url"`
	DomainInIP           int `json:"domain_in_ip"`
	QtyAtURL             int `json:"qty_at_url"`
	ASNIP                int `json:"asn_ip"`
	TimeDomainActivation int `json:"time_domain_activation"`
	TimeDomainExpiration int `json:"time_domain_expiration"`
	QtyHyphenURL         int `json:"qty_hyphen_url"`
	URLGoogleIndex       int `json:"url_google_index"`
	URLShortened         int `json:"url_shortened"`
}

var names = []string{
	"length_url",
	"domain_length",
	"directory_length",
	"file_length",
	"params_length",
	"qty_slash_url",
	"qty_dot_url",
	"domain_in_ip",
	"qty_at_url",
	"asn_ip",
	"time_domain_activation",
	"time_domain_expiration",
	"qty_hyphen_url",
	"url_google_index",
	"url_shortened",
}

// Names returns the feature names in vector order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Values returns the features in vector order.
func (v Vector) Values() []int {
	return []int{
		v.LengthURL,
		v.DomainLength,
		v.DirectoryLength,
		v.FileLength,
		v.ParamsLength,
		v.QtySlashURL,
		v.QtyDotURL,
		v.DomainInIP,
		v.QtyAtURL,
		v.ASNIP,
		v.TimeDomainActivation,
		v.TimeDomainExpiration,
		v.QtyHyphenURL,
		v.URLGoogleIndex,
		v.URLShortened,
	}
}

// Get returns the named feature.
func (v Vector) Get(name string) (int, error) {
	values := v.Values()
	for i, n := range names {
		if n == name {
			return values[i], nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// Map returns the features keyed by name.
func (v Vector) Map() map[string]int {
	values := v.Values()
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = values[i]
	}
	return m
}

// String renders the vector as compact JSON.
func (v Vector) String() string {
	b, _ := json.Marshal(v)
	return string(b)
}
