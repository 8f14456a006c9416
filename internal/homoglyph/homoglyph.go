// Package homoglyph flags hostnames that may impersonate another through
// lookalike characters.
package homoglyph

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Reason explains why a URL was flagged.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonPunycode    Reason = "punycode"
	ReasonNormalized  Reason = "nfkc_changed"
	ReasonNonASCII    Reason = "non_ascii"
	ReasonUnparseable Reason = "unparseable"
	ReasonNotAbsolute Reason = "not_absolute"
	ReasonMissingHost Reason = "missing_host"
)

// IsSuspicious reports whether rawURL's hostname contains lookalike
// characters. URLs that cannot be examined are reported as suspicious.
func IsSuspicious(rawURL string) bool {
	return Check(rawURL) != ReasonNone
}

// Check returns the first reason rawURL is suspicious, or ReasonNone.
func Check(rawURL string) Reason {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ReasonUnparseable
	}
	if !u.IsAbs() {
		return ReasonNotAbsolute
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ReasonMissingHost
	}
	return CheckHost(host)
}

// CheckHost applies the hostname rules to an already extracted host.
func CheckHost(host string) Reason {
	host = strings.ToLower(host)
	switch {
	case strings.Contains(host, "xn--"):
		return ReasonPunycode
	case norm.NFKC.String(host) != host:
		return ReasonNormalized
	case !isASCII(host):
		return ReasonNonASCII
	}
	return ReasonNone
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
