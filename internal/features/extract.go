package features

import (
	"errors"
	"math"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

var ipv4Host = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// expiryLayouts are the date shapes WHOIS registries are seen to return.
var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
}

// Location holds the browser-style components of a URL used by the
// extractor.
type Location struct {
	Href     string // serialized form the counts are taken over
	Hostname string // lowercased, ASCII-compatible, brackets kept for IPv6
	Pathname string // escaped, "/" when empty
	Search   string // "?query", or "" when the query is empty
}

// defaultPorts are dropped from the serialized host.
var defaultPorts = map[string]string{"http": "80", "https": "443"}

// ParseLocation splits an absolute URL the way a browser location would.
// Href is the URL as a browser serializes it: lowercase scheme and host,
// ACE-encoded host, no default port, "/" for an empty path and a
// percent-encoded path.
func ParseLocation(href string) (Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Location{}, err
	}
	if !u.IsAbs() {
		return Location{}, errors.New("url is not absolute")
	}
	if u.Host == "" {
		return Location{}, errors.New("url has no host")
	}

	var loc Location
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasPrefix(u.Host, "["):
		loc.Hostname = "[" + host + "]"
	default:
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
		loc.Hostname = host
	}

	loc.Pathname = u.EscapedPath()
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}

	ser := *u
	ser.Scheme = strings.ToLower(u.Scheme)
	ser.Host = loc.Hostname
	if port := u.Port(); port != "" && defaultPorts[ser.Scheme] != port {
		ser.Host += ":" + port
	}
	if ser.Path == "" {
		ser.Path = "/"
		ser.RawPath = ""
	}
	loc.Href = ser.String()
	return loc, nil
}

// Extractor computes feature vectors. The zero value uses the wall clock and
// a random coin.
type Extractor struct {
	Now  func() time.Time
	Coin func() int
}

// Extract computes the vector for href from its registration details and
// origin ASN (use asn.Unknown when unavailable). Lengths and counts are taken
// over the serialized href, so spellings of the same location give the same
// vector. It fails only when href is not an absolute URL with a host.
func (e Extractor) Extract(href string, details whois.Details, asn int) (Vector, error) {
	loc, err := ParseLocation(href)
	if err != nil {
		return Vector{}, failure.New(failure.InvalidURL, "features.Extract", err)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	coin := func() int { return rand.IntN(2) }
	if e.Coin != nil {
		coin = e.Coin
	}

	href = loc.Href
	dir := directory(loc.Pathname)
	return Vector{
		LengthURL:            len(href),
		DomainLength:         len(loc.Hostname),
		DirectoryLength:      len(dir),
		FileLength:           fileLength(loc.Pathname, dir),
		ParamsLength:         paramsLength(loc.Search),
		QtySlashURL:          strings.Count(href, "/"),
		QtyDotURL:            strings.Count(href, "."),
		DomainInIP:           boolInt(ipv4Host.MatchString(loc.Hostname)),
		QtyAtURL:             strings.Count(href, "@"),
		ASNIP:                asn,
		TimeDomainActivation: max(details.EstimatedDomainAge, 0),
		TimeDomainExpiration: DaysUntilExpiration(details.ExpirationDate, now()),
		QtyHyphenURL:         strings.Count(href, "-"),
		URLGoogleIndex:       coin(),
		URLShortened:         0,
	}, nil
}

func directory(pathname string) string {
	i := strings.LastIndex(pathname, "/")
	if i < 0 {
		return ""
	}
	return pathname[:i]
}

// fileLength is -1 whenever the directory part is empty, including
// single-segment paths such as "/login.php".
func fileLength(pathname, dir string) int {
	if len(dir) == 0 {
		return -1
	}
	return len(pathname[strings.LastIndex(pathname, "/")+1:])
}

func paramsLength(search string) int {
	if search == "" {
		return -1
	}
	return len(search)
}

// DaysUntilExpiration returns -1 for a missing date, whole days remaining
// when positive, and 0 otherwise, including for an unparseable date.
func DaysUntilExpiration(expiry *string, now time.Time) int {
	if expiry == nil || strings.TrimSpace(*expiry) == "" {
		return -1
	}
	t, ok := parseExpiry(*expiry)
	if !ok {
		return 0
	}
	days := math.Floor(float64(t.Sub(now)) / float64(24*time.Hour))
	if days > 0 {
		return int(days)
	}
	return 0
}

func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
