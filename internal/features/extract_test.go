package features

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testExtractor(coin int) Extractor {
	return Extractor{
		Now:  func() time.Time { return fixedNow },
		Coin: func() int { return coin },
	}
}

func strp(s string) *string { return &s }

func TestExtractPathAndQuery(t *testing.T) {
	v, err := testExtractor(1).Extract("https://example.com/a/b?x=1", whois.Details{}, -1)
	require.NoError(t, err)

	assert.Equal(t, 27, v.LengthURL)
	assert.Equal(t, 11, v.DomainLength)
	assert.Equal(t, 2, v.DirectoryLength)
	assert.Equal(t, 1, v.FileLength)
	assert.Equal(t, 4, v.ParamsLength)
	assert.Equal(t, 4, v.QtySlashURL)
	assert.Equal(t, 1, v.QtyDotURL)
	assert.Equal(t, 0, v.DomainInIP)
	assert.Equal(t, 0, v.QtyAtURL)
	assert.Equal(t, -1, v.ASNIP)
	assert.Equal(t, 0, v.TimeDomainActivation)
	assert.Equal(t, -1, v.TimeDomainExpiration)
	assert.Equal(t, 0, v.QtyHyphenURL)
	assert.Equal(t, 1, v.URLGoogleIndex)
	assert.Equal(t, 0, v.URLShortened)
}

func TestExtractIPHost(t *testing.T) {
	v, err := testExtractor(0).Extract("http://192.168.0.1/", whois.Details{}, -1)
	require.NoError(t, err)

	assert.Equal(t, 1, v.DomainInIP)
	assert.Equal(t, 0, v.DirectoryLength)
	assert.Equal(t, -1, v.FileLength)
	assert.Equal(t, -1, v.ParamsLength)
	assert.Equal(t, 0, v.URLGoogleIndex)
}

func TestExtractPathShapes(t *testing.T) {
	tests := []struct {
		href     string
		want     string
		dir      int
		file     int
		params   int
		hostname int
	}{
		{"https://example.com", "https://example.com/", 0, -1, -1, 11},
		{"https://example.com/login.php", "https://example.com/login.php", 0, -1, -1, 11},
		{"https://example.com/dir/", "https://example.com/dir/", 4, 0, -1, 11},
		{"https://example.com/?", "https://example.com/?", 0, -1, -1, 11},
		{"https://EXAMPLE.com/a/b.html?q=1&r=2", "https://example.com/a/b.html?q=1&r=2", 2, 6, 8, 11},
		{"https://bücher.de/", "https://xn--bcher-kva.de/", 0, -1, -1, 16},
		{"https://[::1]:8080/x/y", "https://[::1]:8080/x/y", 2, 1, -1, 5},
		{"https://user@secure-login.example.com/a/b", "https://user@secure-login.example.com/a/b", 2, 1, -1, 24},
		{"https://example.com/café/x", "https://example.com/caf%C3%A9/x", 10, 1, -1, 11},
		{"HTTPS://Example.COM:443", "https://example.com/", 0, -1, -1, 11},
		{"http://example.com:8080", "http://example.com:8080/", 0, -1, -1, 11},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			loc, err := ParseLocation(tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Href)

			v, err := testExtractor(0).Extract(tt.href, whois.Details{}, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.dir, v.DirectoryLength, "directory_length")
			assert.Equal(t, tt.file, v.FileLength, "file_length")
			assert.Equal(t, tt.params, v.ParamsLength, "params_length")
			assert.Equal(t, tt.hostname, v.DomainLength, "domain_length")
			assert.Equal(t, len(tt.want), v.LengthURL, "length_url")
		})
	}
}

func TestExtractSameLocationSameVector(t *testing.T) {
	tests := [][2]string{
		{"https://example.com", "https://example.com/"},
		{"HTTPS://EXAMPLE.COM/Path", "https://example.com/Path"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"https://bücher.de/x", "https://xn--bcher-kva.de/x"},
		{"https://example.com/café", "https://example.com/caf%C3%A9"},
	}
	for _, tt := range tests {
		t.Run(tt[0], func(t *testing.T) {
			a, err := testExtractor(1).Extract(tt[0], whois.Details{}, -1)
			require.NoError(t, err)
			b, err := testExtractor(1).Extract(tt[1], whois.Details{}, -1)
			require.NoError(t, err)
			assert.Equal(t, b, a)
		})
	}
}

func TestExtractCounts(t *testing.T) {
	href := "http://a-b.c-d.example.com/x@y/z.php?a=b.c"
	v, err := testExtractor(0).Extract(href, whois.Details{}, -1)
	require.NoError(t, err)

	assert.Equal(t, 4, v.QtySlashURL)
	assert.Equal(t, 5, v.QtyDotURL)
	assert.Equal(t, 2, v.QtyHyphenURL)
	assert.Equal(t, 1, v.QtyAtURL)
}

func TestExtractDomainDetails(t *testing.T) {
	details := whois.Details{EstimatedDomainAge: 365, ExpirationDate: strp("2024-01-11T00:00:00Z")}
	v, err := testExtractor(0).Extract("https://example.com/", details, 13335)
	require.NoError(t, err)

	assert.Equal(t, 365, v.TimeDomainActivation)
	assert.Equal(t, 10, v.TimeDomainExpiration)
	assert.Equal(t, 13335, v.ASNIP)
}

func TestExtractInvalidURL(t *testing.T) {
	for _, href := range []string{"", "/relative/path", "mailto:someone@example.com", "::not a url"} {
		_, err := testExtractor(0).Extract(href, whois.Details{}, -1)
		assert.True(t, errors.Is(err, failure.ErrInvalidURL), "href %q: %v", href, err)
	}
}

func TestExtractDefaultCoinIsBinary(t *testing.T) {
	var e Extractor
	for i := 0; i < 20; i++ {
		v, err := e.Extract("https://example.com/", whois.Details{}, -1)
		require.NoError(t, err)
		assert.Contains(t, []int{0, 1}, v.URLGoogleIndex)
	}
}

func TestDaysUntilExpiration(t *testing.T) {
	tests := []struct {
		name   string
		expiry *string
		want   int
	}{
		{"missing", nil, -1},
		{"blank", strp(""), -1},
		{"ten days", strp("2024-01-11T00:00:00Z"), 10},
		{"date only", strp("2024-01-31"), 30},
		{"offset without colon", strp("2024-01-03T00:00:00+0000"), 2},
		{"partial day floors to zero", strp("2024-01-01T12:00:00Z"), 0},
		{"past", strp("2023-01-01"), 0},
		{"unparseable", strp("next tuesday"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilExpiration(tt.expiry, fixedNow))
		})
	}
}

func TestVectorOrder(t *testing.T) {
	v := Vector{LengthURL: 1, URLShortened: 15, ASNIP: 10}

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"length_url":1,"domain_length":0,"directory_length":0,"file_length":0,"params_length":0,`+
			`"qty_slash_url":0,"qty_dot_url":0,"domain_in_ip":0,"qty_at_url":0,"asn_ip":10,`+
			`"time_domain_activation":0,"time_domain_expiration":0,"qty_hyphen_url":0,`+
			`"url_google_index":0,"url_shortened":15}`,
		string(data))

	assert.Len(t, Names(), 15)
	assert.Len(t, v.Values(), 15)

	got, err := v.Get("asn_ip")
	require.NoError(t, err)
	assert.Equal(t, 10, got)
	_, err = v.Get("nope")
	assert.Error(t, err)

	assert.Equal(t, 15, v.Map()["url_shortened"])
}
