package safebrowsing

import (
	"encoding/json"

	"github.com/shrey-shah842/phishguard/internal/failure"
)

// Status tags a lookup result.
type Status string

const (
	Clean    Status = "clean"
	Threat   Status = "threat"
	Degraded Status = "degraded"
)

type ThreatEntry struct {
	URL string `json:"url"`
}

// Match is one entry of the API's matches list.
type Match struct {
	ThreatType      string      `json:"threatType"`
	PlatformType    string      `json:"platformType"`
	ThreatEntryType string      `json:"threatEntryType"`
	Threat          ThreatEntry `json:"threat"`
	CacheDuration   string      `json:"cacheDuration,omitempty"`
}

// Result is the outcome of a lookup. Err is set only when Status is Degraded,
// and a degraded result never reports a threat.
type Result struct {
	Status  Status
	Matches []Match
	Err     error
}

// Degrade wraps err as a Degraded result.
func Degrade(err error) Result {
	return Result{Status: Degraded, Err: err}
}

// IsThreat reports whether the lookup positively matched a threat list.
func (r Result) IsThreat() bool {
	return r.Status == Threat && len(r.Matches) > 0
}

type wireResult struct {
	Threat    bool         `json:"Threat"`
	Matches   []Match      `json:"matches,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind failure.Kind `json:"errorKind,omitempty"`
}

// MarshalJSON encodes the bus form {Threat, matches?, error?, errorKind?}.
func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{Threat: r.IsThreat()}
	if w.Threat {
		w.Matches = r.Matches
	}
	if r.Err != nil {
		w.Error = r.Err.Error()
		w.ErrorKind = failure.KindOf(r.Err)
	}
	return json.Marshal(w)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Threat && len(w.Matches) > 0:
		*r = Result{Status: Threat, Matches: w.Matches}
	case w.Error != "" || w.ErrorKind != "":
		*r = Degrade(failure.FromWire(w.ErrorKind, w.Error))
	default:
		*r = Result{Status: Clean}
	}
	return nil
}
