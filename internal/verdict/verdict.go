// Package verdict defines evaluation outcomes and the presenters that
// surface them.
package verdict

import (
	"encoding/json"
	"time"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
)

// Kind tags a verdict.
type Kind string

const (
	Safe               Kind = "safe"
	ThreatMatch        Kind = "threat_match"
	HomoglyphSuspected Kind = "homoglyph_suspected"
	ModelFlagged       Kind = "model_flagged"
	Unknown            Kind = "unknown"
)

// Warning texts shown to the user.
const (
	MessageThreatMatch  = "This site is a known phishing site"
	MessageHomoglyph    = "This URL contains homographs, which may indicate a phishing attempt."
	MessageModelFlagged = "This site could potentially be phishing!"
)

// Verdict is one conclusion about a page. Matches is set for ThreatMatch and
// Reason for Unknown.
type Verdict struct {
	Kind         Kind                 `json:"kind"`
	URL          string               `json:"url"`
	EvaluationID string               `json:"evaluation_id"`
	Matches      []safebrowsing.Match `json:"matches,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	ReasonKind   failure.Kind         `json:"reason_kind,omitempty"`
	At           time.Time            `json:"at"`
}

// Warns reports whether the verdict should be shown as a warning.
func (v Verdict) Warns() bool {
	switch v.Kind {
	case ThreatMatch, HomoglyphSuspected, ModelFlagged:
		return true
	}
	return false
}

// Message returns the warning text, or "" for verdicts that do not warn.
func (v Verdict) Message() string {
	switch v.Kind {
	case ThreatMatch:
		return MessageThreatMatch
	case HomoglyphSuspected:
		return MessageHomoglyph
	case ModelFlagged:
		return MessageModelFlagged
	}
	return ""
}

// WithReason fills Reason and ReasonKind from err.
func (v Verdict) WithReason(err error) Verdict {
	if err != nil {
		v.Reason = err.Error()
		v.ReasonKind = failure.KindOf(err)
	}
	return v
}

func (v Verdict) String() string {
	b, _ := json.Marshal(v)
	return string(b)
}
