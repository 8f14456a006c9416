package whois

import (
	"encoding/json"

	"github.com/shrey-shah842/phishguard/internal/failure"
)

// Details are the registration facts used as model features. The zero value
// is the sentinel for an unavailable lookup; an age of 0 can also mean a
// freshly registered domain.
type Details struct {
	EstimatedDomainAge int     `json:"estimatedDomainAge"`
	ExpirationDate     *string `json:"expirationDate"`
}

type Result struct {
	Details Details
	Err     error
}

// Fail returns the sentinel result carrying err.
func Fail(err error) Result {
	return Result{Err: err}
}

type wireResult struct {
	EstimatedDomainAge int          `json:"estimatedDomainAge"`
	ExpirationDate     *string      `json:"expirationDate"`
	Error              string       `json:"error,omitempty"`
	ErrorKind          failure.Kind `json:"errorKind,omitempty"`
}

// MarshalJSON encodes {estimatedDomainAge, expirationDate, error?, errorKind?}.
func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		EstimatedDomainAge: r.Details.EstimatedDomainAge,
		ExpirationDate:     r.Details.ExpirationDate,
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
	*r = Result{
		Details: Details{
			EstimatedDomainAge: max(w.EstimatedDomainAge, 0),
			ExpirationDate:     w.ExpirationDate,
		},
		Err: failure.FromWire(w.ErrorKind, w.Error),
	}
	return nil
}
