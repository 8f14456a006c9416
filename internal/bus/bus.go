// Package bus carries typed request/response messages between a page
// context and the service context. Only serialized values cross it.
package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shrey-shah842/phishguard/internal/failure"
)

// Action names a service operation.
type Action string

const (
	ScanURL              Action = "scanURL"
	ExtractDomainDetails Action = "extractDomainDetails"
	AddToWhitelist       Action = "addToWhitelist"
	RemoveFromWhitelist  Action = "removeFromWhitelist"
	LookupASN            Action = "lookupASN"
)

var (
	ErrInFlight = errors.New("request already in flight for action")
	ErrTimeout  = errors.New("request timed out")
	ErrClosed   = errors.New("bus closed")
)

type Message struct {
	Action Action `json:"action"`
	URL    string `json:"url"`
}

// Response answers exactly one Message. Error is set when the service could
// not produce a result at all; per-operation failures travel inside Result.
type Response struct {
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind failure.Kind    `json:"errorKind,omitempty"`
}

// Err rebuilds the dispatch-level error, if any.
func (r Response) Err() error {
	return failure.FromWire(r.ErrorKind, r.Error)
}

// Respond encodes v as a successful Response.
func Respond(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(failure.New(failure.ParseFailure, "bus.Respond", err))
	}
	return Response{Result: data}
}

// Fail returns a Response carrying err.
func Fail(err error) Response {
	return Response{Error: err.Error(), ErrorKind: failure.KindOf(err)}
}

// Transport delivers one Message and waits for its Response.
type Transport interface {
	RoundTrip(ctx context.Context, m Message) (Response, error)
}

// Dispatcher handles messages on the service side.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) Response
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, m Message) Response

func (f DispatcherFunc) Dispatch(ctx context.Context, m Message) Response { return f(ctx, m) }
