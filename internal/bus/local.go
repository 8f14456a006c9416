package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/logging"
)

type envelope struct {
	data  []byte
	reply chan []byte
}

// Local is an in-process Transport. Messages and responses are passed as
// encoded JSON so neither side shares memory with the other.
type Local struct {
	requests chan envelope
	closed   chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

// NewLocal creates a Local bus with the given request queue depth.
func NewLocal(buffer int, logger *zap.Logger) *Local {
	return &Local{
		requests: make(chan envelope, buffer),
		closed:   make(chan struct{}),
		logger:   logging.OrNop(logger).Named("bus"),
	}
}

// RoundTrip implements Transport. Abandoning a call through ctx leaves the
// late reply in a buffered channel to be dropped.
func (l *Local) RoundTrip(ctx context.Context, m Message) (Response, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Response{}, fmt.Errorf("encode message: %w", err)
	}

	env := envelope{data: data, reply: make(chan []byte, 1)}
	select {
	case l.requests <- env:
	case <-l.closed:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case raw := <-env.reply:
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		return resp, nil
	case <-l.closed:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Serve dispatches each message on its own goroutine until ctx is done or
// Close is called, then waits for in-flight handlers.
func (l *Local) Serve(ctx context.Context, d Dispatcher) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case env := <-l.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				env.reply <- l.handle(ctx, d, env.data)
			}()
		case <-l.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Local) handle(ctx context.Context, d Dispatcher, data []byte) []byte {
	var m Message
	var resp Response
	if err := json.Unmarshal(data, &m); err != nil {
		resp = Fail(failure.New(failure.ParseFailure, "bus.decode", err))
	} else {
		resp = d.Dispatch(ctx, m)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		l.logger.Error("encode response failed", logging.Action(string(m.Action)), zap.Error(err))
		out, _ = json.Marshal(Fail(failure.New(failure.ParseFailure, "bus.encode", err)))
	}
	return out
}

// Close stops Serve and fails pending and future round trips.
func (l *Local) Close() {
	l.once.Do(func() { close(l.closed) })
}
