// Package smoother implements the typed-lag output pacer: it yields a
// stream's characters one at a time, each after a delay that shrinks as the
// pending queue grows, so bursty upstream text still reads as a steady
// human-paced typing cadence.
package smoother

import (
	"context"
	"time"

	"github.com/justinlietz93/toolstream/pkg/observability"
)

// DefaultInitialDelay is D0, the per-character delay at an empty queue.
const DefaultInitialDelay = 32 * time.Millisecond

// DefaultZeroDelayQueue is Q0, the queue length at which delay saturates to 0.
const DefaultZeroDelayQueue = 64

// Smoother paces character-by-character output with a queue-length-dependent
// delay. A Smoother is not safe for concurrent use by multiple goroutines
// feeding text into the same Smooth call; a pipeline has exactly one
// producer and one consumer per stream, per the concurrency model.
type Smoother struct {
	StreamID     string
	initialDelay time.Duration
	zeroDelayQ   int
}

// Option configures a Smoother.
type Option func(*Smoother)

// WithInitialDelay overrides D0, the per-character delay at an empty queue.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Smoother) { s.initialDelay = d }
}

// WithZeroDelayQueue overrides Q0, the queue length at which delay reaches 0.
func WithZeroDelayQueue(q int) Option {
	return func(s *Smoother) { s.zeroDelayQ = q }
}

// WithStreamID records a stream identifier on the Smoother. The queue-depth
// gauge is not labeled by stream.
func WithStreamID(id string) Option {
	return func(s *Smoother) { s.StreamID = id }
}

// New creates a Smoother with the default 32ms/64 delay curve.
func New(opts ...Option) *Smoother {
	s := &Smoother{
		initialDelay: DefaultInitialDelay,
		zeroDelayQ:   DefaultZeroDelayQueue,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the per-character delay for the given pending queue length:
// max(0, D0 - (D0/Q0)*queueLen).
func (s *Smoother) Delay(queueLen int) time.Duration {
	if queueLen >= s.zeroDelayQ {
		return 0
	}
	d := s.initialDelay - (s.initialDelay/time.Duration(s.zeroDelayQ))*time.Duration(queueLen)
	if d < 0 {
		return 0
	}
	return d
}

// Smooth enqueues every rune of text and returns a channel yielding them one
// at a time, each after Delay(queue length). The channel is closed once text
// is exhausted or ctx is cancelled, whichever happens first. The queue is
// the whole of text queued up front (text is already fully buffered by the
// time it reaches the smoother — the executor has already resolved any tool
// calls within it), so the first rune sees queueLen == len(runes) and the
// last sees queueLen == 1.
func (s *Smoother) Smooth(ctx context.Context, text string) <-chan rune {
	runes := []rune(text)
	out := make(chan rune)

	go func() {
		defer close(out)
		defer observability.SetSmootherQueueDepth(0)

		remaining := len(runes)
		for _, r := range runes {
			observability.SetSmootherQueueDepth(remaining)

			delay := s.Delay(remaining)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			} else if ctx.Err() != nil {
				return
			}

			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
			remaining--
		}
	}()

	return out
}
