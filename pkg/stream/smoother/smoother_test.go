package smoother

import (
	"context"
	"testing"
	"time"
)

func TestDelay_Saturation(t *testing.T) {
	s := New(WithInitialDelay(32*time.Millisecond), WithZeroDelayQueue(64))

	cases := []struct {
		queueLen int
		want     time.Duration
	}{
		{0, 32 * time.Millisecond},
		{64, 0},
		{128, 0},
		{32, 16 * time.Millisecond},
	}
	for _, c := range cases {
		got := s.Delay(c.queueLen)
		if got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.queueLen, got, c.want)
		}
	}
}

func TestDelay_MonotonicNonIncreasing(t *testing.T) {
	s := New()
	prev := s.Delay(0)
	for q := 1; q <= 128; q++ {
		d := s.Delay(q)
		if d > prev {
			t.Fatalf("delay increased at queue length %d: %v > %v", q, d, prev)
		}
		prev = d
	}
}

func TestSmooth_EmitsEveryRuneInOrder(t *testing.T) {
	s := New(WithInitialDelay(0), WithZeroDelayQueue(64))
	ctx := context.Background()

	var got []rune
	for r := range s.Smooth(ctx, "hello, world") {
		got = append(got, r)
	}
	if string(got) != "hello, world" {
		t.Errorf("Smooth output = %q, want %q", string(got), "hello, world")
	}
}

func TestSmooth_ByteConservationEmptyText(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := s.Smooth(ctx, "")
	for range ch {
		t.Fatal("expected no runes from empty text")
	}
}

func TestSmooth_CancellationStopsEarly(t *testing.T) {
	s := New(WithInitialDelay(50*time.Millisecond), WithZeroDelayQueue(1000))
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Smooth(ctx, "this is a long piece of text that will not finish")
	first := <-ch
	if first == 0 {
		t.Fatal("expected at least one rune before cancellation")
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel did not close after cancellation")
		}
	}
}
