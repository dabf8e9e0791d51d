package server

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestTickerServiceInvokesTick(t *testing.T) {
	var ticks atomic.Int64
	svc := NewTickerService(time.Millisecond, func(time.Time) {
		ticks.Add(1)
	}, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("ticker did not fire in time")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	svc.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop in time")
	}

	// No ticks arrive after Stop returns.
	settled := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestTickerServiceStopIsIdempotent(t *testing.T) {
	svc := NewTickerService(time.Millisecond, func(time.Time) {}, zaptest.NewLogger(t))
	go func() { _ = svc.Start() }()
	time.Sleep(5 * time.Millisecond)

	svc.Stop()
	svc.Stop()
}
