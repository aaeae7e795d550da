// Package adapter routes ledger events into the monthly challenge
// tracker. It keeps its own debounce buffer, independent of the
// ledger's batching, so a slow tracker can never throttle XP awarding.
package adapter

import (
	"log"
	"sync"
	"time"

	"github.com/rise-habits/rise/internal/app/challenge"
	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
)

// Config holds the debounce knobs.
type Config struct {
	DebounceWindow time.Duration
	MaxBuffer      int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 250 * time.Millisecond,
		MaxBuffer:      50,
	}
}

// Adapter subscribes to per-transaction ledger events and forwards
// them, debounced, to the progress tracker. Forwarding is best-effort:
// failures are logged and swallowed, never re-thrown, so gamification
// bookkeeping cannot block the user action that earned the XP.
type Adapter struct {
	mu      sync.Mutex
	tracker *challenge.Tracker
	cfg     Config

	buf   []domain.XPGainedEvent
	timer *time.Timer
	unsub func()
}

// New wires the adapter into the bus.
func New(b *bus.Bus, tracker *challenge.Tracker, cfg Config) *Adapter {
	a := &Adapter{tracker: tracker, cfg: cfg}
	a.unsub = b.Subscribe(bus.TopicXPGained, a.onXPGained)
	return a
}

func (a *Adapter) onXPGained(payload any) {
	ev, ok := payload.(domain.XPGainedEvent)
	if !ok {
		return
	}
	// Reversals and challenge feedback never advance a challenge.
	switch ev.Transaction.Source {
	case domain.SourceReversal, domain.SourceChallengeReward, domain.SourceMilestoneBonus:
		return
	}

	a.mu.Lock()
	a.buf = append(a.buf, ev)
	if len(a.buf) >= a.cfg.MaxBuffer {
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		buf := a.buf
		a.buf = nil
		a.mu.Unlock()
		a.forward(buf)
		return
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.cfg.DebounceWindow, a.flush)
	}
	a.mu.Unlock()
}

func (a *Adapter) flush() {
	a.mu.Lock()
	a.timer = nil
	buf := a.buf
	a.buf = nil
	a.mu.Unlock()
	a.forward(buf)
}

func (a *Adapter) forward(buf []domain.XPGainedEvent) {
	for _, ev := range buf {
		a.forwardOne(ev)
	}
}

func (a *Adapter) forwardOne(ev domain.XPGainedEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[adapter] progress forward panic: %v", r)
		}
	}()
	tx := ev.Transaction
	a.tracker.UpdateProgress(tx.Source, tx.Amount, tx.SourceID, tx.Date)
}

// Close unsubscribes and flushes the buffer so no pending event is
// dropped on teardown.
func (a *Adapter) Close() {
	if a.unsub != nil {
		a.unsub()
	}
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	buf := a.buf
	a.buf = nil
	a.mu.Unlock()
	a.forward(buf)
}
