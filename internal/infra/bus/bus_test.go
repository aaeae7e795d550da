package bus_test

import (
	"testing"

	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
)

func TestPublishOrder(t *testing.T) {
	b := bus.New()

	var got []int
	b.Subscribe(bus.TopicXPGained, func(any) { got = append(got, 1) })
	b.Subscribe(bus.TopicXPGained, func(any) { got = append(got, 2) })
	b.Subscribe(bus.TopicXPGained, func(any) { got = append(got, 3) })

	b.PublishXPGained(domain.XPGainedEvent{})

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected delivery in subscription order, got %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := bus.New()

	calls := 0
	unsub := b.Subscribe(bus.TopicLevelUp, func(any) { calls++ })

	b.PublishLevelUp(domain.LevelUpEvent{})
	unsub()
	unsub() // second call is a no-op
	b.PublishLevelUp(domain.LevelUpEvent{})

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestPanickingHandlerSkipped(t *testing.T) {
	b := bus.New()

	var after bool
	b.Subscribe(bus.TopicXPGained, func(any) { panic("boom") })
	b.Subscribe(bus.TopicXPGained, func(any) { after = true })

	b.PublishXPGained(domain.XPGainedEvent{})

	if !after {
		t.Error("handler after a panicking one should still run")
	}
}

func TestPayloadDelivered(t *testing.T) {
	b := bus.New()

	var ev domain.MonthlyMilestoneReachedEvent
	b.Subscribe(bus.TopicMilestoneReached, func(p any) {
		ev = p.(domain.MonthlyMilestoneReachedEvent)
	})

	b.PublishMilestoneReached(domain.MonthlyMilestoneReachedEvent{
		ChallengeID: "challenge-2026-08",
		Milestone:   50,
		XPAwarded:   300,
	})

	if ev.Milestone != 50 || ev.XPAwarded != 300 {
		t.Errorf("unexpected payload: %+v", ev)
	}
}
