// Package bus is a small in-process event bus connecting the reward
// services to each other and to downstream consumers. Delivery is
// synchronous and in subscription order so handlers observe events in
// the order they were published.
package bus

import (
	"log"
	"sync"

	"github.com/rise-habits/rise/internal/domain"
)

// Topic identifies one event stream.
type Topic string

const (
	TopicXPGained          Topic = "xp.gained"
	TopicXPBatchCommitted  Topic = "xp.batch_committed"
	TopicLevelUp           Topic = "level.up"
	TopicProgressUpdated   Topic = "challenge.progress_updated"
	TopicMilestoneReached  Topic = "challenge.milestone_reached"
	TopicStreakReset       Topic = "streak.reset"
	TopicChallengeFinished Topic = "challenge.finalized"
)

// Handler receives a published event. The payload's concrete type is
// fixed per topic (see the Publish* helpers below).
type Handler func(payload any)

type subscription struct {
	id int
	fn Handler
}

// Bus fans events out to subscribers. The zero value is not usable;
// call New.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns an unsubscribe func.
// Unsubscribing is idempotent.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[topic]
			for i, s := range subs {
				if s.id == id {
					b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers payload to every subscriber of topic, in
// subscription order. A panicking handler is logged and skipped; it
// never takes down the publisher or the remaining handlers.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(topic, s, payload)
	}
}

func deliver(topic Topic, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] handler panic on %s: %v", topic, r)
		}
	}()
	s.fn(payload)
}

// Typed publish helpers keep the topic/payload pairing in one place.

func (b *Bus) PublishXPGained(ev domain.XPGainedEvent) { b.Publish(TopicXPGained, ev) }

func (b *Bus) PublishXPBatchCommitted(ev domain.XPBatchCommittedEvent) {
	b.Publish(TopicXPBatchCommitted, ev)
}

func (b *Bus) PublishLevelUp(ev domain.LevelUpEvent) { b.Publish(TopicLevelUp, ev) }

func (b *Bus) PublishProgressUpdated(ev domain.MonthlyProgressUpdatedEvent) {
	b.Publish(TopicProgressUpdated, ev)
}

func (b *Bus) PublishMilestoneReached(ev domain.MonthlyMilestoneReachedEvent) {
	b.Publish(TopicMilestoneReached, ev)
}
