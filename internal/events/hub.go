package events

import (
	"sync"
	"time"

	"ykj/studio/internal/model"

	"github.com/google/uuid"
)

const (
	TopicWorkflow = "workflow"
	TopicChat     = "chat"

	defaultBacklog = 256
)

// Hub fans state-change events out to topic subscribers and keeps a short
// backlog per topic so late subscribers can catch up.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[string]chan model.Event
	seq     map[string]int64
	backlog map[string][]model.Event
	keep    int
}

func NewHub() *Hub {
	return &Hub{
		subs:    map[string]map[string]chan model.Event{},
		seq:     map[string]int64{},
		backlog: map[string][]model.Event{},
		keep:    defaultBacklog,
	}
}

func (h *Hub) Subscribe(topic string, buf int) (string, <-chan model.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subID := uuid.NewString()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = map[string]chan model.Event{}
	}
	ch := make(chan model.Event, buf)
	h.subs[topic][subID] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		topicSubs, ok := h.subs[topic]
		if !ok {
			return
		}
		c, ok := topicSubs[subID]
		if !ok {
			return
		}
		delete(topicSubs, subID)
		close(c)
		if len(topicSubs) == 0 {
			delete(h.subs, topic)
		}
	}
	return subID, ch, unsubscribe
}

// Publish stamps the event with the next topic sequence and delivers it.
func (h *Hub) Publish(topic string, typ model.EventType, payload map[string]any) model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[topic]++
	evt := model.Event{
		EventID: uuid.NewString(),
		Seq:     h.seq[topic],
		Topic:   topic,
		Type:    typ,
		TS:      time.Now().UTC(),
		Payload: payload,
	}
	kept := append(h.backlog[topic], evt)
	if len(kept) > h.keep {
		kept = kept[len(kept)-h.keep:]
	}
	h.backlog[topic] = kept

	for _, ch := range h.subs[topic] {
		select {
		case ch <- evt:
		default:
			// Drop stale subscribers to keep producer non-blocking.
		}
	}
	return evt
}

// Since returns retained events on topic with Seq greater than seq.
func (h *Hub) Since(topic string, seq int64) []model.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []model.Event
	for _, evt := range h.backlog[topic] {
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}
