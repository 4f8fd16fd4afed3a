package events

import (
	"testing"

	"ykj/studio/internal/model"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub()
	_, ch, unsubscribe := h.Subscribe(TopicChat, 4)

	h.Publish(TopicWorkflow, model.EventWorkflowState, nil)
	evt := h.Publish(TopicChat, model.EventChatMessage, map[string]any{"index": 0})

	got := <-ch
	if got.EventID != evt.EventID || got.Seq != 1 || got.Topic != TopicChat {
		t.Fatalf("unexpected event: %+v", got)
	}

	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	// second unsubscribe is a no-op
	unsubscribe()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, _, unsubscribe := h.Subscribe(TopicWorkflow, 1)
	defer unsubscribe()
	for i := 0; i < 10; i++ {
		h.Publish(TopicWorkflow, model.EventWorkflowState, nil)
	}
}

func TestSince(t *testing.T) {
	h := NewHub()
	for i := 0; i < 5; i++ {
		h.Publish(TopicWorkflow, model.EventWorkflowState, nil)
	}
	got := h.Since(TopicWorkflow, 3)
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Fatalf("unexpected backlog: %+v", got)
	}

	h.keep = 2
	h.Publish(TopicWorkflow, model.EventWorkflowState, nil)
	if got := h.Since(TopicWorkflow, 0); len(got) != 2 || got[0].Seq != 5 {
		t.Fatalf("backlog should be trimmed, got %+v", got)
	}
}
