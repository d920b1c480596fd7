package services

import (
	"context"
	"sync"

	"github.com/shipnest/apiserver/types"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordedEvents) Publish(_ context.Context, event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) kinds() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}
