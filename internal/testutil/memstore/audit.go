package memstore

import (
	"context"
	"sync"

	"github.com/dalemusser/eventhub/internal/app/store/audit"
)

// AuditLog records audit events in memory. It satisfies auditlog.Store.
type AuditLog struct {
	faults
	mu     sync.Mutex
	events []audit.Event
}

func (s *AuditLog) Log(ctx context.Context, e audit.Event) error {
	if err := s.hit("Log"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Types returns the event types recorded so far, in order.
func (s *AuditLog) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
