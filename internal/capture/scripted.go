package capture

import (
	"context"
	"sync"
	"time"
)

// ScriptedRecognizer replays a fixed sequence of transcript events. It backs
// demo mode when no recognizer credentials are configured, and tests.
type ScriptedRecognizer struct {
	Events []Event
	// Gap is the pause between replayed events; zero means 250ms.
	Gap time.Duration
}

func (r *ScriptedRecognizer) Start(ctx context.Context) (Stream, error) {
	gap := r.Gap
	if gap == 0 {
		gap = 250 * time.Millisecond
	}
	s := &scriptedStream{events: make(chan Event, len(r.Events)+1), stopCh: make(chan struct{})}
	go func() {
		defer s.closeEvents()
		for _, ev := range r.Events {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(gap):
			}
			select {
			case s.events <- ev:
			case <-s.stopCh:
				return
			}
		}
	}()
	return s, nil
}

type scriptedStream struct {
	events    chan Event
	stopCh    chan struct{}
	closeOnce sync.Once
	eventOnce sync.Once
}

func (s *scriptedStream) Events() <-chan Event { return s.events }

func (s *scriptedStream) SendAudio([]byte) error { return nil }

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *scriptedStream) closeEvents() {
	s.eventOnce.Do(func() { close(s.events) })
}
