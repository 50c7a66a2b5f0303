package realtime

import (
	"errors"
	"sync"

	"github.com/nao1215/socialhub/pkg/event"
)

// recordingSender は受け取ったイベントを記録する。
type recordingSender struct {
	mu     sync.Mutex
	events []*event.Envelope
}

func (s *recordingSender) Send(env *event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, env)
	return nil
}

func (s *recordingSender) received() []*event.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Envelope(nil), s.events...)
}

// failingSender は常に送信に失敗する。
type failingSender struct {
	calls int
}

var errBrokenPipe = errors.New("broken pipe")

func (s *failingSender) Send(*event.Envelope) error {
	s.calls++
	return errBrokenPipe
}
