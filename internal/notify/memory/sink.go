// Package memory contains an in-memory notification sink for tests and dry runs.
package memory

import (
	"context"
	"sync"
)

// Message captures one Notify call.
type Message struct {
	ChannelID string
	Text      string
}

// Sink stores delivered messages for inspection. Channels listed in FailFor return Err.
type Sink struct {
	mu       sync.RWMutex
	messages []Message
	failFor  map[string]error
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{failFor: make(map[string]error)}
}

// FailChannel makes every later delivery to channelID fail with err. A nil err clears it.
func (s *Sink) FailChannel(channelID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failFor, channelID)
		return
	}
	s.failFor[channelID] = err
}

// Notify records the message unless its channel is configured to fail.
func (s *Sink) Notify(_ context.Context, channelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[channelID]; ok {
		return err
	}
	s.messages = append(s.messages, Message{ChannelID: channelID, Text: text})
	return nil
}

// Messages returns the recorded deliveries.
func (s *Sink) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset drops recorded messages.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}
