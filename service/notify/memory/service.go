package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/epicflow/epicflow/service/notify"
)

// Posted captures one message for inspection in tests.
type Posted struct {
	ChannelID string
	ThreadTS  string
	Text      string
}

// Service is an in-memory notifier recording everything it is asked to post.
type Service struct {
	mux      sync.Mutex
	messages []Posted
	seq      int
}

var _ notify.Service = (*Service)(nil)

func New() *Service {
	return &Service{}
}

func (s *Service) PostMessage(_ context.Context, channelID, text string) (*notify.MessageRef, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.seq++
	ts := fmt.Sprintf("%d", s.seq)
	s.messages = append(s.messages, Posted{ChannelID: channelID, Text: text})
	return &notify.MessageRef{ChannelID: channelID, Timestamp: ts}, nil
}

func (s *Service) ReplyInThread(_ context.Context, channelID string, ref *notify.MessageRef, text string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	threadTS := ""
	if ref != nil {
		threadTS = ref.Timestamp
	}
	s.messages = append(s.messages, Posted{ChannelID: channelID, ThreadTS: threadTS, Text: text})
	return nil
}

// Messages returns a copy of everything posted so far.
func (s *Service) Messages() []Posted {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]Posted(nil), s.messages...)
}
