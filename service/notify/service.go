// Package notify defines the notification channel collaborator used by the
// coordinator to announce epic start, approval checkpoints and completion.
// It is not required for correctness of the orchestration machine itself.
package notify

import (
	"context"
)

// MessageRef identifies a posted message so that followups can reply in its
// thread.
type MessageRef struct {
	ChannelID string `json:"channelId"`
	Timestamp string `json:"timestamp"`
}

// Service posts messages to a chat channel.
type Service interface {
	// PostMessage posts text to a channel and returns a reference usable for
	// threaded replies.
	PostMessage(ctx context.Context, channelID, text string) (*MessageRef, error)

	// ReplyInThread posts text as a reply under ref.
	ReplyInThread(ctx context.Context, channelID string, ref *MessageRef, text string) error
}

// Nop is a no-op notifier for embedders that do not wire a channel.
type Nop struct{}

func (Nop) PostMessage(_ context.Context, channelID, _ string) (*MessageRef, error) {
	return &MessageRef{ChannelID: channelID}, nil
}

func (Nop) ReplyInThread(context.Context, string, *MessageRef, string) error { return nil }
