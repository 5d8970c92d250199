package vision

import (
	"time"

	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
)

// Bus topics carrying ReplyEvent payloads.
const (
	TopicReply = "vision.reply"
	TopicError = "vision.error"
)

// ReplyEvent is published for every delivered reply or error.
type ReplyEvent struct {
	Kind  string    `json:"kind"` // "reply" | "error"
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// PublishTo returns a copy of opts whose callbacks also publish to bus.
// Callbacks already set on opts still run, after publishing.
func PublishTo(bus eventbus.EventBus, opts StreamOptions) StreamOptions {
	onReply, onError := opts.OnReply, opts.OnError
	opts.OnReply = func(reply string) {
		bus.Publish(TopicReply, ReplyEvent{Kind: "reply", Text: reply, At: time.Now().UTC()})
		if onReply != nil {
			onReply(reply)
		}
	}
	opts.OnError = func(err error) {
		bus.Publish(TopicError, ReplyEvent{Kind: "error", Error: err.Error(), At: time.Now().UTC()})
		if onError != nil {
			onError(err)
		}
	}
	return opts
}
