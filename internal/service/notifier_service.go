package service

import (
	"context"
	"encoding/json"

	"note-editor-core/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type INotifierService interface {
	Publish(ctx context.Context, event events.Event) error
}

type notifierService struct {
	topicName string
	pubSub    *gochannel.GoChannel
}

func NewNotifierService(topicName string, pubSub *gochannel.GoChannel) INotifierService {
	return &notifierService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

// envelope is the wire form of an event on the notification topic.
type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt string                 `json:"occurred_at"`
}

func (s *notifierService) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(envelope{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	return s.pubSub.Publish(s.topicName, msg)
}
