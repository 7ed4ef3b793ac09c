package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"note-editor-core/internal/dto"
	"note-editor-core/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// recentNotificationLimit bounds the in-memory notification history.
const recentNotificationLimit = 256

type IDispatcherService interface {
	Start(ctx context.Context) error
	Recent(limit int) []dto.NotificationRecord
}

type dispatcherService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	logger    logger.ILogger

	mu     sync.Mutex
	recent []dto.NotificationRecord
}

func NewDispatcherService(
	pubSub *gochannel.GoChannel,
	topicName string,
	log logger.ILogger,
) IDispatcherService {
	return &dispatcherService{
		pubSub:    pubSub,
		topicName: topicName,
		logger:    log,
	}
}

func (ds *dispatcherService) Start(ctx context.Context) error {
	messages, err := ds.pubSub.Subscribe(ctx, ds.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ds.processMessage(msg)
		}
	}()

	return nil
}

func (ds *dispatcherService) processMessage(msg *message.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		ds.logger.Error("DispatcherService", "Failed to unmarshal notification", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	record := dto.NotificationRecord{
		Id:         uuid.New(),
		Type:       env.Type,
		Payload:    env.Data,
		OccurredAt: env.OccurredAt,
		ReceivedAt: time.Now(),
	}

	ds.mu.Lock()
	ds.recent = append(ds.recent, record)
	if len(ds.recent) > recentNotificationLimit {
		ds.recent = ds.recent[len(ds.recent)-recentNotificationLimit:]
	}
	ds.mu.Unlock()

	ds.logger.Info("DispatcherService", "Notification dispatched", map[string]interface{}{
		"type":    env.Type,
		"payload": env.Data,
	})

	msg.Ack()
}

// Recent returns the newest notifications, newest first.
func (ds *dispatcherService) Recent(limit int) []dto.NotificationRecord {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if limit <= 0 || limit > len(ds.recent) {
		limit = len(ds.recent)
	}

	out := make([]dto.NotificationRecord, 0, limit)
	for i := len(ds.recent) - 1; i >= len(ds.recent)-limit; i-- {
		out = append(out, ds.recent[i])
	}
	return out
}
