package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"examgrader/internal/common/mq"
	"examgrader/internal/grading/model"
)

// EventPublisher announces committed submissions to downstream consumers.
type EventPublisher interface {
	PublishGraded(ctx context.Context, event model.SubmissionGradedEvent) error
}

// MQEventPublisher publishes graded events as JSON keyed by submission id.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

func NewMQEventPublisher(producer mq.Producer, topic string) (*MQEventPublisher, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &MQEventPublisher{producer: producer, topic: topic}, nil
}

func (p *MQEventPublisher) PublishGraded(ctx context.Context, event model.SubmissionGradedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode graded event: %w", err)
	}
	msg := mq.NewMessage(event.SubmissionID, body)
	msg.SetHeader("event_type", event.EventType)
	msg.SetHeader("exam_set_id", event.ExamSetID)
	return p.producer.Publish(ctx, p.topic, msg)
}
