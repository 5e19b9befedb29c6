package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// DomainEventRecord is the transactional-outbox row for a DomainEvent. It is
// inserted in the same DB transaction as the status mutation that produced the
// event, which is what makes "produced exactly once" hold; the dispatcher
// publishes it afterwards.
type DomainEventRecord struct {
	ID           int       `gorm:"primary_key" json:"id"`
	EventId      string    `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	EventType    string    `gorm:"size:64;index;not null" json:"event_type"`
	EventVersion int       `gorm:"not null;default:1" json:"event_version"`
	OrgId        string    `gorm:"size:64;index;not null" json:"org_id"`
	PropertyId   int       `json:"property_id"`
	ActorUserId  int       `json:"actor_user_id"`
	EntityId     int       `json:"entity_id"`
	EntityType   string    `gorm:"size:32" json:"entity_type"`
	EventTime    time.Time `gorm:"not null" json:"event_time"`
	Payload      string    `gorm:"type:json;not null" json:"payload"`

	PublishStatus    string     `gorm:"size:16;index;not null;default:PENDING" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string    `json:"last_publish_error"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewDomainEventRecord snapshots a built event into an outbox row.
func NewDomainEventRecord(event *DomainEvent) (*DomainEventRecord, error) {
	if event == nil {
		return nil, fmt.Errorf("event is nil")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &DomainEventRecord{
		EventId:       event.EventId,
		EventType:     string(event.EventType),
		EventVersion:  event.EventVersion,
		OrgId:         event.OrgId,
		PropertyId:    event.PropertyId,
		ActorUserId:   event.ActorUserId,
		EntityId:      event.EntityId,
		EntityType:    string(event.EntityType),
		EventTime:     event.Timestamp,
		Payload:       string(payload),
		PublishStatus: OutboxPublishStatusPending,
	}, nil
}

// Event rebuilds the DomainEvent from the stored payload.
func (r *DomainEventRecord) Event() (*DomainEvent, error) {
	var event DomainEvent
	if err := json.Unmarshal([]byte(r.Payload), &event); err != nil {
		return nil, fmt.Errorf("unmarshal outbox payload (record %d): %w", r.ID, err)
	}
	return &event, nil
}

// EnqueueDomainEvent writes the outbox row inside the caller's transaction.
func EnqueueDomainEvent(ctx context.Context, tx *gorm.DB, event *DomainEvent) (*DomainEventRecord, error) {
	record, err := NewDomainEventRecord(event)
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("enqueue domain event: %w", err)
	}
	return record, nil
}
