package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/models"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const changeSubscriberHandler = "ChangeSubscriber"

// ChangeSubscriber handles delivered domain events:
// validated -> dates resolved -> invalidation dispatched -> optional ledger
// recompute -> acknowledged. Returning an error makes the caller Nack, so the
// bus redelivers; every step is therefore safe to repeat.
type ChangeSubscriber struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	Invalidator CacheInvalidator
	Batcher     *InvalidationBatcher

	// Defensive also invalidates day-1 (migration aid, off by default).
	Defensive bool
	// SyncRecompute re-derives affected ledger rows inline.
	SyncRecompute bool
}

func NewChangeSubscriber(db *gorm.DB, logger *logrus.Logger, invalidator CacheInvalidator, batcher *InvalidationBatcher) *ChangeSubscriber {
	return &ChangeSubscriber{
		DB:            db,
		Logger:        logger,
		Invalidator:   invalidator,
		Batcher:       batcher,
		Defensive:     config.DefensiveInvalidation(),
		SyncRecompute: config.SyncLedgerRecompute(),
	}
}

// ResolveAffectedDays unions the event's affected report dates with its
// transaction date, normalizes each, and adds day+1 for every resolved day
// because the following day's opening balance depends on this day's closing.
// Defensive mode also adds day-1.
func ResolveAffectedDays(meta *models.TransactionMetadata, defensive bool) ([]string, error) {
	if meta == nil {
		return nil, nil
	}
	set := make(map[string]struct{})
	addDay := func(raw string) error {
		day, err := utils.ToCanonicalDay(raw)
		if err != nil {
			return err
		}
		set[day] = struct{}{}
		next, err := utils.AddDays(day, 1)
		if err != nil {
			return err
		}
		set[next] = struct{}{}
		if defensive {
			prev, err := utils.AddDays(day, -1)
			if err != nil {
				return err
			}
			set[prev] = struct{}{}
		}
		return nil
	}
	for _, d := range meta.AffectedReportDates {
		if err := addDay(d); err != nil {
			return nil, fmt.Errorf("affected report date: %w", err)
		}
	}
	if meta.TransactionDate != "" {
		if err := addDay(meta.TransactionDate); err != nil {
			return nil, fmt.Errorf("transaction date: %w", err)
		}
	}
	days := make([]string, 0, len(set))
	for day := range set {
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

// DecodeEventPayload turns a bus payload into a validated DomainEvent.
// Payloads published by this service decode directly; legacy producer shapes
// go through the validator, which remaps deprecated types or rejects them.
func DecodeEventPayload(data []byte) (*models.DomainEvent, error) {
	var event models.DomainEvent
	if err := json.Unmarshal(data, &event); err == nil &&
		event.EventType.Valid() && (event.Transaction != nil || event.Broadcast != nil) {
		return &event, nil
	}

	var raw models.RawDomainEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unparseable event payload: %w", err)
	}
	return models.BuildDomainEvent(raw, 0)
}

// ProcessEvent runs the handler state machine for one delivered event.
// messageId is the bus delivery id, used as the idempotency key for the
// non-idempotent recompute step.
func (s *ChangeSubscriber) ProcessEvent(ctx context.Context, event *models.DomainEvent, messageId string) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	log := s.Logger.WithFields(logrus.Fields{
		"module":      changeSubscriberHandler,
		"event_id":    event.EventId,
		"event_type":  event.EventType,
		"org_id":      event.OrgId,
		"property_id": event.PropertyId,
		"message_id":  messageId,
	})

	if !event.EventType.Valid() {
		// Poisoned message: ack it, redelivery cannot fix an unknown type.
		log.Warn("dropping event with unknown type")
		utils.CountEventRejected(ctx)
		return nil
	}

	// Org-wide broadcast: downstream notification only, no cache or ledger work.
	if event.EventType.IsBroadcast() {
		log.Info("org-wide daily approval notice received")
		return nil
	}

	days, err := ResolveAffectedDays(event.Transaction, s.Defensive)
	if err != nil {
		// Dates are malformed beyond repair; redelivery won't change them.
		log.Warn("dropping event with unresolvable dates: " + err.Error())
		utils.CountEventRejected(ctx)
		return nil
	}
	if len(days) == 0 {
		log.Warn("event resolved no affected days")
		return nil
	}

	// Immediate invalidation, with the batcher as backstop. A failure here is
	// recoverable; the batcher retries, and a stale entry self-heals on the
	// next write. Never Nack for the cache.
	if err := s.Invalidator.InvalidateRange(ctx, event.OrgId, event.PropertyId, days); err != nil {
		log.Warn("immediate invalidation failed, batcher will retry: " + err.Error())
	}
	if s.Batcher != nil {
		s.Batcher.Enqueue(event.OrgId, event.PropertyId, days, 0)
	}

	if s.SyncRecompute {
		if err := s.recomputeDays(ctx, event, messageId, days); err != nil {
			// Ledger state is a correctness concern: Nack and let the bus retry.
			return fmt.Errorf("ledger recompute: %w", err)
		}
	}
	return nil
}

// recomputeDays re-derives each affected ledger row, once per delivery, under
// the per-property posting lock.
func (s *ChangeSubscriber) recomputeDays(ctx context.Context, event *models.DomainEvent, messageId string, days []string) error {
	if s.DB == nil {
		return fmt.Errorf("db not ready")
	}
	if messageId == "" {
		messageId = event.EventId
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, event.OrgId, changeSubscriberHandler, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if err := AcquirePropertyPostingLock(tx, event.OrgId, event.PropertyId); err != nil {
			return err
		}
		defer ReleasePropertyPostingLock(tx, event.OrgId, event.PropertyId)

		for _, day := range days {
			if err := models.RecalculateDay(ctx, tx, event.OrgId, event.PropertyId, day); err != nil {
				_ = MarkIdempotencyFailed(tx, event.OrgId, changeSubscriberHandler, messageId, err)
				return err
			}
		}
		return MarkIdempotencySucceeded(tx, event.OrgId, changeSubscriberHandler, messageId)
	})
}
