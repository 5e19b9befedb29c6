package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type EventType string

// Closed set of domain event types. Anything else is rejected or remapped
// through the legacy table below before it reaches a consumer.
const (
	EventRevenueAdded    EventType = "revenue_added"
	EventRevenueUpdated  EventType = "revenue_updated"
	EventRevenueApproved EventType = "revenue_approved"
	EventRevenueRejected EventType = "revenue_rejected"
	EventRevenueDeleted  EventType = "revenue_deleted"

	EventExpenseAdded    EventType = "expense_added"
	EventExpenseUpdated  EventType = "expense_updated"
	EventExpenseApproved EventType = "expense_approved"
	EventExpenseRejected EventType = "expense_rejected"
	EventExpenseDeleted  EventType = "expense_deleted"

	EventCashBalanceUpdated EventType = "cash_balance_updated"

	// Org-wide daily approval notice. Broadcast only: exempt from cache
	// invalidation and ledger effects.
	EventOrgDailyApproval EventType = "org_daily_approval"
)

type EntityType string

const (
	EntityTypeRevenue      EntityType = "revenue"
	EntityTypeExpense      EntityType = "expense"
	EntityTypeDailyBalance EntityType = "daily_balance"
	EntityTypeOrg          EntityType = "org"
)

var knownEventTypes = map[EventType]EntityType{
	EventRevenueAdded:       EntityTypeRevenue,
	EventRevenueUpdated:     EntityTypeRevenue,
	EventRevenueApproved:    EntityTypeRevenue,
	EventRevenueRejected:    EntityTypeRevenue,
	EventRevenueDeleted:     EntityTypeRevenue,
	EventExpenseAdded:       EntityTypeExpense,
	EventExpenseUpdated:     EntityTypeExpense,
	EventExpenseApproved:    EntityTypeExpense,
	EventExpenseRejected:    EntityTypeExpense,
	EventExpenseDeleted:     EntityTypeExpense,
	EventCashBalanceUpdated: EntityTypeDailyBalance,
	EventOrgDailyApproval:   EntityTypeOrg,
}

// Deprecated producer type strings still seen on the wire. Ambiguous entries
// need the caller-supplied entity type to disambiguate.
var legacyEventTypes = map[string]map[EntityType]EventType{
	"transaction_added": {
		EntityTypeRevenue: EventRevenueAdded,
		EntityTypeExpense: EventExpenseAdded,
	},
	"transaction_updated": {
		EntityTypeRevenue: EventRevenueUpdated,
		EntityTypeExpense: EventExpenseUpdated,
	},
	"transaction_approved": {
		EntityTypeRevenue: EventRevenueApproved,
		EntityTypeExpense: EventExpenseApproved,
	},
	"transaction_rejected": {
		EntityTypeRevenue: EventRevenueRejected,
		EntityTypeExpense: EventExpenseRejected,
	},
	"transaction_deleted": {
		EntityTypeRevenue: EventRevenueDeleted,
		EntityTypeExpense: EventExpenseDeleted,
	},
	"balance_updated": {
		EntityTypeDailyBalance: EventCashBalanceUpdated,
	},
}

func (t EventType) IsBroadcast() bool {
	return t == EventOrgDailyApproval
}

func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// TransactionMetadata carries the day/amount facts of a revenue or expense
// change.
type TransactionMetadata struct {
	TransactionDate     string      `json:"transaction_date,omitempty"`
	AffectedReportDates []string    `json:"affected_report_dates,omitempty"`
	AmountCents         int64       `json:"amount_cents"`
	PaymentMode         PaymentMode `json:"payment_mode,omitempty"`
	PreviousStatus      string      `json:"previous_status,omitempty"`
	NewStatus           string      `json:"new_status,omitempty"`
}

// BroadcastMetadata carries the payload of an org-wide notice.
type BroadcastMetadata struct {
	ApprovalDate string `json:"approval_date,omitempty"`
	Note         string `json:"note,omitempty"`
}

// DomainEvent is the immutable fact published on the ledger topic. Exactly one
// of Transaction/Broadcast is set, matching the event category.
type DomainEvent struct {
	EventId      string     `json:"event_id"`
	EventType    EventType  `json:"event_type"`
	EventVersion int        `json:"event_version"`
	OrgId        string     `json:"org_id"`
	PropertyId   int        `json:"property_id,omitempty"`
	ActorUserId  int        `json:"actor_user_id"`
	EntityId     int        `json:"entity_id,omitempty"`
	EntityType   EntityType `json:"entity_type"`
	Timestamp    time.Time  `json:"timestamp"`

	Transaction *TransactionMetadata `json:"transaction_metadata,omitempty"`
	Broadcast   *BroadcastMetadata   `json:"broadcast_metadata,omitempty"`
}

// RawDomainEvent is the loose producer-facing input shape, normalized by
// BuildDomainEvent before anything downstream sees it.
type RawDomainEvent struct {
	EventId      string     `json:"event_id"`
	EventType    string     `json:"event_type" validate:"required"`
	EventVersion int        `json:"event_version"`
	OrgId        string     `json:"org_id" validate:"required"`
	PropertyId   int        `json:"property_id"`
	EntityId     int        `json:"entity_id"`
	EntityType   string     `json:"entity_type"`
	Timestamp    *time.Time `json:"timestamp"`

	TransactionDate     string   `json:"transaction_date"`
	AffectedReportDates []string `json:"affected_report_dates"`
	Amount              any      `json:"amount_cents"`
	PaymentMode         string   `json:"payment_mode" validate:"omitempty,oneof=cash bank"`
	PreviousStatus      string   `json:"previous_status"`
	NewStatus           string   `json:"new_status"`
	Note                string   `json:"note"`
}

// ValidationError names the offending field instead of silently dropping it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

func validationErr(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

var eventValidate = validator.New()

// BuildDomainEvent validates and normalizes a raw event into a DomainEvent.
// Legacy type strings are remapped (logged and counted); eventId, version and
// timestamp are generated when absent; entityType is inferred from eventType
// when omitted.
func BuildDomainEvent(raw RawDomainEvent, actorUserId int) (*DomainEvent, error) {
	logger := config.GetLogger()

	if err := eventValidate.Struct(raw); err != nil {
		utils.CountEventRejected(nil)
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			return nil, validationErr(strings.ToLower(invalid[0].Field()), "failed "+invalid[0].Tag())
		}
		return nil, validationErr("input", err.Error())
	}

	eventType := EventType(strings.ToLower(strings.TrimSpace(raw.EventType)))
	entityType := EntityType(strings.ToLower(strings.TrimSpace(raw.EntityType)))

	if !eventType.Valid() {
		mapped, ok := remapLegacyType(string(eventType), entityType)
		if !ok {
			utils.CountEventRejected(nil)
			return nil, validationErr("event_type", fmt.Sprintf("unknown type %q", raw.EventType))
		}
		logger.WithFields(logrus.Fields{
			"module":      "DomainEvent",
			"legacy_type": raw.EventType,
			"entity_type": entityType,
			"mapped_type": mapped,
			"org_id":      raw.OrgId,
		}).Warn("legacy event type remapped")
		utils.CountEventLegacyMapped(nil)
		eventType = mapped
	}

	if entityType == "" {
		entityType = knownEventTypes[eventType]
	}

	if !eventType.IsBroadcast() && raw.PropertyId <= 0 {
		utils.CountEventRejected(nil)
		return nil, validationErr("property_id", "required for property-scoped events")
	}

	event := &DomainEvent{
		EventId:      strings.TrimSpace(raw.EventId),
		EventType:    eventType,
		EventVersion: raw.EventVersion,
		OrgId:        raw.OrgId,
		PropertyId:   raw.PropertyId,
		ActorUserId:  actorUserId,
		EntityId:     raw.EntityId,
		EntityType:   entityType,
	}
	if event.EventId == "" {
		event.EventId = uuid.NewString()
	}
	if event.EventVersion <= 0 {
		event.EventVersion = 1
	}
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		event.Timestamp = raw.Timestamp.UTC()
	} else {
		event.Timestamp = time.Now().UTC()
	}

	if eventType.IsBroadcast() {
		meta, err := buildBroadcastMetadata(raw)
		if err != nil {
			utils.CountEventRejected(nil)
			return nil, err
		}
		event.Broadcast = meta
	} else {
		meta, err := buildTransactionMetadata(raw)
		if err != nil {
			utils.CountEventRejected(nil)
			return nil, err
		}
		event.Transaction = meta
	}

	utils.CountEventValidated(nil)
	return event, nil
}

func remapLegacyType(legacy string, entityType EntityType) (EventType, bool) {
	candidates, ok := legacyEventTypes[legacy]
	if !ok {
		return "", false
	}
	if len(candidates) == 1 {
		for _, mapped := range candidates {
			return mapped, true
		}
	}
	mapped, ok := candidates[entityType]
	return mapped, ok
}

func buildTransactionMetadata(raw RawDomainEvent) (*TransactionMetadata, error) {
	meta := &TransactionMetadata{
		PreviousStatus: raw.PreviousStatus,
		NewStatus:      raw.NewStatus,
	}

	if raw.TransactionDate != "" {
		day, err := utils.ToCanonicalDay(raw.TransactionDate)
		if err != nil {
			return nil, validationErr("transaction_date", err.Error())
		}
		meta.TransactionDate = day
	}
	for _, d := range raw.AffectedReportDates {
		day, err := utils.ToCanonicalDay(d)
		if err != nil {
			return nil, validationErr("affected_report_dates", err.Error())
		}
		meta.AffectedReportDates = append(meta.AffectedReportDates, day)
	}
	if meta.TransactionDate == "" && len(meta.AffectedReportDates) == 0 {
		return nil, validationErr("transaction_date", "at least one affected date is required")
	}

	if raw.Amount != nil {
		cents, err := utils.ParseAmountCents(raw.Amount)
		if err != nil {
			return nil, validationErr("amount_cents", err.Error())
		}
		if cents < 0 {
			return nil, validationErr("amount_cents", "must be non-negative")
		}
		meta.AmountCents = cents
	}
	if raw.PaymentMode != "" {
		meta.PaymentMode = PaymentMode(raw.PaymentMode)
	}
	return meta, nil
}

func buildBroadcastMetadata(raw RawDomainEvent) (*BroadcastMetadata, error) {
	meta := &BroadcastMetadata{Note: raw.Note}
	date := raw.TransactionDate
	if date == "" && len(raw.AffectedReportDates) > 0 {
		date = raw.AffectedReportDates[0]
	}
	if date != "" {
		day, err := utils.ToCanonicalDay(date)
		if err != nil {
			return nil, validationErr("approval_date", err.Error())
		}
		meta.ApprovalDate = day
	}
	return meta, nil
}
