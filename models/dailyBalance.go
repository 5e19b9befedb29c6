package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cash"
	PaymentModeBank PaymentMode = "bank"
)

type EffectKind string

const (
	EffectKindRevenue EffectKind = "revenue"
	EffectKindExpense EffectKind = "expense"
)

// DailyBalance is the materialized per-(org, property, day) ledger row.
// Running sums are effect-derived and floored at zero; the closing balance
// follows the calculated value unless a manual override is recorded.
type DailyBalance struct {
	ID          int    `gorm:"primary_key" json:"id"`
	OrgId       string `gorm:"size:64;uniqueIndex:idx_daily_balance_key,priority:1;not null" json:"org_id"`
	PropertyId  int    `gorm:"uniqueIndex:idx_daily_balance_key,priority:2;not null" json:"property_id"`
	BalanceDate string `gorm:"size:10;uniqueIndex:idx_daily_balance_key,priority:3;not null" json:"balance_date"`

	OpeningBalanceCents int64 `gorm:"not null;default:0" json:"opening_balance_cents"`
	CashReceivedCents   int64 `gorm:"not null;default:0" json:"cash_received_cents"`
	BankReceivedCents   int64 `gorm:"not null;default:0" json:"bank_received_cents"`
	CashExpensesCents   int64 `gorm:"not null;default:0" json:"cash_expenses_cents"`
	BankExpensesCents   int64 `gorm:"not null;default:0" json:"bank_expenses_cents"`

	ClosingBalanceCents           int64 `gorm:"not null;default:0" json:"closing_balance_cents"`
	CalculatedClosingBalanceCents int64 `gorm:"not null;default:0" json:"calculated_closing_balance_cents"`
	BalanceDiscrepancyCents       int64 `gorm:"not null;default:0" json:"balance_discrepancy_cents"`

	IsOpeningBalanceAutoCalculated bool `gorm:"not null;default:true" json:"is_opening_balance_auto_calculated"`
	IsClosingBalanceManual         bool `gorm:"not null;default:false" json:"is_closing_balance_manual"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectInput is one signed balance delta from an approved/rejected transaction.
type EffectInput struct {
	OrgId       string
	PropertyId  int
	Day         string
	Kind        EffectKind
	PaymentMode PaymentMode
	AmountCents int64
	Sign        int
}

func (in EffectInput) validate() error {
	if in.OrgId == "" {
		return errors.New("org id is required")
	}
	if in.PropertyId <= 0 {
		return errors.New("property id is required")
	}
	if !utils.IsDayKey(in.Day) {
		return fmt.Errorf("invalid balance day %q", in.Day)
	}
	if in.Kind != EffectKindRevenue && in.Kind != EffectKindExpense {
		return fmt.Errorf("invalid effect kind %q", in.Kind)
	}
	if in.PaymentMode != PaymentModeCash && in.PaymentMode != PaymentModeBank {
		return fmt.Errorf("invalid payment mode %q", in.PaymentMode)
	}
	if in.AmountCents < 0 {
		return fmt.Errorf("amount must be non-negative, got %d", in.AmountCents)
	}
	if in.Sign != 1 && in.Sign != -1 {
		return fmt.Errorf("sign must be +1 or -1, got %d", in.Sign)
	}
	return nil
}

// EffectColumn maps (kind, paymentMode) onto the single running-sum column an
// effect touches.
func EffectColumn(kind EffectKind, mode PaymentMode) (string, error) {
	switch {
	case kind == EffectKindRevenue && mode == PaymentModeCash:
		return "cash_received_cents", nil
	case kind == EffectKindRevenue && mode == PaymentModeBank:
		return "bank_received_cents", nil
	case kind == EffectKindExpense && mode == PaymentModeCash:
		return "cash_expenses_cents", nil
	case kind == EffectKindExpense && mode == PaymentModeBank:
		return "bank_expenses_cents", nil
	}
	return "", fmt.Errorf("no ledger column for kind=%q mode=%q", kind, mode)
}

// ClampCents floors a running sum at zero; reversals cannot underflow even
// when delivery order is imperfect.
func ClampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// PriorClosingBalance returns the closing balance of the most recent ledger
// row before day, or 0 when the property has no earlier row.
func PriorClosingBalance(tx *gorm.DB, orgId string, propertyId int, day string) (int64, error) {
	var prior DailyBalance
	err := tx.
		Where("org_id = ? AND property_id = ? AND balance_date < ?", orgId, propertyId, day).
		Order("balance_date DESC").
		Take(&prior).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return prior.ClosingBalanceCents, nil
}

// ApplyEffect applies one signed effect atomically.
//
// The write is a single insert-or-increment upsert keyed on
// (org_id, property_id, balance_date): the stored column is incremented by the
// delta in SQL, never overwritten with a value computed from a stale read, so
// concurrent effects for the same key commute. Derived columns are then
// re-expressed from the stored sums in one UPDATE.
func ApplyEffect(ctx context.Context, tx *gorm.DB, in EffectInput) (*DailyBalance, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	column, err := EffectColumn(in.Kind, in.PaymentMode)
	if err != nil {
		return nil, err
	}
	delta := in.AmountCents * int64(in.Sign)

	opening, err := PriorClosingBalance(tx.WithContext(ctx), in.OrgId, in.PropertyId, in.Day)
	if err != nil {
		return nil, fmt.Errorf("prior closing balance: %w", err)
	}

	row := DailyBalance{
		OrgId:                          in.OrgId,
		PropertyId:                     in.PropertyId,
		BalanceDate:                    in.Day,
		OpeningBalanceCents:            opening,
		IsOpeningBalanceAutoCalculated: true,
	}
	switch column {
	case "cash_received_cents":
		row.CashReceivedCents = ClampCents(delta)
	case "bank_received_cents":
		row.BankReceivedCents = ClampCents(delta)
	case "cash_expenses_cents":
		row.CashExpensesCents = ClampCents(delta)
	case "bank_expenses_cents":
		row.BankExpensesCents = ClampCents(delta)
	}
	row.CalculatedClosingBalanceCents = row.OpeningBalanceCents + row.CashReceivedCents - row.CashExpensesCents
	row.ClosingBalanceCents = row.CalculatedClosingBalanceCents

	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "property_id"}, {Name: "balance_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column:       gorm.Expr(fmt.Sprintf("GREATEST(%s + ?, 0)", column), delta),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert daily balance: %w", err)
	}

	if err := RecomputeDerivedBalances(ctx, tx, in.OrgId, in.PropertyId, in.Day); err != nil {
		return nil, err
	}

	updated, err := GetDailyBalance(ctx, tx, in.OrgId, in.PropertyId, in.Day)
	if err != nil {
		return nil, err
	}
	utils.CountLedgerEffect(ctx)
	if updated.BalanceDiscrepancyCents != 0 {
		utils.CountLedgerDiscrepancy(ctx)
	}
	return updated, nil
}

// ReverseEffect undoes a previously-applied effect (rejection or deletion
// after approval).
func ReverseEffect(ctx context.Context, tx *gorm.DB, in EffectInput) (*DailyBalance, error) {
	in.Sign = -in.Sign
	return ApplyEffect(ctx, tx, in)
}

// RecomputeDerivedBalances re-expresses the calculated closing balance and the
// discrepancy from the stored running sums in a single statement. A manual
// closing override is preserved; everything else tracks the calculation.
func RecomputeDerivedBalances(ctx context.Context, tx *gorm.DB, orgId string, propertyId int, day string) error {
	err := tx.WithContext(ctx).Exec(`
		UPDATE daily_balances
		SET calculated_closing_balance_cents = opening_balance_cents + cash_received_cents - cash_expenses_cents,
		    closing_balance_cents = IF(is_closing_balance_manual, closing_balance_cents,
		        opening_balance_cents + cash_received_cents - cash_expenses_cents),
		    balance_discrepancy_cents = IF(is_closing_balance_manual,
		        closing_balance_cents - (opening_balance_cents + cash_received_cents - cash_expenses_cents), 0)
		WHERE org_id = ? AND property_id = ? AND balance_date = ?`,
		orgId, propertyId, day).Error
	if err != nil {
		return fmt.Errorf("recompute derived balances: %w", err)
	}
	return nil
}

// SetManualClosingBalance records an operator-entered closing balance. The
// running sums stay effect-derived; only the closing value and the resulting
// discrepancy change.
func SetManualClosingBalance(ctx context.Context, tx *gorm.DB, orgId string, propertyId int, day string, closingCents int64) (*DailyBalance, error) {
	if !utils.IsDayKey(day) {
		return nil, fmt.Errorf("invalid balance day %q", day)
	}
	opening, err := PriorClosingBalance(tx.WithContext(ctx), orgId, propertyId, day)
	if err != nil {
		return nil, fmt.Errorf("prior closing balance: %w", err)
	}
	row := DailyBalance{
		OrgId:                          orgId,
		PropertyId:                     propertyId,
		BalanceDate:                    day,
		OpeningBalanceCents:            opening,
		IsOpeningBalanceAutoCalculated: true,
		ClosingBalanceCents:            closingCents,
		IsClosingBalanceManual:         true,
	}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "property_id"}, {Name: "balance_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"closing_balance_cents":     closingCents,
				"is_closing_balance_manual": true,
				"updated_at":                time.Now().UTC(),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("set manual closing balance: %w", err)
	}
	if err := RecomputeDerivedBalances(ctx, tx, orgId, propertyId, day); err != nil {
		return nil, err
	}
	updated, err := GetDailyBalance(ctx, tx, orgId, propertyId, day)
	if err != nil {
		return nil, err
	}
	if updated.BalanceDiscrepancyCents != 0 {
		utils.CountLedgerDiscrepancy(ctx)
	}
	return updated, nil
}

// RecalculateDay refreshes a day's opening balance from the prior day's
// closing and re-derives the rest. Cross-day ordering is handled here on
// demand instead of by enforcing event delivery order.
func RecalculateDay(ctx context.Context, tx *gorm.DB, orgId string, propertyId int, day string) error {
	var row DailyBalance
	err := tx.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND balance_date = ?", orgId, propertyId, day).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No row yet: nothing to carry forward, the next effect will seed it.
			return nil
		}
		return err
	}
	if row.IsOpeningBalanceAutoCalculated {
		opening, err := PriorClosingBalance(tx.WithContext(ctx), orgId, propertyId, day)
		if err != nil {
			return fmt.Errorf("prior closing balance: %w", err)
		}
		if opening != row.OpeningBalanceCents {
			if err := tx.WithContext(ctx).Model(&DailyBalance{}).
				Where("id = ?", row.ID).
				Update("opening_balance_cents", opening).Error; err != nil {
				return err
			}
		}
	}
	return RecomputeDerivedBalances(ctx, tx, orgId, propertyId, day)
}

func GetDailyBalance(ctx context.Context, tx *gorm.DB, orgId string, propertyId int, day string) (*DailyBalance, error) {
	var row DailyBalance
	err := tx.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND balance_date = ?", orgId, propertyId, day).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &row, nil
}

// ListDailyBalances returns the ledger rows of one property over an inclusive
// day range, oldest first.
func ListDailyBalances(ctx context.Context, tx *gorm.DB, orgId string, propertyId int, fromDay, toDay string) ([]DailyBalance, error) {
	var rows []DailyBalance
	err := tx.WithContext(ctx).
		Where("org_id = ? AND property_id = ? AND balance_date >= ? AND balance_date <= ?",
			orgId, propertyId, fromDay, toDay).
		Order("balance_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
