package models

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEffectColumn(t *testing.T) {
	cases := []struct {
		kind EffectKind
		mode PaymentMode
		want string
	}{
		{EffectKindRevenue, PaymentModeCash, "cash_received_cents"},
		{EffectKindRevenue, PaymentModeBank, "bank_received_cents"},
		{EffectKindExpense, PaymentModeCash, "cash_expenses_cents"},
		{EffectKindExpense, PaymentModeBank, "bank_expenses_cents"},
	}
	for _, c := range cases {
		got, err := EffectColumn(c.kind, c.mode)
		if err != nil {
			t.Fatalf("EffectColumn(%s, %s): %v", c.kind, c.mode, err)
		}
		if got != c.want {
			t.Fatalf("EffectColumn(%s, %s) = %s, want %s", c.kind, c.mode, got, c.want)
		}
	}
	if _, err := EffectColumn("transfer", PaymentModeCash); err == nil {
		t.Fatal("expected error for unknown effect kind")
	}
}

func TestClampCents(t *testing.T) {
	cases := []struct{ in, want int64 }{
		{0, 0},
		{10000, 10000},
		{-1, 0},
		{-10000, 0},
	}
	for _, c := range cases {
		if got := ClampCents(c.in); got != c.want {
			t.Fatalf("ClampCents(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEffectInputValidate(t *testing.T) {
	valid := EffectInput{
		OrgId:       "org-1",
		PropertyId:  3,
		Day:         "2025-01-10",
		Kind:        EffectKindRevenue,
		PaymentMode: PaymentModeCash,
		AmountCents: 10000,
		Sign:        1,
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	broken := []func(in *EffectInput){
		func(in *EffectInput) { in.OrgId = "" },
		func(in *EffectInput) { in.PropertyId = 0 },
		func(in *EffectInput) { in.Day = "10/01/2025" },
		func(in *EffectInput) { in.Kind = "transfer" },
		func(in *EffectInput) { in.PaymentMode = "cheque" },
		func(in *EffectInput) { in.AmountCents = -1 },
		func(in *EffectInput) { in.Sign = 0 },
	}
	for i, mutate := range broken {
		in := valid
		mutate(&in)
		if err := in.validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, in)
		}
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return db, mock
}

func balanceRowColumns() []string {
	return []string{
		"id", "org_id", "property_id", "balance_date",
		"opening_balance_cents", "cash_received_cents", "bank_received_cents",
		"cash_expenses_cents", "bank_expenses_cents",
		"closing_balance_cents", "calculated_closing_balance_cents", "balance_discrepancy_cents",
		"is_opening_balance_auto_calculated", "is_closing_balance_manual",
	}
}

func TestApplyEffect_UpsertIncrementsInSQL(t *testing.T) {
	db, mock := newMockDB(t)

	// No prior day: opening seeds at zero.
	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()))

	// The increment must happen in SQL, clamped at zero, not via read-modify-write.
	mock.ExpectExec("INSERT INTO `daily_balances` .*ON DUPLICATE KEY UPDATE.*GREATEST\\(cash_received_cents \\+ \\?, 0\\)").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("UPDATE daily_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).
			AddRow(1, "org-1", 3, "2025-01-10", 0, 10000, 0, 0, 0, 10000, 10000, 0, true, false))

	got, err := ApplyEffect(context.Background(), db, EffectInput{
		OrgId:       "org-1",
		PropertyId:  3,
		Day:         "2025-01-10",
		Kind:        EffectKindRevenue,
		PaymentMode: PaymentModeCash,
		AmountCents: 10000,
		Sign:        1,
	})
	if err != nil {
		t.Fatalf("ApplyEffect: %v", err)
	}
	if got.CashReceivedCents != 10000 || got.ClosingBalanceCents != 10000 {
		t.Fatalf("balance = %+v, want cash received and closing of 10000", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReverseEffect_FlipsSignInSQLDelta(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).
			AddRow(1, "org-1", 3, "2025-01-09", 0, 5000, 0, 0, 0, 5000, 5000, 0, true, false))

	mock.ExpectExec("INSERT INTO `daily_balances` .*GREATEST\\(cash_received_cents \\+ \\?, 0\\)").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(-10000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("UPDATE daily_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).
			AddRow(2, "org-1", 3, "2025-01-10", 5000, 0, 0, 0, 0, 5000, 5000, 0, true, false))

	got, err := ReverseEffect(context.Background(), db, EffectInput{
		OrgId:       "org-1",
		PropertyId:  3,
		Day:         "2025-01-10",
		Kind:        EffectKindRevenue,
		PaymentMode: PaymentModeCash,
		AmountCents: 10000,
		Sign:        1,
	})
	if err != nil {
		t.Fatalf("ReverseEffect: %v", err)
	}
	// The stored sum is clamped at zero even though the delta was -10000.
	if got.CashReceivedCents != 0 {
		t.Fatalf("cash received = %d, want 0", got.CashReceivedCents)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// expectEffectStatements wires the four statements one ApplyEffect issues:
// prior-closing lookup, the increment upsert (delta asserted), the derived
// recompute, and the reload.
func expectEffectStatements(mock sqlmock.Sqlmock, column string, delta int64, final []driver.Value) {
	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()))
	mock.ExpectExec("INSERT INTO `daily_balances` .*ON DUPLICATE KEY UPDATE.*GREATEST\\(" + column + " \\+ \\?, 0\\)").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			delta, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE daily_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).AddRow(final...))
}

// Each effect's increment statement carries only its own delta, so the SQL a
// pair of effects issues is the same set in either order.
func TestApplyEffect_IncrementsAreOrderIndependent(t *testing.T) {
	revenue := EffectInput{
		OrgId: "org-1", PropertyId: 3, Day: "2025-01-10",
		Kind: EffectKindRevenue, PaymentMode: PaymentModeCash, AmountCents: 10000, Sign: 1,
	}
	expense := EffectInput{
		OrgId: "org-1", PropertyId: 3, Day: "2025-01-10",
		Kind: EffectKindExpense, PaymentMode: PaymentModeCash, AmountCents: 3000, Sign: 1,
	}
	final := []driver.Value{1, "org-1", 3, "2025-01-10", 0, 10000, 0, 3000, 0, 7000, 7000, 0, true, false}

	orders := []struct {
		name          string
		first, second EffectInput
	}{
		{"revenue then expense", revenue, expense},
		{"expense then revenue", expense, revenue},
	}
	for _, order := range orders {
		db, mock := newMockDB(t)
		for _, in := range []EffectInput{order.first, order.second} {
			column, err := EffectColumn(in.Kind, in.PaymentMode)
			if err != nil {
				t.Fatalf("%s: EffectColumn: %v", order.name, err)
			}
			expectEffectStatements(mock, column, in.AmountCents*int64(in.Sign), final)
		}

		var last *DailyBalance
		for _, in := range []EffectInput{order.first, order.second} {
			var err error
			last, err = ApplyEffect(context.Background(), db, in)
			if err != nil {
				t.Fatalf("%s: ApplyEffect: %v", order.name, err)
			}
		}
		if last.ClosingBalanceCents != 7000 {
			t.Fatalf("%s: closing = %d, want 7000", order.name, last.ClosingBalanceCents)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("%s: unmet expectations: %v", order.name, err)
		}
	}
}

func TestRecalculateDay_NoRowIsNoop(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()))

	if err := RecalculateDay(context.Background(), db, "org-1", 3, "2025-01-10"); err != nil {
		t.Fatalf("RecalculateDay on missing row: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecalculateDay_CarriesPriorClosingForward(t *testing.T) {
	db, mock := newMockDB(t)

	// The day's row exists with a stale opening balance.
	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).
			AddRow(2, "org-1", 3, "2025-01-10", 0, 2000, 0, 0, 0, 2000, 2000, 0, true, false))

	// Prior day closed at 5000.
	mock.ExpectQuery("SELECT .* FROM `daily_balances` WHERE org_id").
		WillReturnRows(sqlmock.NewRows(balanceRowColumns()).
			AddRow(1, "org-1", 3, "2025-01-09", 0, 5000, 0, 0, 0, 5000, 5000, 0, true, false))

	mock.ExpectExec("UPDATE `daily_balances` SET").
		WithArgs(int64(5000), sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("UPDATE daily_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := RecalculateDay(context.Background(), db, "org-1", 3, "2025-01-10"); err != nil {
		t.Fatalf("RecalculateDay: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
