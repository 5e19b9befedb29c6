package models

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Real-MySQL tier. Gated so the unit suite stays DB-free:
//
//	INTEGRATION_TESTS=1 DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go test ./models/
func openIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 with DB_* env to run against MySQL")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"))
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	if err := db.AutoMigrate(&DailyBalance{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func comparableBalance(t *testing.T, db *gorm.DB, orgId string, propertyId int, day string) DailyBalance {
	t.Helper()
	row, err := GetDailyBalance(context.Background(), db, orgId, propertyId, day)
	if err != nil {
		t.Fatalf("GetDailyBalance: %v", err)
	}
	got := *row
	got.ID = 0
	got.PropertyId = 0
	got.CreatedAt = DailyBalance{}.CreatedAt
	got.UpdatedAt = DailyBalance{}.UpdatedAt
	return got
}

func TestApplyEffect_CommutesOnMySQL(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	orgId := "it-" + uuid.NewString()[:18]
	day := "2025-01-10"

	effects := func(propertyId int) (EffectInput, EffectInput) {
		revenue := EffectInput{
			OrgId: orgId, PropertyId: propertyId, Day: day,
			Kind: EffectKindRevenue, PaymentMode: PaymentModeCash, AmountCents: 10000, Sign: 1,
		}
		expense := EffectInput{
			OrgId: orgId, PropertyId: propertyId, Day: day,
			Kind: EffectKindExpense, PaymentMode: PaymentModeCash, AmountCents: 3000, Sign: 1,
		}
		return revenue, expense
	}

	// Property 1: revenue then expense. Property 2: expense then revenue.
	r1, e1 := effects(1)
	for _, in := range []EffectInput{r1, e1} {
		if _, err := ApplyEffect(ctx, db, in); err != nil {
			t.Fatalf("ApplyEffect: %v", err)
		}
	}
	r2, e2 := effects(2)
	for _, in := range []EffectInput{e2, r2} {
		if _, err := ApplyEffect(ctx, db, in); err != nil {
			t.Fatalf("ApplyEffect: %v", err)
		}
	}

	first := comparableBalance(t, db, orgId, 1, day)
	second := comparableBalance(t, db, orgId, 2, day)
	if first != second {
		t.Fatalf("effect order changed the balance:\n%+v\n%+v", first, second)
	}
	if first.ClosingBalanceCents != 7000 {
		t.Fatalf("closing = %d, want 7000", first.ClosingBalanceCents)
	}
}

func TestApplyEffect_ApproveThenRejectOnMySQL(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	orgId := "it-" + uuid.NewString()[:18]
	day := "2025-01-10"
	in := EffectInput{
		OrgId: orgId, PropertyId: 1, Day: day,
		Kind: EffectKindRevenue, PaymentMode: PaymentModeCash, AmountCents: 10000, Sign: 1,
	}

	approved, err := ApplyEffect(ctx, db, in)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.CashReceivedCents != 10000 || approved.ClosingBalanceCents != 10000 {
		t.Fatalf("after approval: %+v", approved)
	}

	rejected, err := ReverseEffect(ctx, db, in)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.CashReceivedCents != 0 {
		t.Fatalf("cash received after rejection = %d, want 0", rejected.CashReceivedCents)
	}
	if rejected.ClosingBalanceCents != rejected.OpeningBalanceCents {
		t.Fatalf("closing %d != opening %d after full reversal",
			rejected.ClosingBalanceCents, rejected.OpeningBalanceCents)
	}
	if rejected.BalanceDiscrepancyCents != 0 {
		t.Fatalf("discrepancy = %d, want 0", rejected.BalanceDiscrepancyCents)
	}
}
