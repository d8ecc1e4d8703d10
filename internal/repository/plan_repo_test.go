package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
)

func TestPlanRepositoryReadsLegacyFile(t *testing.T) {
	dir := t.TempDir()
	raw := `{"50": {"price": 10, "days": 30}, "10": {"price": "2.50", "days": 7}}`
	if err := os.WriteFile(filepath.Join(dir, plansFile), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	plans, err := NewPlanRepository(dir).FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(plans))
	}
	if plans[0].ID != 10 || !plans[0].Price.Equal(decimal.RequireFromString("2.5")) || plans[0].Days != 7 {
		t.Fatalf("plans[0] = %+v", plans[0])
	}
	if plans[1].ID != 50 || !plans[1].Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("plans[1] = %+v", plans[1])
	}
}

func TestPlanRepositorySaveDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository(t.TempDir())

	p := models.Plan{ID: 100, Price: decimal.RequireFromString("15.99"), Days: 30}
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p.Days = 60
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	plans, _ := repo.FindAll(ctx)
	if len(plans) != 1 || plans[0].Days != 60 {
		t.Fatalf("plans = %+v", plans)
	}

	if err := repo.Save(ctx, models.Plan{ID: 1, Price: decimal.Zero, Days: 1}); err == nil {
		t.Fatal("zero price accepted")
	}

	if err := repo.Delete(ctx, 100); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, 100); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestPlanRepositoryBadKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, plansFile), []byte(`{"big": {"price": 1, "days": 1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPlanRepository(dir).FindAll(context.Background()); err == nil {
		t.Fatal("expected error for non-numeric key")
	}
}

func TestPlanRepositoryNullFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, plansFile), []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := NewPlanRepository(dir)
	if err := repo.Save(ctx, models.Plan{ID: 5, Price: decimal.NewFromInt(3), Days: 7}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	plans, err := NewPlanRepository(dir).FindAll(ctx)
	if err != nil || len(plans) != 1 || plans[0].ID != 5 {
		t.Fatalf("FindAll = %+v, %v", plans, err)
	}
}
