package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
)

const plansFile = "plans.json"

// planEntry is the on-disk shape: {"<gb>": {"price": 10, "days": 30}}.
type planEntry struct {
	Price decimal.Decimal `json:"price"`
	Days  int             `json:"days"`
}

// PlanRepository persists the plan catalog in plans.json.
type PlanRepository struct {
	file *jsonFile
}

func NewPlanRepository(dataDir string) *PlanRepository {
	return &PlanRepository{file: newJSONFile(dataPath(dataDir, plansFile))}
}

// FindAll returns every plan ordered by traffic quota.
func (r *PlanRepository) FindAll(ctx context.Context) ([]models.Plan, error) {
	raw := map[string]planEntry{}
	if err := r.file.load(ctx, &raw); err != nil {
		return nil, err
	}
	return decodePlans(raw)
}

// Save upserts a plan.
func (r *PlanRepository) Save(ctx context.Context, plan models.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return r.file.withLock(ctx, func() error {
		raw := map[string]planEntry{}
		if err := r.file.read(&raw); err != nil {
			return err
		}
		raw[strconv.Itoa(plan.ID)] = planEntry{Price: plan.Price, Days: plan.Days}
		return r.file.write(raw)
	})
}

// Delete removes a plan.
func (r *PlanRepository) Delete(ctx context.Context, id int) error {
	return r.file.withLock(ctx, func() error {
		raw := map[string]planEntry{}
		if err := r.file.read(&raw); err != nil {
			return err
		}
		key := strconv.Itoa(id)
		if _, ok := raw[key]; !ok {
			return fmt.Errorf("%w: %d", ErrPlanNotFound, id)
		}
		delete(raw, key)
		return r.file.write(raw)
	})
}

func decodePlans(raw map[string]planEntry) ([]models.Plan, error) {
	plans := make([]models.Plan, 0, len(raw))
	for key, entry := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("plan key %q is not a number", key)
		}
		plans = append(plans, models.Plan{ID: id, Price: entry.Price, Days: entry.Days})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}
