package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vpnshop/internal/models"
	"vpnshop/internal/repository"
)

// Catalog serves plans from memory and writes edits through to the store.
type Catalog struct {
	store  PlanStore
	ledger Ledger

	mu    sync.RWMutex
	plans map[int]models.Plan
}

// NewCatalog loads and validates every plan. A single invalid plan fails
// the load.
func NewCatalog(ctx context.Context, store PlanStore, ledger Ledger) (*Catalog, error) {
	c := &Catalog{store: store, ledger: ledger}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the cache with the store's contents.
func (c *Catalog) Reload(ctx context.Context) error {
	plans, err := c.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	byID := make(map[int]models.Plan, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.plans = byID
	c.mu.Unlock()
	return nil
}

// Plans returns all plans ordered by traffic quota.
func (c *Catalog) Plans() []models.Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plan looks up a plan by id.
func (c *Catalog) Plan(id int) (models.Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %d", ErrPlanNotFound, id)
	}
	return p, nil
}

// Upsert adds or replaces a plan.
func (c *Catalog) Upsert(ctx context.Context, plan models.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := c.store.Save(ctx, plan); err != nil {
		return fmt.Errorf("save plan %d: %w", plan.ID, err)
	}
	return c.Reload(ctx)
}

// Remove deletes a plan unless a pending payment still references it.
func (c *Catalog) Remove(ctx context.Context, id int) error {
	if _, err := c.Plan(id); err != nil {
		return err
	}
	pending, err := c.ledger.FindByStatus(ctx, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("check pending payments: %w", err)
	}
	for _, rec := range pending {
		if rec.PlanID == id {
			return fmt.Errorf("%w: plan %d, payment %s", ErrPlanInUse, id, rec.PaymentID)
		}
	}
	if err := c.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return fmt.Errorf("%w: %d", ErrPlanNotFound, id)
		}
		return fmt.Errorf("delete plan %d: %w", id, err)
	}
	return c.Reload(ctx)
}
