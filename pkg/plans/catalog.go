// Package plans holds the static subscription plan catalog.
package plans

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cutroom-studio/cutroom-engine/pkg/apperrors"
	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

//go:embed plans.yaml
var defaultCatalogYAML []byte

// Catalog maps plan ids to entitlements. It is read-only after Load.
type Catalog struct {
	byID  map[string]models.PlanEntitlement
	order []string
}

type catalogFile struct {
	Plans []models.PlanEntitlement `yaml:"plans"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded plan catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	c := &Catalog{byID: make(map[string]models.PlanEntitlement, len(f.Plans))}
	for _, p := range f.Plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("plan with name %q has no id", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if !models.IsValidBillingCadence(p.Cadence) {
			return nil, fmt.Errorf("plan %q: invalid billing cadence %q", p.ID, p.Cadence)
		}
		if p.PriceCents < 0 {
			return nil, fmt.Errorf("plan %q: negative price", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Lookup returns the entitlement for planID.
func (c *Catalog) Lookup(planID string) (models.PlanEntitlement, error) {
	p, ok := c.byID[planID]
	if !ok {
		return models.PlanEntitlement{}, apperrors.NewNotFound("plan", planID)
	}
	return clonePlan(p), nil
}

// Exists reports whether planID is in the catalog.
func (c *Catalog) Exists(planID string) bool {
	_, ok := c.byID[planID]
	return ok
}

// All returns every plan in display order.
func (c *Catalog) All() []models.PlanEntitlement {
	out := make([]models.PlanEntitlement, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, clonePlan(c.byID[id]))
	}
	return out
}

func clonePlan(p models.PlanEntitlement) models.PlanEntitlement {
	p.Features = append([]string(nil), p.Features...)
	return p
}
