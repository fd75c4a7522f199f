// Package seed loads the household catalog: assignees, budgets, the master
// chore taxonomy and the gacha prize list.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"kakeibo/internal/core"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is the seed document.
type Catalog struct {
	Assignees  []core.Assignee `yaml:"assignees"`
	Budgets    []Budget        `yaml:"budgets"`
	Categories []Category      `yaml:"categories"`
	Prizes     []Prize         `yaml:"prizes"`
}

type Budget struct {
	Category string `yaml:"category"`
	Amount   int64  `yaml:"amount"`
}

type Category struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

type Task struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Score      float64 `yaml:"score"`
	Repeatable bool    `yaml:"repeatable"`
	Bubble     bool    `yaml:"bubble"`
}

// Prize ids are stored on inventory items, so an id must keep meaning the
// same prize across catalog edits.
type Prize struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	Rarity      string  `yaml:"rarity"`
	Description string  `yaml:"description"`
	Probability float64 `yaml:"probability"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that keys are present and unique.
func (c *Catalog) Validate() error {
	var errs []error

	seen := map[string]bool{}
	for i, a := range c.Assignees {
		if strings.TrimSpace(a.Key) == "" {
			errs = append(errs, fmt.Errorf("assignee %d: key is required", i))
			continue
		}
		if seen[a.Key] {
			errs = append(errs, fmt.Errorf("assignee %q: duplicate key", a.Key))
		}
		seen[a.Key] = true
	}

	for _, b := range c.Budgets {
		if b.Category == "" || b.Amount < 0 {
			errs = append(errs, fmt.Errorf("budget %q: category and non-negative amount required", b.Category))
		}
	}

	ids := map[string]bool{}
	for _, cat := range c.Categories {
		if cat.ID == "" || cat.Name == "" {
			errs = append(errs, fmt.Errorf("category %q: id and name are required", cat.ID))
		}
		if ids[cat.ID] {
			errs = append(errs, fmt.Errorf("category %q: duplicate id", cat.ID))
		}
		ids[cat.ID] = true
		for _, t := range cat.Tasks {
			if t.ID == "" || t.Name == "" {
				errs = append(errs, fmt.Errorf("task %q in %q: id and name are required", t.ID, cat.ID))
			}
			if ids[t.ID] {
				errs = append(errs, fmt.Errorf("task %q: duplicate id", t.ID))
			}
			ids[t.ID] = true
		}
	}

	prizeIDs := map[int64]bool{}
	for _, p := range c.Prizes {
		if p.Name == "" || p.Rarity == "" {
			errs = append(errs, fmt.Errorf("prize %q: name and rarity are required", p.Name))
		}
		if p.ID <= 0 {
			errs = append(errs, fmt.Errorf("prize %q: positive id is required", p.Name))
			continue
		}
		if prizeIDs[p.ID] {
			errs = append(errs, fmt.Errorf("prize %q: duplicate id %d", p.Name, p.ID))
		}
		prizeIDs[p.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid seed catalog: %w", errors.Join(errs...))
	}
	return nil
}

// MasterCategories converts the taxonomy to domain types. Display order
// follows document order, starting at 1.
func (c *Catalog) MasterCategories() []core.MasterCategory {
	out := make([]core.MasterCategory, 0, len(c.Categories))
	for i, cat := range c.Categories {
		mc := core.MasterCategory{ID: cat.ID, Name: cat.Name, DisplayOrder: i + 1}
		for j, t := range cat.Tasks {
			mc.Tasks = append(mc.Tasks, core.MasterTask{
				ID:           t.ID,
				CategoryID:   cat.ID,
				Name:         t.Name,
				Score:        t.Score,
				Repeatable:   t.Repeatable,
				Bubble:       t.Bubble,
				DisplayOrder: j + 1,
			})
		}
		out = append(out, mc)
	}
	return out
}

func (c *Catalog) DomainBudgets() []core.Budget {
	out := make([]core.Budget, 0, len(c.Budgets))
	for _, b := range c.Budgets {
		out = append(out, core.Budget{Category: b.Category, Amount: b.Amount})
	}
	return out
}

func (c *Catalog) GachaPrizes() []core.GachaPrize {
	out := make([]core.GachaPrize, 0, len(c.Prizes))
	for _, p := range c.Prizes {
		out = append(out, core.GachaPrize{
			ID:          p.ID,
			Name:        p.Name,
			Rarity:      p.Rarity,
			Description: p.Description,
			Probability: p.Probability,
		})
	}
	return out
}
