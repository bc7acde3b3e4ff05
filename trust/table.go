// Package trust maps validator identities to reputation bonuses.
package trust

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

// ErrNegativeBonus is returned when a table entry has a negative multiplier
var ErrNegativeBonus = errors.New("trust bonus must be non-negative")

// Table is an immutable validator -> bonus multiplier mapping.
// It is safe for concurrent use because nothing mutates it after construction.
type Table struct {
	bonuses map[string]float64
}

// NewTable builds a table from a copy of bonuses
func NewTable(bonuses map[string]float64) (*Table, error) {
	t := &Table{bonuses: make(map[string]float64, len(bonuses))}
	for id, bonus := range bonuses {
		if bonus < 0 {
			return nil, fmt.Errorf("%w: %s=%.4f", ErrNegativeBonus, id, bonus)
		}
		t.bonuses[id] = bonus
	}
	return t, nil
}

// DefaultTable returns the built-in trusted validator set
func DefaultTable() *Table {
	return &Table{bonuses: map[string]float64{
		"validator_001": 1.2,
		"validator_002": 1.1,
	}}
}

// Bonus returns the multiplier for a validator. Lookups are exact and
// case-sensitive; unknown or empty identities get NeutralBonus.
func (t *Table) Bonus(validatorID string) float64 {
	if t == nil || validatorID == "" {
		return types.NeutralBonus
	}
	if bonus, ok := t.bonuses[validatorID]; ok {
		return bonus
	}
	return types.NeutralBonus
}

// Len returns the number of trusted validators
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.bonuses)
}

// IDs returns the trusted validator identities in sorted order
func (t *Table) IDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.bonuses))
	for id := range t.bonuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// tableFile is the on-disk YAML layout:
//
//	validators:
//	  validator_001: 1.2
type tableFile struct {
	Validators map[string]float64 `yaml:"validators"`
}

// LoadTable reads a trust table from a YAML file
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust table: %w", err)
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse trust table: %w", err)
	}
	return NewTable(f.Validators)
}
