// Package equivalency converts generated kilowatt hours into avoided-CO₂
// comparisons such as gallons of gasoline or tree seedlings.
package equivalency

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ashureev/sunbrief/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed factors.yaml
var defaultFactors []byte

// Factor describes one comparison category.
type Factor struct {
	Key           string  `yaml:"key"`
	TonnesPerUnit float64 `yaml:"tonnes_per_unit"`
	Description   string  `yaml:"description"`
}

// Table is a calculator backed by a factor table.
type Table struct {
	tonnesPerKwh float64
	order        []string
	factors      map[string]Factor
}

type tableFile struct {
	TonnesPerKwh float64  `yaml:"co2_tonnes_per_kwh"`
	Categories   []Factor `yaml:"categories"`
}

// Default returns the table built from the embedded factors.
func Default() *Table {
	t, err := Parse(defaultFactors)
	if err != nil {
		panic(fmt.Sprintf("embedded equivalency factors: %v", err))
	}
	return t
}

// Parse builds a table from YAML.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse factors: %w", err)
	}
	if f.TonnesPerKwh <= 0 {
		return nil, errors.New("co2_tonnes_per_kwh must be > 0")
	}

	t := &Table{tonnesPerKwh: f.TonnesPerKwh, factors: make(map[string]Factor, len(f.Categories))}
	for _, c := range f.Categories {
		if c.Key == "" || c.TonnesPerUnit <= 0 {
			return nil, fmt.Errorf("invalid category %q", c.Key)
		}
		if _, dup := t.factors[c.Key]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Key)
		}
		t.factors[c.Key] = c
		t.order = append(t.order, c.Key)
	}
	return t, nil
}

// Categories lists the known category keys in table order.
func (t *Table) Categories() []string {
	return append([]string(nil), t.order...)
}

// Calculate returns one entry per requested category, in request order.
// Unknown categories are an error.
func (t *Table) Calculate(kwh float64, categories []string) ([]domain.EquivalencyEntry, error) {
	tonnes := kwh * t.tonnesPerKwh
	entries := make([]domain.EquivalencyEntry, 0, len(categories))
	for _, key := range categories {
		f, ok := t.factors[key]
		if !ok {
			return nil, fmt.Errorf("unknown equivalency category %q", key)
		}
		entries = append(entries, domain.EquivalencyEntry{
			Category:    key,
			Value:       tonnes / f.TonnesPerUnit,
			Description: f.Description,
		})
	}
	return entries, nil
}

// Random picks n categories uniformly, with repetition.
func (t *Table) Random(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.order[rand.IntN(len(t.order))])
	}
	return out
}
