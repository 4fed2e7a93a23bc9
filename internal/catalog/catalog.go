// Package catalog loads the instrument listing used to seed an empty market.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// Entry is one instrument in the catalog file.
type Entry struct {
	Symbol            string `yaml:"symbol"`
	Name              string `yaml:"name"`
	Issuer            string `yaml:"issuer"`
	Sector            string `yaml:"sector"`
	Price             string `yaml:"price"`
	Volatility        int    `yaml:"volatility"`
	SharesOutstanding int64  `yaml:"shares_outstanding"`
	InitialVolume     int64  `yaml:"initial_volume"`
	Active            *bool  `yaml:"active"`
}

// Catalog is the parsed listing.
type Catalog struct {
	Instruments []Entry `yaml:"instruments"`
}

// Load reads a YAML catalog file and expands environment variables.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cat); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &cat, nil
}

// Validate checks every entry and rejects duplicate symbols.
func (c *Catalog) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("catalog lists no instruments")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i, e := range c.Instruments {
		symbol := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if symbol == "" {
			return fmt.Errorf("instrument %d: symbol is required", i)
		}
		if seen[symbol] {
			return fmt.Errorf("instrument %s: duplicate symbol", symbol)
		}
		seen[symbol] = true
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("instrument %s: name is required", symbol)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(e.Price))
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("instrument %s: price %q is not a positive number", symbol, e.Price)
		}
		if e.Volatility < 1 || e.Volatility > 10 {
			return fmt.Errorf("instrument %s: volatility must be between 1 and 10", symbol)
		}
	}
	return nil
}

// Inputs converts the catalog into registry inputs. Call only on a
// validated catalog.
func (c *Catalog) Inputs() []services.InstrumentInput {
	inputs := make([]services.InstrumentInput, 0, len(c.Instruments))
	for _, e := range c.Instruments {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		inputs = append(inputs, services.InstrumentInput{
			Symbol:            e.Symbol,
			Name:              e.Name,
			Issuer:            e.Issuer,
			Sector:            e.Sector,
			Price:             decimal.RequireFromString(strings.TrimSpace(e.Price)),
			VolatilityClass:   e.Volatility,
			SharesOutstanding: e.SharesOutstanding,
			InitialVolume:     e.InitialVolume,
			Active:            active,
		})
	}
	return inputs
}
