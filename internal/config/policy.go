package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the marketplace rules that deployments may relax.
type Policy struct {
	Bids   BidPolicy   `yaml:"bids"`
	Orders OrderPolicy `yaml:"orders"`
}

type BidPolicy struct {
	// AllowRebid lets a worker hold several non-rejected bids on one project.
	AllowRebid bool `yaml:"allow_rebid"`
}

type OrderPolicy struct {
	// EnforceStock refuses orders larger than the current stock.
	EnforceStock bool `yaml:"enforce_stock"`
	// ReserveStockOnConfirm takes stock out of the listing when an order is
	// confirmed and puts it back if the order is cancelled.
	ReserveStockOnConfirm bool `yaml:"reserve_stock_on_confirm"`
}

func DefaultPolicy() Policy {
	return Policy{
		Bids: BidPolicy{AllowRebid: false},
		Orders: OrderPolicy{
			EnforceStock:          true,
			ReserveStockOnConfirm: true,
		},
	}
}

// ParsePolicy overlays the YAML document on DefaultPolicy. Unknown keys are
// rejected so a typo cannot silently keep the default.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}

func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}
