// internal/service/pricing/tiers.go
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier maps an inclusive property-count range to a per-property monthly price.
type Tier struct {
	Min         int             `json:"min"`
	Max         int             `json:"max"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Description string          `json:"description"`
}

func (t Tier) Contains(propertyCount int) bool {
	return propertyCount >= t.Min && propertyCount <= t.Max
}

type Quote struct {
	PropertyCount int             `json:"property_count"`
	Tier          Tier            `json:"tier"`
	MonthlyTotal  decimal.Decimal `json:"monthly_total"`
}

var defaultTiers = []Tier{
	newTier(1, 1, 50),
	newTier(2, 5, 45),
	newTier(6, 10, 40),
	newTier(11, 20, 35),
	newTier(21, 50, 30),
	newTier(51, 100, 25),
	newTier(101, 150, 20),
}

func newTier(lo, hi int, price int64) Tier {
	desc := fmt.Sprintf("%d-%d properties", lo, hi)
	if lo == hi {
		desc = fmt.Sprintf("%d property", lo)
	}
	return Tier{Min: lo, Max: hi, BasePrice: decimal.NewFromInt(price), Description: desc}
}

// Resolver is stateless and safe for concurrent use.
type Resolver struct {
	tiers []Tier
}

func NewResolver() *Resolver {
	return &Resolver{tiers: defaultTiers}
}

// ResolveTier returns the first tier containing propertyCount, or the first tier when
// none does (zero, negative, or above the table).
func (r *Resolver) ResolveTier(propertyCount int) Tier {
	for _, t := range r.tiers {
		if t.Contains(propertyCount) {
			return t
		}
	}
	return r.tiers[0]
}

// Tiers returns a copy of the table in order.
func (r *Resolver) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

func (r *Resolver) Quote(propertyCount int) Quote {
	tier := r.ResolveTier(propertyCount)
	count := propertyCount
	if count < 0 {
		count = 0
	}
	return Quote{
		PropertyCount: count,
		Tier:          tier,
		MonthlyTotal:  tier.BasePrice.Mul(decimal.NewFromInt(int64(count))),
	}
}
