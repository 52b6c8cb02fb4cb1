package escrow

import (
	"fmt"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// PricePolicy decides the lovelace a buyer deposits on Start, given the
// escrow terms and the amount the buyer offers.
type PricePolicy func(terms datum.Terms, offered int64) (int64, error)

// OfferedPrice accepts any non-negative offer.
func OfferedPrice(_ datum.Terms, offered int64) (int64, error) {
	if offered < 0 {
		return 0, fmt.Errorf("offered price %d is negative", offered)
	}
	return offered, nil
}

// NoPrice locks only the proceed amount. Offers other than zero are refused.
func NoPrice(_ datum.Terms, offered int64) (int64, error) {
	if offered != 0 {
		return 0, fmt.Errorf("escrow takes no price, offered %d", offered)
	}
	return 0, nil
}

// FixedPrice requires exactly price. An offer of zero means "the asking
// price".
func FixedPrice(price int64) PricePolicy {
	return func(_ datum.Terms, offered int64) (int64, error) {
		if offered != 0 && offered != price {
			return 0, fmt.Errorf("price is fixed at %d, offered %d", price, offered)
		}
		return price, nil
	}
}

// PolicyByName resolves a configured policy: "offered", "none" or "fixed".
func PolicyByName(name string, fixed int64) (PricePolicy, error) {
	switch name {
	case "", "offered":
		return OfferedPrice, nil
	case "none":
		return NoPrice, nil
	case "fixed":
		if fixed < 0 {
			return nil, fmt.Errorf("fixed price %d is negative", fixed)
		}
		return FixedPrice(fixed), nil
	default:
		return nil, fmt.Errorf("unknown price policy %q", name)
	}
}
