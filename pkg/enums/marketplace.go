package enums

import "fmt"

// Marketplace identifies an external listing channel.
type Marketplace string

const (
	MarketplaceSquare Marketplace = "square"
	MarketplaceEbay   Marketplace = "ebay"
)

var validMarketplaces = []Marketplace{
	MarketplaceSquare,
	MarketplaceEbay,
}

// String implements fmt.Stringer.
func (m Marketplace) String() string {
	return string(m)
}

// IsValid reports whether the value is a known Marketplace.
func (m Marketplace) IsValid() bool {
	for _, candidate := range validMarketplaces {
		if candidate == m {
			return true
		}
	}
	return false
}

// Marketplaces returns every supported channel.
func Marketplaces() []Marketplace {
	out := make([]Marketplace, len(validMarketplaces))
	copy(out, validMarketplaces)
	return out
}

// ParseMarketplace converts raw input into a Marketplace.
func ParseMarketplace(value string) (Marketplace, error) {
	for _, candidate := range validMarketplaces {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace %q", value)
}
