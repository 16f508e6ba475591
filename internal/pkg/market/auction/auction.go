/*
auction.go Monotone root-finding for double-auction clearing. The solver
knows nothing about participants: it searches any non-increasing quantity
function for the price that produces a target quantity.
*/

package auction

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoConverge reports that the bisection exhausted its iteration budget
// without entering the tolerance band. With valid monotonic bid data this
// cannot happen; it signals a data problem upstream.
var ErrNoConverge = errors.New("clearing did not converge")

// Config holds the clearing solver's numeric constants.
type Config struct {
	Tolerance     float64 `json:"Tolerance"`
	MaxIterations int     `json:"MaxIterations"`
}

// DefaultConfig returns the solver constants used when no configuration is
// supplied.
func DefaultConfig() Config {
	return Config{Tolerance: 1e-5, MaxIterations: 100}
}

// NewConfig parses solver constants from JSON, filling absent fields from
// the defaults.
func NewConfig(jsonConfig []byte) (Config, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return Config{}, err
	}
	if config.Tolerance <= 0 {
		return Config{}, fmt.Errorf("auction: tolerance must be positive, have %f", config.Tolerance)
	}
	if config.MaxIterations < 1 {
		return Config{}, fmt.Errorf("auction: iteration budget must be at least 1, have %d", config.MaxIterations)
	}
	return config, nil
}

// Clear bisects the price interval [minPrice, maxPrice] for a price p such
// that quantityAt(p) is within Tolerance of offer. quantityAt must be
// non-increasing over the interval. Offers outside the reachable quantity
// range saturate at the bounding price; saturation is a defined outcome,
// not an error.
func Clear(quantityAt func(float64) float64, offer, minPrice, maxPrice float64, config Config) (float64, error) {
	lo := minPrice
	hi := maxPrice

	// quantity is maximal at the low price bound
	if offer >= quantityAt(lo)-config.Tolerance {
		return lo, nil
	}
	if offer <= quantityAt(hi)+config.Tolerance {
		return hi, nil
	}

	for i := 0; i < config.MaxIterations; i++ {
		mid := (lo + hi) / 2
		q := quantityAt(mid)
		if q >= offer-config.Tolerance && q <= offer+config.Tolerance {
			return mid, nil
		}
		if q > offer {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0, fmt.Errorf("%w: %d iterations at offer %f", ErrNoConverge, config.MaxIterations, offer)
}
