/*
bid.go Piecewise-linear bid curves. A curve relates the quantity a market
participant is willing to consume to the price it is willing to pay, and is
the only participant state that crosses a process boundary.
*/

package bid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCurve reports malformed or non-monotonic breakpoints.
var ErrInvalidCurve = errors.New("invalid bid curve")

// Point is a single breakpoint on a bid curve.
type Point struct {
	Quantity float64 `json:"Quantity"`
	Price    float64 `json:"Price"`
}

// Curve is an immutable inverse-demand function: quantity is non-decreasing
// and price is non-increasing across the breakpoints. Between breakpoints the
// curve interpolates linearly; outside them it saturates.
type Curve struct {
	points []Point
}

// New validates breakpoints and returns a Curve. A curve needs at least two
// breakpoints to interpolate.
func New(points []Point) (Curve, error) {
	if len(points) < 2 {
		return Curve{}, fmt.Errorf("%w: need at least 2 breakpoints, have %d", ErrInvalidCurve, len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].Quantity < points[i-1].Quantity {
			return Curve{}, fmt.Errorf("%w: quantity decreases at breakpoint %d (%f -> %f)",
				ErrInvalidCurve, i, points[i-1].Quantity, points[i].Quantity)
		}
		if points[i].Price > points[i-1].Price {
			return Curve{}, fmt.Errorf("%w: price increases at breakpoint %d (%f -> %f)",
				ErrInvalidCurve, i, points[i-1].Price, points[i].Price)
		}
	}
	owned := make([]Point, len(points))
	copy(owned, points)
	return Curve{owned}, nil
}

// FromVector reconstructs a Curve from a flattened sequence of
// (quantity, price) pairs, the shape bids take on the wire.
func FromVector(v []float64) (Curve, error) {
	if len(v)%2 != 0 {
		return Curve{}, fmt.Errorf("%w: flattened vector has odd length %d", ErrInvalidCurve, len(v))
	}
	points := make([]Point, 0, len(v)/2)
	for i := 0; i < len(v); i += 2 {
		points = append(points, Point{Quantity: v[i], Price: v[i+1]})
	}
	return New(points)
}

// Vector flattens the curve into (quantity, price) pairs for transport.
func (c Curve) Vector() []float64 {
	v := make([]float64, 0, 2*len(c.points))
	for _, pt := range c.points {
		v = append(v, pt.Quantity, pt.Price)
	}
	return v
}

// Len returns the breakpoint count.
func (c Curve) Len() int {
	return len(c.points)
}

// Points returns a copy of the breakpoints.
func (c Curve) Points() []Point {
	pts := make([]Point, len(c.points))
	copy(pts, c.points)
	return pts
}

// MinQuantity returns the quantity at the highest price.
func (c Curve) MinQuantity() float64 {
	return c.points[0].Quantity
}

// MaxQuantity returns the quantity at the lowest price.
func (c Curve) MaxQuantity() float64 {
	return c.points[len(c.points)-1].Quantity
}

// MinPrice returns the lowest breakpoint price.
func (c Curve) MinPrice() float64 {
	return c.points[len(c.points)-1].Price
}

// MaxPrice returns the highest breakpoint price.
func (c Curve) MaxPrice() float64 {
	return c.points[0].Price
}

// QuantityAtPrice interpolates the quantity demanded at price p. Above the
// curve's price range the curve saturates at its minimum quantity, below it
// at its maximum quantity.
func (c Curve) QuantityAtPrice(p float64) float64 {
	first := c.points[0]
	last := c.points[len(c.points)-1]
	if p >= first.Price {
		return first.Quantity
	}
	if p <= last.Price {
		return last.Quantity
	}
	for i := 1; i < len(c.points); i++ {
		lo := c.points[i-1]
		hi := c.points[i]
		if p < hi.Price {
			continue
		}
		if lo.Price == hi.Price {
			return hi.Quantity
		}
		frac := (lo.Price - p) / (lo.Price - hi.Price)
		return lo.Quantity + frac*(hi.Quantity-lo.Quantity)
	}
	return last.Quantity
}

// PriceAtQuantity is the inverse query: the price at which the participant
// demands quantity q, saturating at the breakpoint prices outside the
// quantity range.
func (c Curve) PriceAtQuantity(q float64) float64 {
	first := c.points[0]
	last := c.points[len(c.points)-1]
	if q <= first.Quantity {
		return first.Price
	}
	if q >= last.Quantity {
		return last.Price
	}
	for i := 1; i < len(c.points); i++ {
		lo := c.points[i-1]
		hi := c.points[i]
		if q > hi.Quantity {
			continue
		}
		if lo.Quantity == hi.Quantity {
			return hi.Price
		}
		frac := (q - lo.Quantity) / (hi.Quantity - lo.Quantity)
		return lo.Price + frac*(hi.Price-lo.Price)
	}
	return last.Price
}

// String renders the breakpoints for diagnostic dumps.
func (c Curve) String() string {
	var b strings.Builder
	for i, pt := range c.points {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(%.2f kW, %.2f)", pt.Quantity, pt.Price)
	}
	return b.String()
}
