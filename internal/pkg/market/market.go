/*
market.go A double-auction energy market. Participants register once per
clearing round, either locally with full device detail or remotely with a
flattened bid curve received off the wire, and the market finds the price
at which aggregate demand meets an offered quantity.
*/

package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/bid"
	"github.com/gridloop/tem_core/internal/pkg/market/auction"
	"github.com/gridloop/tem_core/internal/pkg/msg"
)

var (
	// ErrDuplicateName reports a participant name collision at registration.
	ErrDuplicateName = errors.New("duplicate participant name")
	// ErrUnknownName reports a lookup for a participant that never registered.
	ErrUnknownName = errors.New("unknown participant name")
)

// ErrNoConverge is the clearing solver's failure condition.
var ErrNoConverge = auction.ErrNoConverge

// DeviceMapper turns a cleared price into a physical control signal. Only
// local participants carry one; the market treats it as an opaque capability.
type DeviceMapper interface {
	LoadAtPrice(price float64) float64
	SetpointAtLoad(kw float64) float64
}

// Participant pairs a name with an owned bid curve. Remote participants are
// distinguished only by the absence of a device mapping.
type Participant struct {
	name   string
	curve  bid.Curve
	device DeviceMapper
}

// NewParticipant returns a local participant with a device mapping. Pass a
// nil device for a bare curve holder.
func NewParticipant(name string, curve bid.Curve, device DeviceMapper) Participant {
	return Participant{name, curve, device}
}

// Name returns the participant's market-unique name.
func (p Participant) Name() string {
	return p.name
}

// Curve returns the participant's bid curve.
func (p Participant) Curve() bid.Curve {
	return p.curve
}

// Device returns the participant's device mapping, if it holds one.
func (p Participant) Device() (DeviceMapper, bool) {
	return p.device, p.device != nil
}

// Remote reports whether the participant is a curve-only handle.
func (p Participant) Remote() bool {
	return p.device == nil
}

// Config represents the static properties of a market.
type Config struct {
	Name    string         `json:"Name"`
	Auction auction.Config `json:"Auction"`
}

// ClearingRecord is the result of one clearing round, published on the
// Clearing topic and consumed by the datastream handlers.
type ClearingRecord struct {
	Market      string             `json:"Market"`
	Offer       float64            `json:"Offer"`
	Price       float64            `json:"Price"`
	Allocations map[string]float64 `json:"Allocations"`
}

// Market aggregates participant curves and clears an offered quantity
// against them. Registration must not run concurrently with Clear; one
// clearing round completes its registrations before clearing.
type Market struct {
	mux          *sync.Mutex
	pid          uuid.UUID
	publisher    *msg.PubSub
	config       Config
	order        []string
	participants map[string]Participant
}

// New returns a configured Market holding the initial participants. A market
// needs at least one participant to define a price domain.
func New(jsonConfig []byte, initial ...Participant) (*Market, error) {
	config := Config{Auction: auction.DefaultConfig()}
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return nil, err
	}
	if config.Auction.Tolerance <= 0 || config.Auction.MaxIterations < 1 {
		return nil, fmt.Errorf("market %v: bad auction constants %+v", config.Name, config.Auction)
	}
	if len(initial) < 1 {
		return nil, fmt.Errorf("market %v: needs at least one participant", config.Name)
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	m := &Market{
		&sync.Mutex{},
		pid,
		msg.NewPublisher(pid),
		config,
		make([]string, 0, len(initial)),
		make(map[string]Participant),
	}
	for _, p := range initial {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PID is an accessor for the market's process id.
func (m *Market) PID() uuid.UUID {
	return m.pid
}

// Name is an accessor for the market's configured name.
func (m *Market) Name() string {
	return m.config.Name
}

// Subscribe returns a read only channel for the market's broadcasts.
func (m *Market) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return m.publisher.Subscribe(pid, topic)
}

// Unsubscribe closes the broadcast channels associated with pid.
func (m *Market) Unsubscribe(pid uuid.UUID) {
	m.publisher.Unsubscribe(pid)
}

// Register adds a fully-modeled local participant.
func (m *Market) Register(p Participant) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.participants[p.Name()]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateName, p.Name())
	}
	m.participants[p.Name()] = p
	m.order = append(m.order, p.Name())
	return nil
}

// RegisterRemote adds a participant known only through a flattened
// (quantity, price) vector received from another process. The vector is
// validated with the same rules as a locally built curve.
func (m *Market) RegisterRemote(name string, vector []float64) error {
	curve, err := bid.FromVector(vector)
	if err != nil {
		return fmt.Errorf("remote participant %v: %w", name, err)
	}
	return m.Register(Participant{name: name, curve: curve})
}

// AggregateQuantity sums every participant's demand at price p. Summation
// runs in registration order so repeated clears are bit-identical.
func (m *Market) AggregateQuantity(p float64) float64 {
	total := 0.0
	for _, name := range m.order {
		total += m.participants[name].curve.QuantityAtPrice(p)
	}
	return total
}

// Clear finds the price at which aggregate demand meets the offered
// quantity and broadcasts the resulting ClearingRecord. The computation is
// pure over the current registration set: the same offer against the same
// participants clears at the same price.
func (m *Market) Clear(offer float64) (float64, error) {
	minPrice, maxPrice := m.priceDomain()
	price, err := auction.Clear(m.AggregateQuantity, offer, minPrice, maxPrice, m.config.Auction)
	if err != nil {
		return 0, fmt.Errorf("market %v: %w", m.config.Name, err)
	}

	m.publisher.Publish(msg.Clearing, m.record(offer, price))
	return price, nil
}

// Allocation returns the named participant's own demand at an already
// cleared price.
func (m *Market) Allocation(name string, price float64) (float64, error) {
	participant, ok := m.participants[name]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownName, name)
	}
	return participant.curve.QuantityAtPrice(price), nil
}

// ForEachParticipant visits participants in registration order.
func (m *Market) ForEachParticipant(fn func(Participant)) {
	for _, name := range m.order {
		fn(m.participants[name])
	}
}

// Dump renders every participant's curve for diagnostics.
func (m *Market) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "market %v\n", m.config.Name)
	m.ForEachParticipant(func(p Participant) {
		role := "local"
		if p.Remote() {
			role = "remote"
		}
		fmt.Fprintf(&b, "  %-20s %-6s %v\n", p.Name(), role, p.Curve())
	})
	return b.String()
}

func (m *Market) priceDomain() (float64, float64) {
	first := true
	var minPrice, maxPrice float64
	for _, name := range m.order {
		curve := m.participants[name].curve
		if first || curve.MinPrice() < minPrice {
			minPrice = curve.MinPrice()
		}
		if first || curve.MaxPrice() > maxPrice {
			maxPrice = curve.MaxPrice()
		}
		first = false
	}
	return minPrice, maxPrice
}

func (m *Market) record(offer, price float64) ClearingRecord {
	allocations := make(map[string]float64, len(m.participants))
	for name, p := range m.participants {
		allocations[name] = p.curve.QuantityAtPrice(price)
	}
	return ClearingRecord{
		Market:      m.config.Name,
		Offer:       offer,
		Price:       price,
		Allocations: allocations,
	}
}
