package market

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/bid"
	"github.com/gridloop/tem_core/internal/pkg/msg"
	"gotest.tools/assert"
)

func testConfig() []byte {
	return []byte(`{"Name": "TEST_Market"}`)
}

func fourPointCurve(t *testing.T) bid.Curve {
	t.Helper()
	c, err := bid.New([]bid.Point{
		{Quantity: 0, Price: 100},
		{Quantity: 10, Price: 80},
		{Quantity: 20, Price: 60},
		{Quantity: 30, Price: 40},
	})
	assert.NilError(t, err)
	return c
}

func TestNewRequiresParticipant(t *testing.T) {
	_, err := New(testConfig())
	assert.Assert(t, err != nil)
}

func TestClearExactBreakpoint(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	price, err := m.Clear(10)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(price-80) < 1e-3, "cleared at %f, want 80", price)
}

func TestClearTwoIdentical(t *testing.T) {
	m, err := New(testConfig(),
		NewParticipant("bldg1", fourPointCurve(t), nil),
		NewParticipant("bldg2", fourPointCurve(t), nil))
	assert.NilError(t, err)

	price, err := m.Clear(20)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(price-80) < 1e-3, "cleared at %f, want 80", price)

	q1, err := m.Allocation("bldg1", price)
	assert.NilError(t, err)
	q2, err := m.Allocation("bldg2", price)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(q1-10) < 1e-3)
	assert.Assert(t, math.Abs(q2-10) < 1e-3)
}

func TestClearZeroOfferSaturatesHigh(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	price, err := m.Clear(0)
	assert.NilError(t, err)
	assert.Equal(t, price, 100.0)
}

func TestClearExcessOfferSaturatesLow(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	price, err := m.Clear(100)
	assert.NilError(t, err)
	assert.Equal(t, price, 40.0)
}

func TestClearIdempotent(t *testing.T) {
	m, err := New(testConfig(),
		NewParticipant("bldg1", fourPointCurve(t), nil),
		NewParticipant("bldg2", fourPointCurve(t), nil))
	assert.NilError(t, err)

	first, err := m.Clear(17)
	assert.NilError(t, err)
	second, err := m.Clear(17)
	assert.NilError(t, err)
	assert.Equal(t, first, second)
}

func TestRemoteLocalEquivalence(t *testing.T) {
	curve := fourPointCurve(t)

	local, err := New(testConfig(),
		NewParticipant("bldg1", curve, nil),
		NewParticipant("bldg2", curve, nil))
	assert.NilError(t, err)

	mixed, err := New(testConfig(), NewParticipant("bldg1", curve, nil))
	assert.NilError(t, err)
	err = mixed.RegisterRemote("bldg2", curve.Vector())
	assert.NilError(t, err)

	for _, offer := range []float64{0, 10, 20, 35, 60} {
		pLocal, err := local.Clear(offer)
		assert.NilError(t, err)
		pMixed, err := mixed.Clear(offer)
		assert.NilError(t, err)
		assert.Equal(t, pLocal, pMixed, "offer %f cleared differently", offer)
	}
}

func TestDuplicateName(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	err = m.Register(NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.Assert(t, errors.Is(err, ErrDuplicateName))

	err = m.RegisterRemote("bldg1", fourPointCurve(t).Vector())
	assert.Assert(t, errors.Is(err, ErrDuplicateName))
}

func TestRegisterRemoteInvalidCurve(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	// price rises from 50 to 60 before falling
	err = m.RegisterRemote("bldg2", []float64{0, 50, 5, 60, 10, 40})
	assert.Assert(t, errors.Is(err, bid.ErrInvalidCurve))
}

func TestAllocationUnknownName(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), nil))
	assert.NilError(t, err)

	_, err = m.Allocation("bldg9", 80)
	assert.Assert(t, errors.Is(err, ErrUnknownName))
}

func TestForEachParticipantOrder(t *testing.T) {
	m, err := New(testConfig(),
		NewParticipant("bldg1", fourPointCurve(t), nil),
		NewParticipant("bldg2", fourPointCurve(t), nil))
	assert.NilError(t, err)
	assert.NilError(t, m.RegisterRemote("bldg3", fourPointCurve(t).Vector()))

	names := make([]string, 0, 3)
	m.ForEachParticipant(func(p Participant) {
		names = append(names, p.Name())
	})
	assert.DeepEqual(t, names, []string{"bldg1", "bldg2", "bldg3"})
}

type dummyDevice struct{}

func (d dummyDevice) LoadAtPrice(price float64) float64 { return 0 }
func (d dummyDevice) SetpointAtLoad(kw float64) float64 { return 0 }

func TestRemoteFlag(t *testing.T) {
	m, err := New(testConfig(), NewParticipant("bldg1", fourPointCurve(t), dummyDevice{}))
	assert.NilError(t, err)
	assert.NilError(t, m.RegisterRemote("bldg2", fourPointCurve(t).Vector()))

	m.ForEachParticipant(func(p Participant) {
		switch p.Name() {
		case "bldg1":
			assert.Assert(t, !p.Remote())
			_, ok := p.Device()
			assert.Assert(t, ok)
		case "bldg2":
			assert.Assert(t, p.Remote())
			_, ok := p.Device()
			assert.Assert(t, !ok)
		}
	})
}

func TestClearPublishesRecord(t *testing.T) {
	m, err := New(testConfig(),
		NewParticipant("bldg1", fourPointCurve(t), nil),
		NewParticipant("bldg2", fourPointCurve(t), nil))
	assert.NilError(t, err)

	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	ch, err := m.Subscribe(pid, msg.Clearing)
	assert.NilError(t, err)

	price, err := m.Clear(20)
	assert.NilError(t, err)

	received := <-ch
	record, ok := received.Payload().(ClearingRecord)
	assert.Assert(t, ok)
	assert.Equal(t, record.Market, "TEST_Market")
	assert.Equal(t, record.Offer, 20.0)
	assert.Equal(t, record.Price, price)
	assert.Assert(t, math.Abs(record.Allocations["bldg1"]-10) < 1e-3)
	assert.Assert(t, math.Abs(record.Allocations["bldg2"]-10) < 1e-3)
}
