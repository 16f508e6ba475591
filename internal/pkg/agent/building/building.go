/*
building.go A building participant in a transactive energy market. The asset
owns its four-point bid curve and maps a cleared price back into a thermostat
setpoint through its device controller.
*/

package building

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/bid"
	"github.com/gridloop/tem_core/internal/pkg/market"
	"github.com/gridloop/tem_core/internal/pkg/msg"
)

// DeviceController is the hardware abstraction layer
type DeviceController interface {
	ReadDeviceStatus() (MachineStatus, error)
	WriteDeviceControl(MachineControl) error
}

// MachineStatus is the measured state of the building
type MachineStatus struct {
	KW     float64
	DegF   float64
	Online bool
}

// MachineControl defines the hardware control interface for the building
type MachineControl struct {
	Run          bool
	SetpointDegF float64
}

// MachineConfig holds the building's bid and thermal parameters
type MachineConfig struct {
	Name             string    `json:"Name"`
	BidQuantity      []float64 `json:"BidQuantity"`
	BidPrice         []float64 `json:"BidPrice"`
	BaseKW           float64   `json:"BaseKW"`
	BaseSetpointDegF float64   `json:"BaseSetpointDegF"`
	DegFPerKW        float64   `json:"DegFPerKW"`
}

// Asset is a data structure for a building participant
type Asset struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	device    DeviceController
	publisher *msg.PubSub
	curve     bid.Curve
	config    MachineConfig
}

// New returns a configured Asset. The bid curve is built from the config's
// paired quantity and price lists.
func New(jsonConfig []byte, device DeviceController) (Asset, error) {
	config := MachineConfig{}
	err := json.Unmarshal(jsonConfig, &config)
	if err != nil {
		return Asset{}, err
	}

	if len(config.BidQuantity) != len(config.BidPrice) {
		return Asset{}, fmt.Errorf("building %v: %w: %d quantities paired with %d prices",
			config.Name, bid.ErrInvalidCurve, len(config.BidQuantity), len(config.BidPrice))
	}
	points := make([]bid.Point, len(config.BidQuantity))
	for i := range config.BidQuantity {
		points[i] = bid.Point{Quantity: config.BidQuantity[i], Price: config.BidPrice[i]}
	}
	curve, err := bid.New(points)
	if err != nil {
		return Asset{}, fmt.Errorf("building %v: %w", config.Name, err)
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Asset{}, err
	}

	return Asset{&sync.Mutex{}, pid, device, msg.NewPublisher(pid), curve, config}, nil
}

// PID is a getter for the asset PID
func (a Asset) PID() uuid.UUID {
	return a.pid
}

// Name is a getter for the asset Name
func (a Asset) Name() string {
	return a.config.Name
}

// Curve returns the building's bid curve.
func (a Asset) Curve() bid.Curve {
	return a.curve
}

// DeviceController returns the hardware abstraction layer struct
func (a Asset) DeviceController() DeviceController {
	return a.device
}

// Participant wraps the asset for market registration; the asset itself is
// the device mapping capability.
func (a *Asset) Participant() market.Participant {
	return market.NewParticipant(a.config.Name, a.curve, a)
}

// LoadAtPrice returns the building load at a cleared price.
func (a *Asset) LoadAtPrice(price float64) float64 {
	return a.curve.QuantityAtPrice(price)
}

// SetpointAtLoad maps a controlled load back to a thermostat setpoint. Shed
// load relaxes the setpoint by DegFPerKW per kW.
func (a *Asset) SetpointAtLoad(kw float64) float64 {
	return a.config.BaseSetpointDegF + (a.config.BaseKW-kw)*a.config.DegFPerKW
}

// BaseKW is a getter for the building's uncontrolled load.
func (a Asset) BaseKW() float64 {
	return a.config.BaseKW
}

// BaseSetpointDegF is a getter for the building's uncontrolled setpoint.
func (a Asset) BaseSetpointDegF() float64 {
	return a.config.BaseSetpointDegF
}

// Subscribe returns a read only channel for the asset's broadcasts.
func (a *Asset) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return a.publisher.Subscribe(pid, topic)
}

// Unsubscribe closes the broadcast channels associated with pid.
func (a *Asset) Unsubscribe(pid uuid.UUID) {
	a.publisher.Unsubscribe(pid)
}

// UpdateStatus requests a physical device read, then broadcasts the status.
func (a *Asset) UpdateStatus() {
	machineStatus, err := a.device.ReadDeviceStatus()
	if err != nil {
		log.Printf("[Building %v] %v comm error\n", a.config.Name, err)
		return
	}
	a.publisher.Publish(msg.Status, machineStatus)
}

// WriteControl maps the cleared price to a setpoint and writes it to the
// physical device.
func (a *Asset) WriteControl(clearedPrice float64) {
	kw := a.LoadAtPrice(clearedPrice)
	control := MachineControl{Run: true, SetpointDegF: a.SetpointAtLoad(kw)}
	if err := a.device.WriteDeviceControl(control); err != nil {
		log.Printf("[Building %v] %v comm error\n", a.config.Name, err)
	}
}
