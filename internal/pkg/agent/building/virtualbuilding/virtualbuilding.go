/*
virtualbuilding.go Virtual device model for a building participant. Stands in
for the physical HVAC when the market is exercised outside a co-simulation.
*/

package virtualbuilding

import (
	"encoding/json"
	"io/ioutil"
	"sync"

	"github.com/gridloop/tem_core/internal/pkg/agent/building"
)

// VirtualBuilding is a first-order stand-in for the building's HVAC response.
type VirtualBuilding struct {
	mux     *sync.Mutex
	config  Config
	control building.MachineControl
	degF    float64
}

// Config holds the virtual thermal model parameters. The same JSON document
// configures the parent asset.
type Config struct {
	Name             string  `json:"Name"`
	BaseKW           float64 `json:"BaseKW"`
	BaseSetpointDegF float64 `json:"BaseSetpointDegF"`
	DegFPerKW        float64 `json:"DegFPerKW"`
}

// ReadDeviceStatus reports the load implied by the last written setpoint.
func (v *VirtualBuilding) ReadDeviceStatus() (building.MachineStatus, error) {
	v.mux.Lock()
	defer v.mux.Unlock()

	// zone temperature walks halfway to the setpoint each read
	v.degF += (v.control.SetpointDegF - v.degF) / 2

	kw := v.config.BaseKW
	if v.control.Run && v.config.DegFPerKW != 0 {
		kw = v.config.BaseKW - (v.control.SetpointDegF-v.config.BaseSetpointDegF)/v.config.DegFPerKW
	}
	return building.MachineStatus{KW: kw, DegF: v.degF, Online: true}, nil
}

// WriteDeviceControl accepts a setpoint from the parent asset.
func (v *VirtualBuilding) WriteDeviceControl(c building.MachineControl) error {
	v.mux.Lock()
	defer v.mux.Unlock()
	v.control = c
	return nil
}

// New returns an initialized building Asset backed by a virtual device.
func New(configPath string) (building.Asset, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return building.Asset{}, err
	}
	return NewFromConfig(jsonConfig)
}

// NewFromConfig builds the virtual asset from an in-memory JSON document.
func NewFromConfig(jsonConfig []byte) (building.Asset, error) {
	config := Config{}
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return building.Asset{}, err
	}

	device := &VirtualBuilding{
		mux:    &sync.Mutex{},
		config: config,
		control: building.MachineControl{
			Run:          false,
			SetpointDegF: config.BaseSetpointDegF,
		},
		degF: config.BaseSetpointDegF,
	}
	return building.New(jsonConfig, device)
}
