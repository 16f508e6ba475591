/*
meterbuilding.go Building participant backed by a real meter and thermostat
reachable over Modbus TCP. The register map names the points the parent
asset reads and writes.
*/

package meterbuilding

import (
	"encoding/json"
	"errors"
	"io/ioutil"

	"github.com/gridloop/tem_core/internal/pkg/agent/building"
	"github.com/gridloop/tem_core/internal/pkg/comm/modbuscomm"
)

// MeterBuilding target
type MeterBuilding struct {
	comm      modbuscomm.ModbusComm
	registers []modbuscomm.Register
}

// Config extends the building config with the Modbus target and register map.
type Config struct {
	Poller    modbuscomm.PollerConfig `json:"Poller"`
	Registers []modbuscomm.Register   `json:"Registers"`
}

// ReadDeviceStatus polls the meter registers.
func (m MeterBuilding) ReadDeviceStatus() (building.MachineStatus, error) {
	values, err := m.comm.Read(m.registers)
	if err != nil {
		return building.MachineStatus{}, err
	}
	return building.MachineStatus{
		KW:     values["KW"],
		DegF:   values["DegF"],
		Online: values["Online"] != 0,
	}, nil
}

// WriteDeviceControl pushes the setpoint to the thermostat registers.
func (m MeterBuilding) WriteDeviceControl(c building.MachineControl) error {
	run := 0.0
	if c.Run {
		run = 1.0
	}
	return m.comm.Write(m.registers, map[string]float64{
		"SetpointDegF": c.SetpointDegF,
		"Run":          run,
	})
}

// New returns an initialized building Asset backed by a Modbus meter.
func New(configPath string) (building.Asset, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return building.Asset{}, err
	}

	config := Config{}
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return building.Asset{}, err
	}
	if len(config.Registers) == 0 {
		return building.Asset{}, errors.New("meterbuilding: config has no register map")
	}

	device := MeterBuilding{
		comm:      modbuscomm.NewPoller(config.Poller),
		registers: config.Registers,
	}
	return building.New(jsonConfig, device)
}
