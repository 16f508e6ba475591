package building

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/bid"
	"github.com/gridloop/tem_core/internal/pkg/msg"
	"gotest.tools/assert"
)

type DummyDevice struct {
	status  MachineStatus
	control MachineControl
	fail    bool
}

func (d *DummyDevice) ReadDeviceStatus() (MachineStatus, error) {
	if d.fail {
		return MachineStatus{}, errors.New("dummy comm failure")
	}
	return d.status, nil
}

func (d *DummyDevice) WriteDeviceControl(c MachineControl) error {
	if d.fail {
		return errors.New("dummy comm failure")
	}
	d.control = c
	return nil
}

func newTestAsset(t *testing.T) (Asset, *DummyDevice) {
	t.Helper()
	jsonConfig, err := ioutil.ReadFile("building_test_config.json")
	assert.NilError(t, err)

	device := &DummyDevice{status: MachineStatus{KW: 25, DegF: 72, Online: true}}
	asset, err := New(jsonConfig, device)
	assert.NilError(t, err)
	return asset, device
}

func TestReadConfig(t *testing.T) {
	testConfig := MachineConfig{}
	jsonConfig, err := ioutil.ReadFile("building_test_config.json")
	assert.NilError(t, err)

	err = json.Unmarshal(jsonConfig, &testConfig)
	assert.NilError(t, err)

	assert.Equal(t, testConfig.Name, "TEST_Building")
	assert.Equal(t, testConfig.BaseKW, 25.0)
	assert.Equal(t, testConfig.BaseSetpointDegF, 72.0)
	assert.Equal(t, testConfig.DegFPerKW, 0.1)
	assert.Equal(t, len(testConfig.BidQuantity), 4)
	assert.Equal(t, len(testConfig.BidPrice), 4)
}

func TestNewBuildsCurve(t *testing.T) {
	asset, _ := newTestAsset(t)
	assert.Equal(t, asset.Name(), "TEST_Building")
	assert.Equal(t, asset.Curve().Len(), 4)
	assert.Equal(t, asset.Curve().MaxQuantity(), 30.0)
}

func TestNewRejectsUnpairedBid(t *testing.T) {
	jsonConfig := []byte(`{"Name": "TEST", "BidQuantity": [0, 10, 20], "BidPrice": [100, 80]}`)
	_, err := New(jsonConfig, &DummyDevice{})
	assert.Assert(t, errors.Is(err, bid.ErrInvalidCurve))
}

func TestNewRejectsInvalidBid(t *testing.T) {
	jsonConfig := []byte(`{"Name": "TEST", "BidQuantity": [0, 5, 10], "BidPrice": [50, 60, 40]}`)
	_, err := New(jsonConfig, &DummyDevice{})
	assert.Assert(t, errors.Is(err, bid.ErrInvalidCurve))
}

func TestLoadAtPrice(t *testing.T) {
	asset, _ := newTestAsset(t)
	assert.Assert(t, math.Abs(asset.LoadAtPrice(80)-10) < 1e-9)
	assert.Assert(t, math.Abs(asset.LoadAtPrice(70)-15) < 1e-9)
}

func TestSetpointAtLoad(t *testing.T) {
	asset, _ := newTestAsset(t)

	// at base load the setpoint is unchanged
	assert.Assert(t, math.Abs(asset.SetpointAtLoad(25)-72) < 1e-9)

	// shedding 10 kW relaxes the setpoint by 1 degF
	assert.Assert(t, math.Abs(asset.SetpointAtLoad(15)-73) < 1e-9)
}

func TestParticipantCarriesDevice(t *testing.T) {
	asset, _ := newTestAsset(t)
	participant := asset.Participant()

	assert.Equal(t, participant.Name(), "TEST_Building")
	assert.Assert(t, !participant.Remote())

	device, ok := participant.Device()
	assert.Assert(t, ok)
	assert.Assert(t, math.Abs(device.LoadAtPrice(80)-10) < 1e-9)
}

func TestWriteControl(t *testing.T) {
	asset, device := newTestAsset(t)

	// price 80 clears 10 kW, shedding 15 kW from base
	asset.WriteControl(80)
	assert.Assert(t, device.control.Run)
	assert.Assert(t, math.Abs(device.control.SetpointDegF-73.5) < 1e-9)
}

func TestUpdateStatusBroadcast(t *testing.T) {
	asset, _ := newTestAsset(t)

	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	ch, err := asset.Subscribe(pid, msg.Status)
	assert.NilError(t, err)

	asset.UpdateStatus()

	received := <-ch
	status, ok := received.Payload().(MachineStatus)
	assert.Assert(t, ok)
	assert.Equal(t, status.KW, 25.0)
	assert.Assert(t, status.Online)
}

func TestUpdateStatusCommError(t *testing.T) {
	asset, device := newTestAsset(t)
	device.fail = true

	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	ch, err := asset.Subscribe(pid, msg.Status)
	assert.NilError(t, err)

	asset.UpdateStatus()

	select {
	case m := <-ch:
		t.Fatalf("broadcast on failed device read: %v", m)
	default:
	}
}
