/*
modbuscomm.go Modbus TCP polling for building meters. Registers are declared
in the device's JSON config; values are read and written as float64 and
encoded per-register.
*/

package modbuscomm

import (
	"encoding/binary"
	"errors"
	"log"
	"math"
	"os"
	"time"

	"github.com/goburrow/modbus"
)

// ModbusComm is the interface polled by device controllers
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
	Write([]Register, map[string]float64) error
}

// DataType defines the type of Modbus register for encoding/decoding
type DataType string

// Constants of DataType
const (
	u16 DataType = "u16"
	i16 DataType = "i16"
	u32 DataType = "u32"
	i32 DataType = "i32"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// Endian byte order of Modbus register for encoding/decoding
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Register contains the data required to read and write a Modbus register
type Register struct {
	Name       string   `json:"Name"`
	Address    uint16   `json:"Address"`
	DataType   DataType `json:"DataType"`
	Endianness Endian   `json:"Endianness"`
}

// Poller reads and writes a single Modbus TCP target
type Poller struct {
	handler *modbus.TCPClientHandler
}

// PollerConfig is the configuration format for the Poller
type PollerConfig struct {
	IPAddr       string `json:"IPAddr"`
	Port         string `json:"Port"`
	SlaveID      byte   `json:"SlaveID"`
	Timeout      int    `json:"Timeout"`
	EnableLogger bool
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig) Poller {
	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	if cfg.EnableLogger {
		handler.Logger = log.New(os.Stdout, "modbus: ", log.LstdFlags)
	}

	return Poller{handler: handler}
}

// Read polls the target for every register and returns values by name.
func (m Poller) Read(registers []Register) (map[string]float64, error) {
	err := m.handler.Connect()
	if err != nil {
		return nil, err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	readValues := make(map[string]float64)
	for _, register := range registers {
		resp, readErr := client.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if readErr != nil {
			err = readErr
			continue
		}
		readValues[register.Name] = decode(resp, register)
	}
	return readValues, err
}

// Write pushes the named values to their registers on the target.
func (m Poller) Write(registers []Register, writeValues map[string]float64) error {
	err := m.handler.Connect()
	if err != nil {
		return err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	for name, val := range writeValues {
		register, findErr := findByName(registers, name)
		if findErr != nil {
			err = findErr
			continue
		}
		valBytes := encode(val, register)
		if _, writeErr := client.WriteMultipleRegisters(register.Address, sizeOf(register.DataType), valBytes); writeErr != nil {
			err = writeErr
		}
	}
	return err
}

func findByName(registers []Register, name string) (Register, error) {
	for _, register := range registers {
		if register.Name == name {
			return register, nil
		}
	}
	return Register{}, errors.New("register name not found in register array")
}

// encode converts a float64 into a byte array
func encode(val float64, register Register) []byte {
	var bytes []byte
	endian := byteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		bytes = make([]byte, 2*sizeOf(u16))
		endian.PutUint16(bytes, uint16(val))
	case i16:
		bytes = make([]byte, 2*sizeOf(i16))
		endian.PutUint16(bytes, uint16(int16(val)))
	case u32:
		bytes = make([]byte, 2*sizeOf(u32))
		endian.PutUint32(bytes, uint32(val))
	case i32:
		bytes = make([]byte, 2*sizeOf(i32))
		endian.PutUint32(bytes, uint32(int32(val)))
	case f32:
		bytes = make([]byte, 2*sizeOf(f32))
		endian.PutUint32(bytes, math.Float32bits(float32(val)))
	case f64:
		bytes = make([]byte, 2*sizeOf(f64))
		endian.PutUint64(bytes, math.Float64bits(val))
	}
	return bytes
}

// decode converts byte arrays into float64s
func decode(bytes []byte, register Register) float64 {
	var n float64
	endian := byteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		n = float64(endian.Uint16(bytes))
	case i16:
		n = float64(int16(endian.Uint16(bytes)))
	case u32:
		n = float64(endian.Uint32(bytes))
	case i32:
		n = float64(int32(endian.Uint32(bytes)))
	case f32:
		bits := endian.Uint32(bytes)
		n = float64(math.Float32frombits(bits))
	case f64:
		bits := endian.Uint64(bytes)
		n = math.Float64frombits(bits)
	}
	return n
}

// byteOrder returns the binary.ByteOrder for the register's endianness
func byteOrder(e Endian) binary.ByteOrder {
	if e == littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// sizeOf returns the number of u16 registers for the datatype
func sizeOf(t DataType) uint16 {
	switch t {
	case u16, i16:
		return 1
	case u32, i32, f32:
		return 2
	case f64:
		return 4
	}
	return 0
}
