package serialmux

import (
	"go.bug.st/serial"
)

// OpenSerialPort opens a real port with go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// RealPortFactory opens hardware ports.
var RealPortFactory SerialPortFactory = SerialPortOpener(OpenSerialPort)

// ListPorts returns the serial ports visible to the OS.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
