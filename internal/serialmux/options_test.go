package serialmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_NormaliseDefaults(t *testing.T) {
	t.Parallel()
	got, err := PortOptions{}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, got)
}

func TestPortOptions_NormaliseErrors(t *testing.T) {
	t.Parallel()
	for name, o := range map[string]PortOptions{
		"data bits": {DataBits: 9},
		"stop bits": {StopBits: 3},
		"parity":    {Parity: "mark"},
	} {
		_, err := o.Normalise()
		assert.Error(t, err, name)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	mode, err = PortOptions{Parity: "o"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	_, err = PortOptions{Parity: "x"}.SerialMode()
	assert.Error(t, err)
}

func TestPortOptions_Equal(t *testing.T) {
	t.Parallel()
	assert.True(t, PortOptions{}.Equal(PortOptions{BaudRate: 115200, Parity: "none"}))
	assert.False(t, PortOptions{}.Equal(PortOptions{BaudRate: 9600}))
	assert.False(t, PortOptions{DataBits: 2}.Equal(PortOptions{DataBits: 2}))
}
