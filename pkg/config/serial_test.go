package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialConfigNormalize(t *testing.T) {
	got, err := SerialConfig{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, SerialConfig{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: " odd "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "O"}, got)

	for _, bad := range []SerialConfig{
		{DataBits: 9},
		{DataBits: 4},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}
