package ranging_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/device"
	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleWritesStartCommand(t *testing.T) {
	port := device.NewScriptedPort("1,_,_\n", "0,_,100\n", "9,9\n")
	s := ranging.NewSession(port)

	for i := 0; i < 3; i++ {
		_, err := s.Cycle()
		require.NoError(t, err)
	}
	assert.Equal(t, strings.Repeat("start\n", 3), port.Written())
}

func TestCycleStatusCodes(t *testing.T) {
	tests := []struct {
		line string
		want ranging.Status
	}{
		{"0,1,500\n", ranging.StatusSuccess},
		{"1,_,_\n", ranging.StatusInProgress},
		{"2,0:300000000,0\n", ranging.StatusTimedOut},
		{"3,0:0,0\n", ranging.StatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			s := ranging.NewSession(device.NewScriptedPort(tt.line))
			res, err := s.Cycle()
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, strings.TrimRight(tt.line, "\n"), res.Line)
		})
	}
}

func TestCycleSequencing(t *testing.T) {
	const n = 5
	responses := make([]string, n)
	for i := range responses {
		responses[i] = "1,_,_\n"
	}
	port := device.NewScriptedPort(responses...)
	s := ranging.NewSession(port)

	for i := 0; i < n; i++ {
		_, err := s.Cycle()
		require.NoError(t, err)
	}

	ops := port.Operations()
	require.Len(t, ops, 2*n)
	for i, op := range ops {
		if i%2 == 0 {
			assert.Equal(t, device.OpWrite, op, "op %d", i)
		} else {
			assert.Equal(t, device.OpRead, op, "op %d", i)
		}
	}
}

func TestCycleScriptedScenario(t *testing.T) {
	port := device.NewScriptedPort("1,_,_", "1,_,_", "0,_,2500")
	s := ranging.NewSession(port)

	var got []string
	for i := 0; i < 3; i++ {
		res, err := s.Cycle()
		require.NoError(t, err)
		got = append(got, res.String())
	}
	assert.Equal(t, []string{"In-progress", "In-progress", "Success 25.00 cm"}, got)
	assert.Equal(t, []string{
		device.OpWrite, device.OpRead,
		device.OpWrite, device.OpRead,
		device.OpWrite, device.OpRead,
	}, port.Operations())
}

func TestCycleReadsOnceWithoutCarryOver(t *testing.T) {
	port := device.NewScriptedPort("0,_,100\n\n", "1,_,_", "3,0:0,0\r\n")
	s := ranging.NewSession(port)

	var got []string
	for i := 0; i < 3; i++ {
		res, err := s.Cycle()
		require.NoError(t, err)
		got = append(got, res.String())
	}
	assert.Equal(t, []string{"Success 1.00 cm", "In-progress", "Not started"}, got)
	assert.Len(t, port.Operations(), 6)
}

func TestCycleDecodeFault(t *testing.T) {
	s := ranging.NewSession(device.NewScriptedPort("0,1,notanumber\n"))
	_, err := s.Cycle()
	require.Error(t, err)
	assert.ErrorIs(t, err, ranging.ErrProtocolDecode)
	assert.NotErrorIs(t, err, ranging.ErrChannelRead)
}

func TestCycleWriteErrors(t *testing.T) {
	boom := errors.New("device not ready")

	port := device.NewScriptedPort("0,_,100\n")
	port.WriteError = boom
	s := ranging.NewSession(port)
	res, err := s.Cycle()
	assert.ErrorIs(t, err, ranging.ErrChannelWrite)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ranging.StatusUnknown, res.Status)
	assert.Equal(t, []string{device.OpWrite}, port.Operations(), "no read after a failed write")
	assert.False(t, port.Closed, "channel is left for the caller")

	// the next cycle is independent of the failure
	res, err = s.Cycle()
	require.NoError(t, err)
	assert.Equal(t, ranging.StatusSuccess, res.Status)

	port = device.NewScriptedPort("0,_,100\n")
	port.ShortWrite = true
	_, err = ranging.NewSession(port).Cycle()
	assert.ErrorIs(t, err, ranging.ErrChannelWrite)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestCycleReadErrors(t *testing.T) {
	boom := errors.New("i/o error")
	port := device.NewScriptedPort()
	port.ReadError = boom
	res, err := ranging.NewSession(port).Cycle()
	assert.ErrorIs(t, err, ranging.ErrChannelRead)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ranging.StatusUnknown, res.Status)

	// end of stream before any byte
	res, err = ranging.NewSession(device.NewScriptedPort()).Cycle()
	assert.ErrorIs(t, err, ranging.ErrChannelRead)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, ranging.StatusUnknown, res.Status)
	_, ok := res.Distance()
	assert.False(t, ok)
}

func TestCycleAcceptsRecordWithoutNewline(t *testing.T) {
	port := device.NewScriptedPort("0,0:72675,1250")
	res, err := ranging.NewSession(port).Cycle()
	require.NoError(t, err)
	cm, ok := res.Distance()
	require.True(t, ok)
	assert.InDelta(t, 12.50, cm, 1e-9)
	assert.Equal(t, []string{device.OpWrite, device.OpRead}, port.Operations())
}

func TestCycleFailsWhenClosedDuringRead(t *testing.T) {
	port := device.NewScriptedPort()
	port.BlockReads = true
	s := ranging.NewSession(port)

	done := make(chan error, 1)
	go func() {
		_, err := s.Cycle()
		done <- err
	}()

	// wait for the write so the cycle is blocked in its read
	require.Eventually(t, func() bool { return len(port.Operations()) >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ranging.ErrChannelRead)
		assert.ErrorIs(t, err, device.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("cycle still blocked after close")
	}
}

func TestCycleWithSimulatedDevice(t *testing.T) {
	dev := device.NewSimulated(config.SimulationConfig{Seed: 9, MinCM: 30, MaxCM: 40})
	s := ranging.NewSession(dev)

	for i := 0; i < 20; i++ {
		res, err := s.Cycle()
		require.NoError(t, err)
		cm, ok := res.Distance()
		require.True(t, ok, res.Line)
		assert.GreaterOrEqual(t, cm, 30.0)
		assert.Less(t, cm, 40.0)
	}
}
