package device

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedPortRecordsOperations(t *testing.T) {
	p := NewScriptedPort("a\n", "b\n")
	buf := make([]byte, 8)

	_, err := p.Write([]byte("start\n"))
	require.NoError(t, err)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(buf[:n]))
	_, err = p.Write([]byte("start\n"))
	require.NoError(t, err)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(buf[:n]))

	_, err = p.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{OpWrite, OpRead, OpWrite, OpRead, OpRead}, p.Operations())
	assert.Equal(t, "start\nstart\n", p.Written())
}

func TestScriptedPortInjectedErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedPort("a\n")
	p.WriteError = boom
	p.ReadError = boom

	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, boom)
	_, err = p.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)

	// errors are one-shot
	n, err := p.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p.ShortWrite = true
	n, err = p.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestScriptedPortCloseUnblocksRead(t *testing.T) {
	p := NewScriptedPort()
	p.BlockReads = true

	done := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 4))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("read returned before close")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, p.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read still blocked after close")
	}
}

func TestScriptedPortPushWakesReader(t *testing.T) {
	p := NewScriptedPort()
	p.BlockReads = true

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := p.Read(buf)
		got <- string(buf[:n])
	}()

	p.Push("0,_,100\n")
	select {
	case s := <-got:
		assert.Equal(t, "0,_,100\n", s)
	case <-time.After(time.Second):
		t.Fatal("read not woken by push")
	}
}
