package spidev_test

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"lautenbacher.net/gospidev/spidev"
	"lautenbacher.net/gospidev/spidevtest"
)

func TestOpenMissingDevice(t *testing.T) {
	_, err := spidev.Open(filepath.Join(t.TempDir(), "spidev9.9"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spidev0.0")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	dev, err := spidev.Open(path)
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, path, dev.Path())
	assert.Equal(t, "spidev("+path+")", dev.String())

	// A regular file is not a spidev device; the kernel says so.
	_, err = dev.Query()
	assert.ErrorIs(t, err, unix.ENOTTY)
}

func TestConfigureQueryRoundTrip(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	opts := spidev.NewOptions().
		WithBitsPerWord(8).
		WithMaxSpeedHz(20000).
		WithMode(spidev.Mode0)
	require.NoError(t, dev.Configure(opts))
	assert.Equal(t, 3, drv.Calls())

	got, err := dev.Query()
	require.NoError(t, err)
	bpw, ok := got.BitsPerWord()
	assert.True(t, ok)
	assert.Equal(t, uint8(8), bpw)
	hz, _ := got.MaxSpeedHz()
	assert.Equal(t, uint32(20000), hz)
	mode, _ := got.Mode()
	assert.Equal(t, spidev.Mode0, mode)
	lsb, ok := got.LSBFirst()
	assert.True(t, ok)
	assert.False(t, lsb)
}

func TestConfigureFlagsAndLSBFirst(t *testing.T) {
	dev, _ := spidevtest.Open(t)

	unknown := spidev.Mode(1 << 21)
	opts := spidev.NewOptions().
		WithMode(spidev.Mode3).
		WithFlags(spidev.CSHigh | unknown).
		WithLSBFirst(true)
	require.NoError(t, dev.Configure(opts))

	got, err := dev.Query()
	require.NoError(t, err)
	mode, _ := got.Mode()
	assert.Equal(t, spidev.Mode3|spidev.CSHigh|spidev.LSBFirst|unknown, mode)
	lsb, _ := got.LSBFirst()
	assert.True(t, lsb)
}

func TestConfigureWholeModeWord(t *testing.T) {
	dev, _ := spidevtest.Open(t)

	want := spidev.Mode0 | spidev.NoCS | spidev.Mode(1<<21)
	require.NoError(t, dev.Configure(spidev.NewOptions().WithMode(want)))

	got, err := dev.Query()
	require.NoError(t, err)
	mode, _ := got.Mode()
	assert.Equal(t, want, mode)
}

func TestConfigureSkipsUnsetFields(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	require.NoError(t, dev.Configure(spidev.NewOptions()))
	assert.Equal(t, 0, drv.Calls())

	require.NoError(t, dev.Configure(spidev.NewOptions().WithMaxSpeedHz(1000000)))
	assert.Equal(t, 1, drv.Calls())

	got, err := dev.Query()
	require.NoError(t, err)
	bpw, _ := got.BitsPerWord()
	assert.Equal(t, uint8(8), bpw, "unset word size keeps the driver default")
}

func TestConfigureStopsAtFirstFailure(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	drv.MaxSupportedHz = 10000000

	opts := spidev.NewOptions().
		WithMode(spidev.Mode2).
		WithMaxSpeedHz(50000000).
		WithBitsPerWord(16)
	err := dev.Configure(opts)
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Contains(t, err.Error(), "max speed")
	assert.Equal(t, 2, drv.Calls(), "bits per word must not be attempted")

	got, err := dev.Query()
	require.NoError(t, err)
	mode, _ := got.Mode()
	assert.Equal(t, spidev.Mode2, mode, "fields before the failure stay applied")
	bpw, _ := got.BitsPerWord()
	assert.Equal(t, uint8(8), bpw)
}

func TestConfigureRejectsWordSize(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	err := dev.Configure(spidev.NewOptions().WithMode(spidev.Mode1).WithBitsPerWord(33))
	assert.ErrorIs(t, err, spidev.ErrBitsPerWord)
	assert.Equal(t, 0, drv.Calls())
}

func TestQueryFailure(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	drv.Fail(spidev.IocRdBitsPerWord, unix.EIO)
	_, err := dev.Query()
	assert.ErrorIs(t, err, unix.EIO)
	assert.Equal(t, 3, drv.Calls())
}

func TestTransferEcho(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	require.NoError(t, dev.Configure(spidev.NewOptions().
		WithBitsPerWord(8).
		WithMaxSpeedHz(20000).
		WithMode(spidev.Mode0)))

	tx := []byte{0x01, 0x02, 0x03}
	w := spidev.Write(tx)
	require.NoError(t, dev.Transfer(&w))

	rx := make([]byte, len(tx))
	rw := spidev.ReadWrite(tx, rx)
	require.NoError(t, dev.Transfer(&rw))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, rx)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, tx, "tx must not be modified")

	msgs := drv.Messages()
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Records, 1)
	assert.Zero(t, msgs[0].Records[0].RxBuf)
	assert.Equal(t, tx, msgs[0].Tx[0])
}

func TestTransferMismatchMakesNoSyscall(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	rw := spidev.ReadWrite([]byte{1, 2, 3}, make([]byte, 2))
	err := dev.Transfer(&rw)
	assert.ErrorIs(t, err, spidev.ErrLengthMismatch)

	err = dev.TransferMultiple([]spidev.Transfer{
		spidev.Write([]byte{1}),
		spidev.ReadWrite([]byte{1}, make([]byte, 4)),
	})
	assert.ErrorIs(t, err, spidev.ErrLengthMismatch)

	empty := spidev.Transfer{}
	assert.ErrorIs(t, dev.Transfer(&empty), spidev.ErrNoBuffer)
	assert.Equal(t, 0, drv.Calls())
}

func TestTransferMultipleSingleIoctl(t *testing.T) {
	for _, n := range []int{1, 2, 8, 9, 64} {
		dev, drv := spidevtest.Open(t)
		ts := make([]spidev.Transfer, n)
		for i := range ts {
			ts[i] = spidev.Write([]byte{byte(i)})
		}
		require.NoError(t, dev.TransferMultiple(ts))
		assert.Equal(t, 1, drv.Calls(), "n=%d", n)
		msg, ok := drv.LastMessage()
		require.True(t, ok)
		assert.Len(t, msg.Records, n)
	}
}

func TestTransferMultipleHalfDuplexSegments(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	drv.Respond = func(rec spidev.IocTransfer, tx, rx []byte) {
		for i := range rx {
			rx[i] = 0x55 + byte(i)
		}
	}

	buf := make([]byte, 2)
	err := dev.TransferMultiple([]spidev.Transfer{
		spidev.Write([]byte{0xAA}),
		spidev.Read(buf),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, drv.Calls())
	assert.Equal(t, []byte{0x55, 0x56}, buf)

	msg, _ := drv.LastMessage()
	require.Len(t, msg.Records, 2)
	assert.NotZero(t, msg.Records[0].TxBuf)
	assert.Zero(t, msg.Records[0].RxBuf)
	assert.Equal(t, uint32(1), msg.Records[0].Len)
	assert.Zero(t, msg.Records[1].TxBuf)
	assert.NotZero(t, msg.Records[1].RxBuf)
	assert.Equal(t, uint32(2), msg.Records[1].Len)
}

func TestTransferOverrides(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	rx := make([]byte, 2)
	ts := []spidev.Transfer{
		{Tx: []byte{0x9F}, CSChange: true, DelayUsecs: 5},
		{Tx: []byte{0, 0}, Rx: rx, SpeedHz: 1000000, BitsPerWord: 16, TxNBits: 2, RxNBits: 4, WordDelayUsecs: 1},
	}
	require.NoError(t, dev.TransferMultiple(ts))

	msg, _ := drv.LastMessage()
	assert.Equal(t, uint8(1), msg.Records[0].CSChange)
	assert.Equal(t, uint16(5), msg.Records[0].DelayUsecs)
	assert.Zero(t, msg.Records[0].SpeedHz)
	assert.Equal(t, uint8(0), msg.Records[1].CSChange)
	assert.Equal(t, uint32(1000000), msg.Records[1].SpeedHz)
	assert.Equal(t, uint8(16), msg.Records[1].BitsPerWord)
	assert.Equal(t, uint8(2), msg.Records[1].TxNBits)
	assert.Equal(t, uint8(4), msg.Records[1].RxNBits)
	assert.Equal(t, uint8(1), msg.Records[1].WordDelayUsecs)
}

func TestTransferSeq(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	rx := [][]byte{make([]byte, 1), make([]byte, 2), make([]byte, 3)}
	tx := [][]byte{{1}, {2, 3}, {4, 5, 6}}
	seq := func(yield func(spidev.Transfer) bool) {
		for i := range tx {
			if !yield(spidev.ReadWrite(tx[i], rx[i])) {
				return
			}
		}
	}
	require.NoError(t, dev.TransferSeq(seq))
	assert.Equal(t, 1, drv.Calls())
	assert.Equal(t, tx, rx)

	require.NoError(t, dev.TransferSeq(slices.Values([]spidev.Transfer{})))
	assert.Equal(t, 1, drv.Calls(), "an empty batch issues no ioctl")
}

func TestTransferTooMany(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	ts := make([]spidev.Transfer, spidev.MaxTransfers+1)
	for i := range ts {
		ts[i] = spidev.Write([]byte{1})
	}
	assert.ErrorIs(t, dev.TransferMultiple(ts), spidev.ErrTooManyTransfers)
	assert.Equal(t, 0, drv.Calls())

	// Oversized batches are refused before any element is looked at.
	err := dev.TransferMultiple(make([]spidev.Transfer, 4<<20))
	assert.ErrorIs(t, err, spidev.ErrTooManyTransfers)
	assert.NotErrorIs(t, err, spidev.ErrNoBuffer)
	assert.Equal(t, 0, drv.Calls())
}

func TestTransferIoctlFailure(t *testing.T) {
	dev, drv := spidevtest.Open(t)
	req, err := spidev.IocMessage(1)
	require.NoError(t, err)
	drv.Fail(req, unix.EMSGSIZE)

	w := spidev.Write([]byte{1})
	err = dev.Transfer(&w)
	assert.ErrorIs(t, err, unix.EMSGSIZE)
	assert.Contains(t, err.Error(), dev.Path())
	assert.Empty(t, drv.Messages())
}

func TestHalfDuplexReadWrite(t *testing.T) {
	dev, drv := spidevtest.Open(t)

	n, err := dev.Write([]byte{0xAA, 0x00, 0x01, 0x02, 0x04})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = dev.File().Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err = dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0xAA, 0x00, 0x01, 0x02, 0x04}, buf[:n])
	assert.Equal(t, 0, drv.Calls(), "read and write do not use ioctl")
	assert.NotZero(t, dev.Fd())
}
