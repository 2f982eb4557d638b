package spidev

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Batches up to this size are encoded without growing the record slice.
const inlineRecords = 8

// batch turns Transfers into kernel records. The records point straight at
// the caller's buffers; every buffer is pinned until release is called, so
// the addresses stay valid for the duration of the ioctl.
type batch struct {
	inline [inlineRecords]IocTransfer
	recs   []IocTransfer
	pinner runtime.Pinner
}

func newBatch(sizeHint int) *batch {
	b := &batch{}
	sizeHint = min(sizeHint, MaxTransfers)
	if sizeHint > inlineRecords {
		b.recs = make([]IocTransfer, 0, sizeHint)
	} else {
		b.recs = b.inline[:0]
	}
	return b
}

func (b *batch) add(t *Transfer) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("spidev: transfer %d: %w", len(b.recs), err)
	}
	if len(b.recs) == MaxTransfers {
		return fmt.Errorf("spidev: transfer %d: %w", len(b.recs), ErrTooManyTransfers)
	}
	b.recs = append(b.recs, b.encode(t))
	return nil
}

func (b *batch) encode(t *Transfer) IocTransfer {
	rec := IocTransfer{
		Len:            uint32(t.Len()),
		SpeedHz:        t.SpeedHz,
		DelayUsecs:     t.DelayUsecs,
		BitsPerWord:    t.BitsPerWord,
		TxNBits:        t.TxNBits,
		RxNBits:        t.RxNBits,
		WordDelayUsecs: t.WordDelayUsecs,
	}
	if t.CSChange {
		rec.CSChange = 1
	}
	if len(t.Tx) > 0 {
		rec.TxBuf = b.address(&t.Tx[0])
	}
	if len(t.Rx) > 0 {
		rec.RxBuf = b.address(&t.Rx[0])
	}
	return rec
}

func (b *batch) address(p *byte) uint64 {
	b.pinner.Pin(p)
	return uint64(uintptr(unsafe.Pointer(p)))
}

// records returns the encoded records, pinned, or nil for an empty batch.
func (b *batch) records() *IocTransfer {
	if len(b.recs) == 0 {
		return nil
	}
	b.pinner.Pin(&b.recs[0])
	return &b.recs[0]
}

func (b *batch) release() {
	b.pinner.Unpin()
}
