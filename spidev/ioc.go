package spidev

import (
	"unsafe"

	"lautenbacher.net/gospidev/ioctl"
)

// From linux/spi/spidev.h.
const spiIOCMagic = 'k'

// IocTransfer mirrors struct spi_ioc_transfer. Buffers are referenced by
// address; a zero address means the direction is not used. Pad must be zero.
type IocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Len            uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// IocTransferSize is the size of one kernel transfer record.
const IocTransferSize = unsafe.Sizeof(IocTransfer{})

// MaxTransfers is the largest batch whose total record size still fits the
// 14-bit size field of a request number.
const MaxTransfers = ioctl.MaxSize / int(IocTransferSize)

var (
	IocRdMode        = ioctl.IOR(spiIOCMagic, 1, 1)
	IocWrMode        = ioctl.IOW(spiIOCMagic, 1, 1)
	IocRdLSBFirst    = ioctl.IOR(spiIOCMagic, 2, 1)
	IocWrLSBFirst    = ioctl.IOW(spiIOCMagic, 2, 1)
	IocRdBitsPerWord = ioctl.IOR(spiIOCMagic, 3, 1)
	IocWrBitsPerWord = ioctl.IOW(spiIOCMagic, 3, 1)
	IocRdMaxSpeedHz  = ioctl.IOR(spiIOCMagic, 4, 4)
	IocWrMaxSpeedHz  = ioctl.IOW(spiIOCMagic, 4, 4)
	IocRdMode32      = ioctl.IOR(spiIOCMagic, 5, 4)
	IocWrMode32      = ioctl.IOW(spiIOCMagic, 5, 4)
)

// IocMessage returns SPI_IOC_MESSAGE(n).
func IocMessage(n int) (uintptr, error) {
	if n < 0 || n > MaxTransfers {
		return 0, ErrTooManyTransfers
	}
	return ioctl.IOW(spiIOCMagic, 0, uintptr(n)*IocTransferSize), nil
}

// MessageCount returns the number of records carried by a SPI_IOC_MESSAGE
// request, and false when req is some other request.
func MessageCount(req uintptr) (int, bool) {
	if ioctl.Type(req) != spiIOCMagic || ioctl.Nr(req) != 0 || ioctl.Dir(req) != ioctl.DirWrite {
		return 0, false
	}
	size := ioctl.Size(req)
	if size%IocTransferSize != 0 {
		return 0, false
	}
	return int(size / IocTransferSize), true
}
