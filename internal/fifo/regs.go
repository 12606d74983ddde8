// Package fifo describes the memory-mapped AXI4-Stream FIFO register
// contract and provides the Linux MMIO backend and a behavioral simulator.
package fifo

import "fmt"

// Offset is a register byte offset from the FIFO base address
type Offset uint32

// Register map
const (
	IntStatus   Offset = 0x00 // interrupt status, write 1 to clear
	IntEnable   Offset = 0x04 // interrupt enable mask
	TxReset     Offset = 0x08 // write ResetKey to reset the transmit side
	TxVacancy   Offset = 0x0C // free transmit words
	TxData      Offset = 0x10 // one transmit word per write
	TxLength    Offset = 0x14 // commit strobe
	RxReset     Offset = 0x18 // write ResetKey to reset the receive side
	RxOccupancy Offset = 0x1C // receive words available
	RxData      Offset = 0x20 // one receive word per read
	RxLength    Offset = 0x24
	LinkReset   Offset = 0x28 // AXI4-Stream link reset
	TxDest      Offset = 0x2C
	RxDest      Offset = 0x30

	// WindowSize is the extent of the register window in bytes
	WindowSize = 0x34
)

// DefaultBaseAddr is the physical base of the FIFO on the reference board
const DefaultBaseAddr = 0x43C00000

// ResetKey is the value that triggers a FIFO reset
const ResetKey = 0xA5

// Interrupt status and enable bits
const (
	IntRPURE uint32 = 1 << 31 // receive packet underrun read error
	IntRPORE uint32 = 1 << 30 // receive packet overrun read error
	IntRPUE  uint32 = 1 << 29 // receive packet underrun error
	IntTPOE  uint32 = 1 << 28 // transmit packet overrun error
	IntTC    uint32 = 1 << 27 // transmit complete
	IntRC    uint32 = 1 << 26 // receive complete
	IntTSE   uint32 = 1 << 25 // transmit size error
	IntTRC   uint32 = 1 << 24 // transmit reset complete
	IntRRC   uint32 = 1 << 23 // receive reset complete
	IntTFPF  uint32 = 1 << 22 // transmit FIFO programmable full
	IntTFPE  uint32 = 1 << 21 // transmit FIFO programmable empty
	IntRFPF  uint32 = 1 << 20 // receive FIFO programmable full
	IntRFPE  uint32 = 1 << 19 // receive FIFO programmable empty

	// IntAll covers every defined status bit
	IntAll uint32 = IntRPURE | IntRPORE | IntRPUE | IntTPOE | IntTC | IntRC | IntTSE |
		IntTRC | IntRRC | IntTFPF | IntTFPE | IntRFPF | IntRFPE
)

// Registers is 32-bit access to the FIFO register window. Implementations
// must tolerate calls from both the task and the interrupt goroutine.
type Registers interface {
	ReadReg(off Offset) uint32
	WriteReg(off Offset, v uint32)
}

func (o Offset) String() string {
	switch o {
	case IntStatus:
		return "INT_STATUS"
	case IntEnable:
		return "INT_ENABLE"
	case TxReset:
		return "TX_RESET"
	case TxVacancy:
		return "TX_VAC"
	case TxData:
		return "TX_DATA"
	case TxLength:
		return "TX_LENGTH"
	case RxReset:
		return "RX_RESET"
	case RxOccupancy:
		return "RX_OCC"
	case RxData:
		return "RX_DATA"
	case RxLength:
		return "RX_LENGTH"
	case LinkReset:
		return "LLR"
	case TxDest:
		return "TX_DEST"
	case RxDest:
		return "RX_DEST"
	default:
		return fmt.Sprintf("reg(0x%02X)", uint32(o))
	}
}
