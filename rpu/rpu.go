// Package rpu describes the nRF70 Radio Processing Unit as seen from the
// host driver: the RPU address map, the host-visible control registers and
// the layout of the structures the firmware publishes over shared memory.
//
// Addresses in this package are RPU addresses, i.e. addresses in the RPU
// cores' own address space. The host bus does not decode these directly;
// RegOffset and MemOffset translate them to the linear offsets understood
// by the bus layer.
package rpu

import "errors"

// Processor is one of the RPU MCU cores. Each core runs its own firmware
// image and is reset and boot-checked separately.
type Processor uint8

const (
	// LMAC is the lower MAC core. It is the primary core: the reset and
	// boot protocols always leave the driver's processor context pointing
	// back at it.
	LMAC Processor = iota
	// UMAC is the upper MAC core.
	UMAC
	numProcessors
)

// IsValid returns true if p names an actual RPU core.
func (p Processor) IsValid() bool { return p < numProcessors }

func (p Processor) String() (s string) {
	switch p {
	case LMAC:
		s = "lmac"
	case UMAC:
		s = "umac"
	default:
		s = "unknown"
	}
	return s
}

// RPU address space regions accessible to the host. SBUS and PBUS carry
// registers; GRAM and PKTRAM are RAM shared by both cores; the ROM,
// retention and scratch regions belong to one core each.
const (
	ADDR_SBUS_START = 0xA4000000
	ADDR_SBUS_END   = 0xA4007FFF

	ADDR_PBUS_START = 0xA5000000
	ADDR_PBUS_END   = 0xA503FFFF

	ADDR_PKTRAM_START = 0xB0000000
	ADDR_PKTRAM_END   = 0xB0030FFF

	ADDR_GRAM_START = 0xB7000000
	ADDR_GRAM_END   = 0xB70101FF

	ADDR_LMAC_ROM_START = 0x80000000
	ADDR_LMAC_ROM_END   = 0x80033FFF

	ADDR_LMAC_RET_START = 0x80040000
	ADDR_LMAC_RET_END   = 0x8004FFFF

	ADDR_LMAC_SCRATCH_START = 0x80080000
	ADDR_LMAC_SCRATCH_END   = 0x8008FFFF

	ADDR_UMAC_ROM_START = 0x80400000
	ADDR_UMAC_ROM_END   = 0x80433FFF

	ADDR_UMAC_RET_START = 0x80440000
	ADDR_UMAC_RET_END   = 0x8044FFFF

	ADDR_UMAC_SCRATCH_START = 0x80480000
	ADDR_UMAC_SCRATCH_END   = 0x8048FFFF
)

// Linear bus offsets of the region starts. The bus layer addresses the
// chip as one flat window laid out below.
const (
	BUS_SYSBUS       = 0x000000
	BUS_PBUS         = 0x024000
	BUS_GRAM         = 0x080000
	BUS_PKTRAM       = 0x0C0000
	BUS_LMAC_ROM     = 0x100000
	BUS_LMAC_RET     = 0x140000
	BUS_LMAC_SCRATCH = 0x180000
	BUS_UMAC_ROM     = 0x200000
	BUS_UMAC_RET     = 0x240000
	BUS_UMAC_SCRATCH = 0x280000
)

// System bus registers.
const (
	// Core reset control, one register per core. Writing 1 pulses a soft
	// reset of the MIPS core; the bit self-clears once the pulse is done.
	REG_MIPS_MCU_CONTROL  = 0xA4000000
	REG_MIPS_MCU2_CONTROL = 0xA4000100

	// Mirrors the instruction the core is executing at its reset vector.
	// Reads back MIPS_WAIT_INSTR once the core has parked after a reset.
	REG_MIPS_MCU_WAIT_INSTR  = 0xA4000018
	REG_MIPS_MCU2_WAIT_INSTR = 0xA4000118

	// Interrupt status as seen by the host, see the BIT_MCU_* bits.
	REG_MCU_UCCP_INT_STATUS = 0xA4000004

	// MCU watchdog timer control. Writing 0 acknowledges a watchdog
	// interrupt and restarts the timer.
	REG_MIPS_MCU_TIMER_CONTROL = 0xA4000048

	// Interrupt routing from the RPU to the host.
	REG_INT_FROM_RPU_CTRL = 0xA4000400
	// Doorbell: the host writes the command post counter here, OR'd with
	// CMD_POST_PATTERN, to tell the firmware a command has been posted.
	REG_INT_TO_MCU_CTRL = 0xA4000480
	// Host-side acknowledge of an RPU interrupt.
	REG_INT_FROM_MCU_ACK = 0xA4000488
	// Host-side unmask of RPU interrupts.
	REG_INT_FROM_MCU_CTRL = 0xA4000494
)

// Register bit positions.
const (
	// REG_MCU_UCCP_INT_STATUS bits.
	BIT_MCU_EVENT_PENDING = 0
	BIT_MCU_WDOG_PENDING  = 1

	BIT_INT_FROM_RPU_CTRL = 17
	BIT_INT_FROM_MCU_ACK  = 31
	BIT_INT_FROM_MCU_CTRL = 30

	// Power status bits reported by the bus layer. PS_CTRL is the wakeup
	// request bit driven by the host; PS_STATE and READY_STATE are driven
	// by the RPU and must both be set before it accepts traffic.
	BIT_PS_CTRL     = 0
	BIT_PS_STATE    = 1
	BIT_READY_STATE = 2
)

// Shared memory addresses published or consumed by the firmware.
const (
	// UMAC boot signature and firmware version. The boot signature word
	// doubles as the first word of the UMACInfo block, see UMAC_INFO_SIZE.
	MEM_UMAC_BOOT_SIG = 0xB0000000
	MEM_UMAC_VER      = 0xB0000004

	// Hardware pointer queue geometry, written by the firmware during its
	// boot. HPQM_INFO_SIZE bytes, decode with DecodeHPQMInfo.
	MEM_HPQ_INFO = 0xB0000024

	// Base of the TX command slot array, fixed by the memory map.
	MEM_TX_CMD_BASE = 0xB00000B8

	// OTP words mirrored into PKTRAM by the bootloader.
	MEM_OTP_PACKAGE_TYPE    = 0xB0000FB4
	MEM_OTP_FT_PROG_VERSION = 0xB0004FD0
	MEM_OTP_INFO_FLAGS      = 0xB0004FDC

	// LMAC boot signature, firmware version and the RX command slot base
	// pointer, all in GRAM.
	MEM_LMAC_BOOT_SIG = 0xB7000D50
	MEM_LMAC_VER      = 0xB7000D54
	MEM_RX_CMD_BASE   = 0xB7000D58

	// Firmware patch load addresses, one pair per core, in the cores'
	// retention RAM.
	MEM_LMAC_PATCH_BIMG = 0x80042000
	MEM_LMAC_PATCH_BIN  = 0x80044880
	MEM_UMAC_PATCH_BIMG = 0x80449400
	MEM_UMAC_PATCH_BIN  = 0x8044ED00
)

// Magic values.
const (
	// Written by each core to its MEM_*_BOOT_SIG word once its firmware
	// has finished booting.
	BOOT_SIGNATURE = 0x5A5A5A5A

	// MIPS wait opcode. A core parked at its reset vector reports this
	// through its REG_MIPS_MCU*_WAIT_INSTR register.
	MIPS_WAIT_INSTR = 0x42000020

	// High bits OR'd into every doorbell write so the firmware can tell a
	// command post apart from a stray register write.
	CMD_POST_PATTERN = 0x7fff0000
)

// Data path sizing.
const (
	// RX buffer rings served by the firmware.
	MAX_NUM_OF_RX_QUEUES = 3

	// Fixed per-descriptor slot sizes of the RX and TX command arrays.
	DATA_CMD_SIZE_MAX_RX = 8
	DATA_CMD_SIZE_MAX_TX = 148

	// Typical event size. Event reads fetch this much in one bus
	// transaction and only issue a second read for larger payloads.
	EVENT_COMMON_SIZE_MAX = 128
)

var (
	// ErrAddrOutOfRange is returned when an RPU address falls in no region
	// accessible to the host.
	ErrAddrOutOfRange = errors.New("rpu: address out of range")
	// ErrProcMismatch is returned when a core-private address is accessed
	// under the wrong processor context.
	ErrProcMismatch = errors.New("rpu: address not owned by processor")
)

// RegOffset translates the RPU address of a control register to its bus
// offset. Only the system and peripheral buses carry registers.
func RegOffset(addr uint32) (offset uint32, err error) {
	switch {
	case addr >= ADDR_SBUS_START && addr <= ADDR_SBUS_END:
		return addr - ADDR_SBUS_START + BUS_SYSBUS, nil
	case addr >= ADDR_PBUS_START && addr <= ADDR_PBUS_END:
		return addr - ADDR_PBUS_START + BUS_PBUS, nil
	}
	return 0, ErrAddrOutOfRange
}

// MemOffset translates an RPU memory address to its bus offset. GRAM and
// PKTRAM translate under any processor context; a core's ROM, retention
// and scratch regions translate only when proc matches that core.
func MemOffset(addr uint32, proc Processor) (offset uint32, err error) {
	for _, r := range memRegions {
		if addr < r.start || addr > r.end {
			continue
		}
		if r.proc != procAny && r.proc != proc {
			return 0, ErrProcMismatch
		}
		return addr - r.start + r.bus, nil
	}
	return 0, ErrAddrOutOfRange
}

// procAny marks regions shared by both cores.
const procAny = Processor(0xff)

type memRegion struct {
	start, end uint32 // RPU addresses, both inclusive.
	bus        uint32 // bus offset of start.
	proc       Processor
}

var memRegions = [...]memRegion{
	{ADDR_PKTRAM_START, ADDR_PKTRAM_END, BUS_PKTRAM, procAny},
	{ADDR_GRAM_START, ADDR_GRAM_END, BUS_GRAM, procAny},
	{ADDR_LMAC_ROM_START, ADDR_LMAC_ROM_END, BUS_LMAC_ROM, LMAC},
	{ADDR_LMAC_RET_START, ADDR_LMAC_RET_END, BUS_LMAC_RET, LMAC},
	{ADDR_LMAC_SCRATCH_START, ADDR_LMAC_SCRATCH_END, BUS_LMAC_SCRATCH, LMAC},
	{ADDR_UMAC_ROM_START, ADDR_UMAC_ROM_END, BUS_UMAC_ROM, UMAC},
	{ADDR_UMAC_RET_START, ADDR_UMAC_RET_END, BUS_UMAC_RET, UMAC},
	{ADDR_UMAC_SCRATCH_START, ADDR_UMAC_SCRATCH_END, BUS_UMAC_SCRATCH, UMAC},
}

// ControlReg returns the reset control register of a core.
func (p Processor) ControlReg() uint32 {
	if p == UMAC {
		return REG_MIPS_MCU2_CONTROL
	}
	return REG_MIPS_MCU_CONTROL
}

// WaitInstrReg returns the parked-instruction mirror register of a core.
func (p Processor) WaitInstrReg() uint32 {
	if p == UMAC {
		return REG_MIPS_MCU2_WAIT_INSTR
	}
	return REG_MIPS_MCU_WAIT_INSTR
}

// BootSigAddr returns the shared memory address of the core's boot
// signature word.
func (p Processor) BootSigAddr() uint32 {
	if p == UMAC {
		return MEM_UMAC_BOOT_SIG
	}
	return MEM_LMAC_BOOT_SIG
}

// FWVerAddr returns the shared memory address of the core's firmware
// version word.
func (p Processor) FWVerAddr() uint32 {
	if p == UMAC {
		return MEM_UMAC_VER
	}
	return MEM_LMAC_VER
}

// PatchAddrs returns the retention RAM addresses a core's firmware patch
// images are loaded at, boot image first.
func (p Processor) PatchAddrs() (bimg, bin uint32) {
	if p == UMAC {
		return MEM_UMAC_PATCH_BIMG, MEM_UMAC_PATCH_BIN
	}
	return MEM_LMAC_PATCH_BIMG, MEM_LMAC_PATCH_BIN
}
