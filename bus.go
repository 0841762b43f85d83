package nrf70

import (
	"encoding/binary"

	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// _busOrder is the byte order of everything the RPU shares over the bus.
var _busOrder binary.ByteOrder = binary.LittleEndian

// Bus is the transport between the host and the RPU: QSPI or SPI on real
// hardware, an in-memory fake in tests. Offsets are the linear window
// described by the rpu.BUS_* constants, produced by rpu.RegOffset and
// rpu.MemOffset; implementations do not see RPU addresses.
//
// The device serializes wakeup handling above this interface, so
// implementations only need to be safe for one call at a time.
type Bus interface {
	// Init brings up the transport and registers the device's interrupt
	// callback. The bus invokes irq once per RPU interrupt from its own
	// context; the callback does bounded work and does not block.
	Init(irq func() error) error
	// Deinit releases the transport. No irq callback fires after it
	// returns.
	Deinit() error
	ReadReg(offset uint32) (uint32, error)
	WriteReg(offset uint32, val uint32) error
	ReadMem(offset uint32, dst []byte) error
	WriteMem(offset uint32, src []byte) error
	// WakeupNow drives the RPU wakeup request.
	WakeupNow(assert bool) error
	// PSStatus reads the RPU power status word, see rpu.BIT_PS_STATE and
	// rpu.BIT_READY_STATE.
	PSStatus() (uint32, error)
}

// reg_read reads an RPU control register, waking the RPU first.
// reference: hal_rpu_reg_read
func (d *Device) reg_read(addr uint32) (val uint32, err error) {
	offset, err := rpu.RegOffset(addr)
	if err != nil {
		d.logerr("reg_read", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
		return 0, err
	}
	d.psMu.Lock()
	defer d.psMu.Unlock()
	err = d.wake()
	if err != nil {
		return 0, err
	}
	val, err = d.bus.ReadReg(offset)
	if err != nil {
		d.logerr("reg_read", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
		return 0, err
	}
	return val, nil
}

// reg_write writes an RPU control register, waking the RPU first.
// reference: hal_rpu_reg_write
func (d *Device) reg_write(addr uint32, val uint32) (err error) {
	offset, err := rpu.RegOffset(addr)
	if err != nil {
		d.logerr("reg_write", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
		return err
	}
	d.psMu.Lock()
	defer d.psMu.Unlock()
	err = d.wake()
	if err != nil {
		return err
	}
	err = d.bus.WriteReg(offset, val)
	if err != nil {
		d.logerr("reg_write",
			slog.String("addr", hex32(addr)),
			slog.String("val", hex32(val)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// mem_read copies len(dst) bytes of RPU memory at addr into dst.
// reference: hal_rpu_mem_read
func (d *Device) mem_read(addr uint32, dst []byte) (err error) {
	if len(dst) == 0 {
		return nil
	}
	offset, err := d.memoffset(addr, uint32(len(dst)))
	if err != nil {
		d.logerr("mem_read", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
		return err
	}
	d.psMu.Lock()
	defer d.psMu.Unlock()
	err = d.wake()
	if err != nil {
		return err
	}
	err = d.bus.ReadMem(offset, dst)
	if err != nil {
		d.logerr("mem_read",
			slog.String("addr", hex32(addr)),
			slog.Int("len", len(dst)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// mem_write copies src into RPU memory at addr.
// reference: hal_rpu_mem_write
func (d *Device) mem_write(addr uint32, src []byte) (err error) {
	if len(src) == 0 {
		return nil
	}
	offset, err := d.memoffset(addr, uint32(len(src)))
	if err != nil {
		d.logerr("mem_write", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
		return err
	}
	d.psMu.Lock()
	defer d.psMu.Unlock()
	err = d.wake()
	if err != nil {
		return err
	}
	err = d.bus.WriteMem(offset, src)
	if err != nil {
		d.logerr("mem_write",
			slog.String("addr", hex32(addr)),
			slog.Int("len", len(src)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// memoffset translates addr for a size-byte access, checking the whole
// range lies in one region.
func (d *Device) memoffset(addr, size uint32) (offset uint32, err error) {
	offset, err = rpu.MemOffset(addr, d.curProc)
	if err != nil {
		return 0, err
	}
	end, err := rpu.MemOffset(addr+size-1, d.curProc)
	if err != nil || end-offset != size-1 {
		return 0, rpu.ErrAddrOutOfRange
	}
	return offset, nil
}

// mem_read32 reads one little endian word of RPU memory.
func (d *Device) mem_read32(addr uint32) (uint32, error) {
	var buf [4]byte
	err := d.mem_read(addr, buf[:])
	if err != nil {
		return 0, err
	}
	return _busOrder.Uint32(buf[:]), nil
}

// RegRead reads the 32-bit RPU control register at an RPU address,
// handling address translation and RPU wakeup.
func (d *Device) RegRead(addr uint32) (uint32, error) { return d.reg_read(addr) }

// RegWrite writes the 32-bit RPU control register at an RPU address,
// handling address translation and RPU wakeup.
func (d *Device) RegWrite(addr uint32, val uint32) error { return d.reg_write(addr, val) }

// MemRead copies len(dst) bytes of RPU memory at an RPU address into dst,
// handling address translation and RPU wakeup. Core-private regions
// require the matching processor context, see SetProcessorContext.
func (d *Device) MemRead(addr uint32, dst []byte) error { return d.mem_read(addr, dst) }

// MemWrite copies src into RPU memory at an RPU address, handling address
// translation and RPU wakeup. Core-private regions require the matching
// processor context, see SetProcessorContext.
func (d *Device) MemWrite(addr uint32, src []byte) error { return d.mem_write(addr, src) }
