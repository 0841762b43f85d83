package nrf70

import (
	"time"

	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// poll_reg polls a register until value&mask == want, with a fixed retry
// budget and a fixed delay between reads. Exhausting the budget is a
// failure; a read error on the final attempt is surfaced as-is.
func (d *Device) poll_reg(addr uint32, mask, want uint32, delay time.Duration) error {
	var val uint32
	var err error
	for i := 0; i < regPollTries; i++ {
		val, err = d.reg_read(addr)
		if err == nil && val&mask == want {
			return nil
		}
		time.Sleep(delay)
	}
	d.logerr("poll_reg",
		slog.String("addr", hex32(addr)),
		slog.String("val", hex32(val)),
		slog.String("mask", hex32(mask)),
		slog.String("want", hex32(want)),
	)
	if err != nil {
		return err
	}
	return errRegPollTimeout
}

// ProcReset pulse-resets an RPU core and confirms it restarted and parked
// at its boot vector wait instruction. The processor context tracks the
// target core while the protocol runs and always falls back to the
// primary core afterwards, success or failure.
// reference: nrf_wifi_hal_proc_reset
func (d *Device) ProcReset(proc rpu.Processor) error {
	if !proc.IsValid() {
		return errInvalidProc
	}
	d.curProc = proc
	defer func() { d.curProc = rpu.LMAC }()

	d.debug("ProcReset", slog.String("proc", proc.String()))
	err := d.reg_write(proc.ControlReg(), 0x1)
	if err != nil {
		return err
	}
	// The reset pulse has completed once the control bit self-clears.
	err = d.poll_reg(proc.ControlReg(), 0x1, 0x0, regPollInterval)
	if err != nil {
		d.logerr("ProcReset:pulse", slog.String("proc", proc.String()), slog.String("err", err.Error()))
		return err
	}
	// The core restarts from its boot vector and parks at the wait
	// instruction.
	err = d.poll_reg(proc.WaitInstrReg(), ^uint32(0), rpu.MIPS_WAIT_INSTR, regPollInterval)
	if err != nil {
		d.logerr("ProcReset:park", slog.String("proc", proc.String()), slog.String("err", err.Error()))
		return err
	}
	return nil
}

// FWBootCheck polls a core's boot signature word for the firmware boot
// magic. Success means the core's firmware finished booting within the
// boot budget. Same processor context discipline as ProcReset.
// reference: nrf_wifi_hal_fw_chk_boot
func (d *Device) FWBootCheck(proc rpu.Processor) error {
	if !proc.IsValid() {
		return errInvalidProc
	}
	d.curProc = proc
	defer func() { d.curProc = rpu.LMAC }()

	addr := proc.BootSigAddr()
	for i := 0; i < bootPollTries; i++ {
		val, err := d.mem_read32(addr)
		if err == nil && val == rpu.BOOT_SIGNATURE {
			ver, verr := d.mem_read32(proc.FWVerAddr())
			if verr == nil {
				d.debug("FWBootCheck",
					slog.String("proc", proc.String()),
					slog.String("version", hex32(ver)),
				)
			}
			return nil
		}
		time.Sleep(bootPollInterval)
	}
	d.logerr("FWBootCheck", slog.String("proc", proc.String()), slog.String("addr", hex32(addr)))
	return errBootSigTimeout
}

// LoadFWPatch copies a core's firmware patch images into its retention
// RAM: the boot image at the BIMG address, the main image at the BIN
// address. Call between New and Init, before the core is reset; at that
// stage the RPU has no power management yet so the writes do not trigger
// wakes.
// reference: nrf_wifi_hal_fw_patch_load
func (d *Device) LoadFWPatch(proc rpu.Processor, bimg, bin []byte) error {
	if !proc.IsValid() {
		return errInvalidProc
	}
	if len(bimg) == 0 || len(bin) == 0 {
		return errFirmwarePatchEmpty
	}
	d.curProc = proc
	defer func() { d.curProc = rpu.LMAC }()

	bimgAddr, binAddr := proc.PatchAddrs()
	err := d.mem_write(bimgAddr, bimg)
	if err != nil {
		return err
	}
	err = d.mem_write(binAddr, bin)
	if err != nil {
		return err
	}
	d.info("LoadFWPatch",
		slog.String("proc", proc.String()),
		slog.Int("bimg", len(bimg)),
		slog.Int("bin", len(bin)),
	)
	return nil
}

// SetProcessorContext selects the core whose private memory regions
// subsequent MemRead/MemWrite calls may touch. Bring-up only: the reset,
// boot-check and patch-load protocols manage the context themselves and
// leave it on the primary core.
// reference: nrf_wifi_hal_proc_ctx_set
func (d *Device) SetProcessorContext(proc rpu.Processor) error {
	if !proc.IsValid() {
		return errInvalidProc
	}
	d.curProc = proc
	return nil
}
