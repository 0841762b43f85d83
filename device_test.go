package nrf70

import (
	"testing"

	"github.com/soypat/nrf70/rpu"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{OnEvent: func([]byte) error { return nil }})
	if err != errNilBus {
		t.Error("nil bus accepted:", err)
	}
	_, err = New(newTestBus(), Config{})
	if err != errNilEventHandler {
		t.Error("nil event handler accepted:", err)
	}
}

func TestNewDefaults(t *testing.T) {
	d := newTestDevice(t, newTestBus(), Config{})
	if d.cfg.MaxCmdSize != defaultMaxCmdSize ||
		d.cfg.MaxEventSize != defaultMaxEventSize ||
		d.cfg.PSIdleTimeout != defaultPSIdleTimeout ||
		d.cfg.RecoveryPSActiveTimeout != defaultRecoveryPSActiveTimeout {
		t.Error("zero config fields not defaulted")
	}
	if d.Enabled() {
		t.Error("device born enabled")
	}

	cfg := DefaultConfig()
	if !cfg.LowPower || cfg.MaxCmdSize != defaultMaxCmdSize || cfg.PSIdleTimeout != defaultPSIdleTimeout {
		t.Error("bad default config")
	}
}

func TestInitHandshake(t *testing.T) {
	b := newTestBus()
	d := newTestDevice(t, b, Config{})
	initTestDevice(t, b, d)

	if d.hpqm != testGeom {
		t.Error("ring geometry not read from firmware")
	}
	if d.rxCmdBase != testRXCmdBase {
		t.Error("rx command base not read", d.rxCmdBase)
	}
	if d.txCmdBase != rpu.MEM_TX_CMD_BASE {
		t.Error("tx command base not set")
	}
	if !d.Enabled() {
		t.Error("device not enabled after Init")
	}
	if v := b.regWritesTo(regOff(t, rpu.REG_INT_FROM_RPU_CTRL)); len(v) != 1 || v[0] != 1<<rpu.BIT_INT_FROM_RPU_CTRL {
		t.Error("RPU-side interrupt routing not written", v)
	}
	if v := b.regWritesTo(regOff(t, rpu.REG_INT_FROM_MCU_CTRL)); len(v) != 1 || v[0] != 1<<rpu.BIT_INT_FROM_MCU_CTRL {
		t.Error("host-side interrupt unmask not written", v)
	}
}

func TestDeinitMasksAndReinit(t *testing.T) {
	b := newTestBus()
	d := newTestDevice(t, b, Config{})
	initTestDevice(t, b, d)

	err := d.Deinit()
	if err != nil {
		t.Fatal(err)
	}
	if d.Enabled() {
		t.Error("device enabled after Deinit")
	}
	if !b.deinited {
		t.Error("bus not released")
	}
	mcu := b.regWritesTo(regOff(t, rpu.REG_INT_FROM_MCU_CTRL))
	if len(mcu) != 2 || mcu[len(mcu)-1] != 0 {
		t.Error("host-side interrupts not masked", mcu)
	}
	rpuSide := b.regWritesTo(regOff(t, rpu.REG_INT_FROM_RPU_CTRL))
	if len(rpuSide) != 2 || rpuSide[len(rpuSide)-1] != 0 {
		t.Error("RPU-side interrupts not masked", rpuSide)
	}

	// The device comes back up with a fresh Init.
	err = d.Init()
	if err != nil {
		t.Fatal("reinit:", err)
	}
	if !d.Enabled() {
		t.Error("device not enabled after reinit")
	}
}

func TestEnableDisable(t *testing.T) {
	d := newTestDevice(t, newTestBus(), Config{})
	if d.Enabled() {
		t.Fatal("device born enabled")
	}
	d.Enable()
	if !d.Enabled() {
		t.Error("Enable did not stick")
	}
	d.Disable()
	if d.Enabled() {
		t.Error("Disable did not stick")
	}
}

func TestOTP(t *testing.T) {
	b := newTestBus()
	d := newTestDevice(t, b, Config{})

	info := rpu.UMACInfo{
		BootStatus:  rpu.BOOT_SIGNATURE,
		Version:     0x0105,
		Part:        0x7002,
		LV:          3,
		MACAddress0: [2]uint32{0x44332211, 0x6655},
		MACAddress1: [2]uint32{0xDDCCBBAA, 0xFFEE},
	}
	var buf [rpu.UMAC_INFO_SIZE]byte
	info.Put(_busOrder, buf[:])
	b.putMem(memOff(t, rpu.MEM_UMAC_BOOT_SIG), buf[:])
	b.putMem32(memOff(t, rpu.MEM_OTP_INFO_FLAGS), 0x3)

	got, flags, err := d.OTPInfo()
	if err != nil {
		t.Fatal(err)
	}
	if got != info {
		t.Error("OTP block corrupt")
	}
	if flags != 0x3 {
		t.Error("OTP flags corrupt", flags)
	}
	if mac := got.HWAddr(0); mac != [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66} {
		t.Error("bad OTP mac address", mac)
	}

	b.putMem32(memOff(t, rpu.MEM_OTP_PACKAGE_TYPE), 7)
	if v, err := d.OTPPackageType(); err != nil || v != 7 {
		t.Error("bad package type", v, err)
	}
	b.putMem32(memOff(t, rpu.MEM_OTP_FT_PROG_VERSION), 0x20)
	if v, err := d.OTPFTProgVersion(); err != nil || v != 0x20 {
		t.Error("bad ft program version", v, err)
	}
}
