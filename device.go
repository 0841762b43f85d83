// Package nrf70 implements a host-side driver for the nRF70 series Wi-Fi
// companion chips. It covers the HAL between the host and the chip's
// Radio Processing Unit: delivering opaque command buffers, receiving
// opaque event buffers, the RPU sleep/wake cycle and the processor
// reset/boot protocols. Command and event payload contents belong to the
// layers above.
package nrf70

import (
	"sync"
	"time"

	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// Device is the host side of one nRF70 RPU. Create with New, then load
// and boot firmware (LoadFWPatch, ProcReset, FWBootCheck), then Init.
// All methods are safe for concurrent use unless noted.
type Device struct {
	// mu is the command lock: one fragment-and-drain pipeline at a time.
	mu  sync.Mutex
	bus Bus
	cfg Config

	// rxMu covers the software event queue and the enabled status against
	// the interrupt path.
	rxMu   sync.Mutex
	status halStatus
	eventQ msgQueue

	cmdQ    msgQueue // owned by mu.
	numCmds uint32   // doorbell post counter, owned by mu.

	// Ring geometry and data slot bases published by the firmware,
	// written once during Init.
	hpqm      rpu.HPQMInfo
	rxCmdBase uint32
	txCmdBase uint32

	// curProc is the processor context for core-private memory access.
	// Bring-up only, deliberately unsynchronized: reset, boot-check and
	// patch load run before concurrent traffic exists.
	curProc rpu.Processor

	// Power state machine, all under psMu.
	psMu             sync.Mutex
	psState          PowerState
	fwBooted         bool
	psTimer          *time.Timer
	psStopped        bool
	wakeAsserted     bool
	lastWakeAssert   time.Time
	lastWakeDeassert time.Time
	lastSleepOpp     time.Time

	eventWorker    *worker
	recoveryWorker *worker

	logger        *slog.Logger
	_traceenabled bool
}

// Config parametrizes a Device. The zero value of every field except
// OnEvent is usable; zero sizes and timeouts take the defaults below.
type Config struct {
	Logger *slog.Logger

	// OnEvent receives every event the RPU delivers: one call per event,
	// in arrival order, from a single goroutine. The callee owns data.
	// An error return is logged and delivery continues with the next
	// event. Required.
	OnEvent func(data []byte) error

	// OnRecovery is invoked from its own goroutine when the driver
	// declares the RPU firmware hung. Optional.
	OnRecovery func() error

	// LowPower runs the RPU sleep/wake machinery. Without it the RPU is
	// treated as always awake and never put to sleep.
	LowPower bool

	// MaxCmdSize is the largest control command the firmware takes in one
	// transfer. Larger commands are fragmented to this size. Default 400.
	MaxCmdSize uint32

	// MaxEventSize is the largest event payload accepted from the
	// firmware. Default 512.
	MaxEventSize uint32

	// PSIdleTimeout is how long the RPU is kept awake past its last bus
	// access. Default 10ms.
	PSIdleTimeout time.Duration

	// RecoveryPSActiveTimeout is how long the RPU may run without a sleep
	// opportunity before a watchdog interrupt declares it hung.
	// Default 50s.
	RecoveryPSActiveTimeout time.Duration
}

// DefaultConfig returns the configuration for a low-power device. Set
// OnEvent before use.
func DefaultConfig() Config {
	return Config{
		LowPower:                true,
		MaxCmdSize:              defaultMaxCmdSize,
		MaxEventSize:            defaultMaxEventSize,
		PSIdleTimeout:           defaultPSIdleTimeout,
		RecoveryPSActiveTimeout: defaultRecoveryPSActiveTimeout,
	}
}

// New creates a Device on a bus. The device starts disabled with the RPU
// accounted asleep and its firmware not booted; nothing touches the bus
// until a firmware load or Init.
// reference: nrf_wifi_hal_dev_add
func New(bus Bus, cfg Config) (*Device, error) {
	if bus == nil {
		return nil, errNilBus
	}
	if cfg.OnEvent == nil {
		return nil, errNilEventHandler
	}
	if cfg.MaxCmdSize == 0 {
		cfg.MaxCmdSize = defaultMaxCmdSize
	}
	if cfg.MaxEventSize == 0 {
		cfg.MaxEventSize = defaultMaxEventSize
	}
	if cfg.PSIdleTimeout == 0 {
		cfg.PSIdleTimeout = defaultPSIdleTimeout
	}
	if cfg.RecoveryPSActiveTimeout == 0 {
		cfg.RecoveryPSActiveTimeout = defaultRecoveryPSActiveTimeout
	}
	d := &Device{
		bus:    bus,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	d._traceenabled = d.logenabled(levelTrace)
	d.status = halStatusDisabled
	d.psState = PowerStateAsleep
	now := time.Now()
	d.lastWakeDeassert = now
	d.lastSleepOpp = now
	d.curProc = rpu.LMAC
	d.eventWorker = newWorker(d.event_process)
	d.recoveryWorker = newWorker(d.recovery_process)
	return d, nil
}

// Init brings the RPU interface up: transport init, interrupt unmasking
// and the handshake that reads the ring geometry and data slot bases the
// firmware published while booting. Power management is live from the
// first access here, so call Init only once FWBootCheck has passed for
// the booted cores.
// reference: nrf_wifi_hal_dev_init
func (d *Device) Init() error {
	d.trace("Init")
	d.psMu.Lock()
	d.fwBooted = true
	d.psMu.Unlock()

	err := d.bus.Init(d.irqHandler)
	if err != nil {
		d.logerr("Init:bus", slog.String("err", err.Error()))
		return err
	}
	err = d.irq_enable()
	if err != nil {
		return err
	}
	var info [rpu.HPQM_INFO_SIZE]byte
	err = d.mem_read(rpu.MEM_HPQ_INFO, info[:])
	if err != nil {
		d.logerr("Init:hpqm", slog.String("err", err.Error()))
		return err
	}
	d.hpqm = rpu.DecodeHPQMInfo(_busOrder, info[:])
	d.rxCmdBase, err = d.mem_read32(rpu.MEM_RX_CMD_BASE)
	if err != nil {
		d.logerr("Init:rx_cmd_base", slog.String("err", err.Error()))
		return err
	}
	d.txCmdBase = rpu.MEM_TX_CMD_BASE
	d.Enable()
	d.info("Init",
		slog.String("rx_cmd_base", hex32(d.rxCmdBase)),
		slog.String("tx_cmd_base", hex32(d.txCmdBase)),
	)
	return nil
}

// Deinit tears the RPU interface down: stop accepting interrupts, mask
// them at the source, release the transport and drop events still queued.
// The device can be Init'ed again afterwards.
// reference: nrf_wifi_hal_dev_deinit
func (d *Device) Deinit() error {
	d.trace("Deinit")
	d.Disable()
	errIrq := d.irq_disable()
	errBus := d.bus.Deinit()
	d.eventq_drain()
	return errjoin(errIrq, errBus)
}

// Close releases everything New allocated. The recovery and event workers
// are stopped and joined first, so no callback runs once Close returns;
// events queued but undelivered are dropped. Close does not touch the
// bus; Deinit a live device first.
// reference: nrf_wifi_hal_dev_rem
func (d *Device) Close() {
	d.trace("Close")
	d.recoveryWorker.kill()
	d.eventWorker.kill()
	d.eventq_drain()
	d.psMu.Lock()
	d.psStopped = true
	if d.psTimer != nil {
		d.psTimer.Stop()
	}
	d.psMu.Unlock()
	d.mu.Lock()
	for {
		_, ok := d.cmdQ.pop()
		if !ok {
			break
		}
	}
	d.mu.Unlock()
}

// Enable lets interrupts schedule event processing.
// reference: nrf_wifi_hal_enable
func (d *Device) Enable() {
	d.rxMu.Lock()
	d.status = halStatusEnabled
	d.rxMu.Unlock()
}

// Disable stops interrupts from scheduling event processing. An event
// drain already scheduled still runs; see Deinit and Close for full
// teardown.
// reference: nrf_wifi_hal_disable
func (d *Device) Disable() {
	d.rxMu.Lock()
	d.status = halStatusDisabled
	d.rxMu.Unlock()
}

// Enabled reports whether interrupts currently schedule event processing.
func (d *Device) Enabled() bool {
	d.rxMu.Lock()
	defer d.rxMu.Unlock()
	return d.status == halStatusEnabled
}

// OTPInfo reads the factory OTP block the UMAC bootloader mirrors into
// shared memory, plus the OTP validity flags word.
// reference: nrf_wifi_hal_otp_info_get
func (d *Device) OTPInfo() (info rpu.UMACInfo, flags uint32, err error) {
	var buf [rpu.UMAC_INFO_SIZE]byte
	err = d.mem_read(rpu.MEM_UMAC_BOOT_SIG, buf[:])
	if err != nil {
		d.logerr("OTPInfo", slog.String("err", err.Error()))
		return info, 0, err
	}
	info = rpu.DecodeUMACInfo(_busOrder, buf[:])
	flags, err = d.mem_read32(rpu.MEM_OTP_INFO_FLAGS)
	if err != nil {
		d.logerr("OTPInfo", slog.String("err", err.Error()))
		return info, 0, err
	}
	return info, flags, nil
}

// OTPFTProgVersion reads the factory test program version word.
// reference: nrf_wifi_hal_otp_ft_prog_ver_get
func (d *Device) OTPFTProgVersion() (uint32, error) {
	v, err := d.mem_read32(rpu.MEM_OTP_FT_PROG_VERSION)
	if err != nil {
		d.logerr("OTPFTProgVersion", slog.String("err", err.Error()))
	}
	return v, err
}

// OTPPackageType reads the chip package type word.
// reference: nrf_wifi_hal_otp_pack_info_get
func (d *Device) OTPPackageType() (uint32, error) {
	v, err := d.mem_read32(rpu.MEM_OTP_PACKAGE_TYPE)
	if err != nil {
		d.logerr("OTPPackageType", slog.String("err", err.Error()))
	}
	return v, err
}
