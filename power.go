package nrf70

import (
	"time"

	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// wake brings the RPU out of sleep and holds off the idle-sleep timer.
// Callers hold psMu. Before the firmware has booted there is no power
// management and wake is a successful no-op; the same goes for devices
// configured without low power. An already awake RPU costs no bus
// traffic.
// reference: hal_rpu_ps_wake
func (d *Device) wake() error {
	if !d.cfg.LowPower || !d.fwBooted {
		return nil
	}
	defer d.ps_timer_arm()
	if d.psState == PowerStateAwake {
		return nil
	}
	err := d.bus.WakeupNow(true)
	if err != nil {
		d.logerr("wake", slog.String("err", err.Error()))
		d.recoveryWorker.schedule()
		return err
	}
	d.wakeAsserted = true
	d.lastWakeAssert = time.Now()

	const mask = 1<<rpu.BIT_PS_STATE | 1<<rpu.BIT_READY_STATE
	deadline := time.Now().Add(rpuWakeTimeout)
	// Let the wakeup request settle before the first status poll, the
	// RPU races an immediate read.
	time.Sleep(rpuWakeSettleDelay)
	var status uint32
	for {
		status, err = d.bus.PSStatus()
		if err == nil && status&mask == mask {
			break
		}
		if time.Since(deadline) >= 0 {
			d.logerr("wake",
				slog.String("status", hex32(status)),
				slog.String("mask", hex32(mask)),
			)
			d.recoveryWorker.schedule()
			return errWakeTimeout
		}
		time.Sleep(rpuWakePollInterval)
	}
	d.psState = PowerStateAwake
	d.sleep_opp_check()
	d.trace("wake", slog.Duration("took", time.Since(d.lastWakeAssert)))
	return nil
}

// ps_sleep is the idle-sleep timer body: deassert the wakeup request and
// account the RPU asleep. Explicit wakes race the timer only through
// psMu.
// reference: hal_rpu_ps_sleep
func (d *Device) ps_sleep() {
	d.psMu.Lock()
	defer d.psMu.Unlock()
	if d.psStopped {
		return
	}
	err := d.bus.WakeupNow(false)
	if err != nil {
		d.logerr("ps_sleep", slog.String("err", err.Error()))
	}
	d.wakeAsserted = false
	d.lastWakeDeassert = time.Now()
	d.psState = PowerStateAsleep
	d.trace("ps_sleep")
}

// ps_timer_arm (re)arms the one-shot idle-sleep timer. Every RPU access
// lands here through wake, pushing sleep out past the idle timeout.
// Callers hold psMu.
func (d *Device) ps_timer_arm() {
	if d.psStopped {
		return
	}
	if d.psTimer == nil {
		d.psTimer = time.AfterFunc(d.cfg.PSIdleTimeout, d.ps_sleep)
		return
	}
	d.psTimer.Reset(d.cfg.PSIdleTimeout)
}

// sleep_opp_check records whether the last wakeup-deasserted gap was long
// enough for the RPU to actually have entered sleep. The recovery
// heuristic keys off the recorded opportunity. Callers hold psMu.
// reference: did_rpu_had_sleep_opp
func (d *Device) sleep_opp_check() {
	if time.Since(d.lastWakeDeassert) > minSleepEntryTime {
		d.lastSleepOpp = d.lastWakeDeassert
	}
}

// rpu_hung decides whether a watchdog bite means hung firmware. A
// firmware with a recent sleep opportunity is alive and the bite is
// benign; one kept awake past the recovery budget is declared hung.
func (d *Device) rpu_hung() bool {
	if !d.cfg.LowPower {
		return false
	}
	d.psMu.Lock()
	lastOpp := d.lastSleepOpp
	asserted := d.wakeAsserted
	d.psMu.Unlock()
	active := time.Since(lastOpp)
	if active <= d.cfg.RecoveryPSActiveTimeout {
		return false
	}
	d.warn("rpu_hung",
		slog.Duration("active", active),
		slog.Bool("wake_asserted", asserted),
	)
	return true
}

// recovery_process is the recovery worker body.
func (d *Device) recovery_process() {
	d.warn("rpu recovery")
	if d.cfg.OnRecovery == nil {
		return
	}
	err := d.cfg.OnRecovery()
	if err != nil {
		d.logerr("recovery_process", slog.String("err", err.Error()))
	}
}

// PowerState returns the driver's view of the RPU power save state.
// Devices configured without low power are always awake.
// reference: nrf_wifi_hal_get_rpu_ps_state
func (d *Device) PowerState() PowerState {
	if !d.cfg.LowPower {
		return PowerStateAwake
	}
	d.psMu.Lock()
	defer d.psMu.Unlock()
	return d.psState
}
