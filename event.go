package nrf70

import (
	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// irqHandler is the interrupt entry point the bus invokes. It classifies
// the interrupt and fetches pending events under the receive lock; the
// heavy lifting runs on the workers.
// reference: nrf_wifi_hal_irq_handler
func (d *Device) irqHandler() error {
	d.rxMu.Lock()
	defer d.rxMu.Unlock()
	if d.status != halStatusEnabled {
		// Not taking traffic. Acknowledge so the interrupt deasserts.
		return d.irq_ack()
	}
	rpuRecover, err := d.irq_process()
	if err != nil {
		return err
	}
	if rpuRecover {
		d.recoveryWorker.schedule()
		return nil
	}
	if d.eventQ.len() > 0 {
		d.eventWorker.schedule()
	}
	return nil
}

// irq_process classifies the interrupt and drains whatever the firmware
// has posted. A watchdog bite from a firmware that has had no sleep
// opportunity for too long becomes a recovery request; everything else is
// event traffic.
// reference: hal_rpu_irq_process
func (d *Device) irq_process() (rpuRecover bool, err error) {
	status, err := d.reg_read(rpu.REG_MCU_UCCP_INT_STATUS)
	if err != nil {
		d.logerr("irq_process", slog.String("err", err.Error()))
		return false, err
	}
	d.trace("irq_process", slog.String("status", hex32(status)))
	if status&(1<<rpu.BIT_MCU_WDOG_PENDING) != 0 {
		rpuRecover = d.rpu_hung()
		if !rpuRecover {
			d.debug("irq_process:benign watchdog")
		}
		err = d.wdog_ack()
		if err != nil {
			d.logerr("irq_process", slog.String("err", err.Error()))
		}
	}
	if !rpuRecover {
		err = d.event_fetch()
		if err != nil {
			return false, err
		}
	}
	return rpuRecover, d.irq_ack()
}

// event_fetch drains the event busy ring into the software event queue.
// reference: hal_rpu_event_process
func (d *Device) event_fetch() error {
	for {
		addr, ok, err := d.hpq_dequeue(d.hpqm.EventBusy)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		err = d.event_get(addr)
		if err != nil {
			d.logerr("event_fetch", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
			return err
		}
	}
}

// event_get copies one event out of RPU memory and queues it for the
// event worker. The first read grabs the header plus the typical payload
// in one bus transaction; larger events cost one more read. Buffers the
// firmware flagged for resubmission go back on the event available ring
// once their payload is safely copied out.
// reference: hal_rpu_event_get
func (d *Device) event_get(addr uint32) error {
	var first [rpu.MSG_HDR_SIZE + rpu.EVENT_COMMON_SIZE_MAX]byte
	err := d.mem_read(addr, first[:])
	if err != nil {
		return err
	}
	hdr := rpu.DecodeMsgHdr(_busOrder, first[:])
	if hdr.Len > d.cfg.MaxEventSize {
		d.logerr("event_get",
			slog.String("addr", hex32(addr)),
			slog.Uint64("len", uint64(hdr.Len)),
			slog.Uint64("max", uint64(d.cfg.MaxEventSize)),
		)
		d.event_resubmit(hdr, addr)
		return errEventTooLarge
	}
	data := make([]byte, hdr.Len)
	n := copy(data, first[rpu.MSG_HDR_SIZE:])
	if n < len(data) {
		err = d.mem_read(addr+rpu.MSG_HDR_SIZE+uint32(n), data[n:])
		if err != nil {
			return err
		}
	}
	d.eventQ.push(halMsg{data: data})
	d.event_resubmit(hdr, addr)
	return nil
}

// event_resubmit returns an event buffer address to the firmware when the
// buffer is reusable.
func (d *Device) event_resubmit(hdr rpu.MsgHdr, addr uint32) {
	if hdr.Resubmit == 0 {
		return
	}
	err := d.hpq_enqueue(d.hpqm.EventAvl, addr)
	if err != nil {
		d.logerr("event_resubmit", slog.String("addr", hex32(addr)), slog.String("err", err.Error()))
	}
}

// event_process is the event worker body: pop and deliver until the queue
// is empty. The callback runs without the receive lock so the interrupt
// path stays open while upstream code works. A callback error is logged
// and the drain keeps going; there is no retry of a failed delivery.
func (d *Device) event_process() {
	for {
		d.rxMu.Lock()
		msg, ok := d.eventQ.pop()
		d.rxMu.Unlock()
		if !ok {
			return
		}
		err := d.cfg.OnEvent(msg.data)
		if err != nil {
			d.logerr("event_process", slog.Int("len", len(msg.data)), slog.String("err", err.Error()))
		}
	}
}

// eventq_drain drops everything still sitting in the software event
// queue without invoking the callback. Teardown only, after interrupt
// scheduling is disabled.
func (d *Device) eventq_drain() {
	d.rxMu.Lock()
	n := 0
	for {
		_, ok := d.eventQ.pop()
		if !ok {
			break
		}
		n++
	}
	d.rxMu.Unlock()
	if n > 0 {
		d.debug("eventq_drain", slog.Int("dropped", n))
	}
}

// irq_ack tells the RPU the host has seen its interrupt.
// reference: hal_rpu_irq_ack
func (d *Device) irq_ack() error {
	return d.reg_write(rpu.REG_INT_FROM_MCU_ACK, 1<<rpu.BIT_INT_FROM_MCU_ACK)
}

// wdog_ack acknowledges a watchdog interrupt and restarts the watchdog
// timer.
// reference: hal_rpu_irq_wdog_ack
func (d *Device) wdog_ack() error {
	return d.reg_write(rpu.REG_MIPS_MCU_TIMER_CONTROL, 0)
}

// irq_enable routes RPU interrupts to the host.
// reference: hal_rpu_irq_enable
func (d *Device) irq_enable() error {
	err := d.reg_write(rpu.REG_INT_FROM_RPU_CTRL, 1<<rpu.BIT_INT_FROM_RPU_CTRL)
	if err != nil {
		return err
	}
	return d.reg_write(rpu.REG_INT_FROM_MCU_CTRL, 1<<rpu.BIT_INT_FROM_MCU_CTRL)
}

// irq_disable masks RPU interrupts, host side first.
// reference: hal_rpu_irq_disable
func (d *Device) irq_disable() error {
	err := d.reg_write(rpu.REG_INT_FROM_MCU_CTRL, 0)
	if err != nil {
		return err
	}
	return d.reg_write(rpu.REG_INT_FROM_RPU_CTRL, 0)
}
