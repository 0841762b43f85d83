package nrf70

import (
	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// hpq_enqueue pushes an RPU address onto a hardware ring.
// reference: hal_rpu_hpq_enqueue
func (d *Device) hpq_enqueue(q rpu.HPQ, val uint32) error {
	err := d.reg_write(q.EnqueueAddr, val)
	if err != nil {
		d.logerr("hpq_enqueue",
			slog.String("addr", hex32(q.EnqueueAddr)),
			slog.String("val", hex32(val)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// hpq_dequeue pops one address from a hardware ring. ok is false when the
// ring was empty: the hardware hands back the reserved address 0.
// reference: hal_rpu_hpq_dequeue
func (d *Device) hpq_dequeue(q rpu.HPQ) (val uint32, ok bool, err error) {
	val, err = d.reg_read(q.DequeueAddr)
	if err != nil {
		return 0, false, err
	}
	if val == 0 {
		return 0, false, nil
	}
	return val, true, nil
}

// hpq_is_empty probes a hardware ring for entries. A bus failure reads as
// empty so a dead bus cannot spin a bounded wait forever.
//
// The probe is the same register read hpq_dequeue performs. If the ring
// pops on every read of the dequeue register, the probe itself consumes
// an entry and a following hpq_dequeue returns the one after it. Pending
// confirmation from the hardware team this stays a plain read.
// reference: hal_rpu_hpq_is_empty
func (d *Device) hpq_is_empty(q rpu.HPQ) bool {
	val, err := d.reg_read(q.DequeueAddr)
	if err != nil {
		d.logerr("hpq_is_empty",
			slog.String("addr", hex32(q.DequeueAddr)),
			slog.String("err", err.Error()),
		)
		return true
	}
	return val == 0
}
