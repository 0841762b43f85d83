package nrf70

import (
	"runtime"
	"time"

	"log/slog"

	"github.com/soypat/nrf70/rpu"
)

// SendCtrlCommand queues a control command for delivery to the RPU and
// drains the command queue. The device takes ownership of cmd. Commands
// larger than the configured maximum command size are fragmented in
// order; the firmware reassembles them. Safe for concurrent use: the
// command lock serializes whole send calls, so fragments of two commands
// never interleave on the wire.
// reference: nrf_wifi_hal_ctrl_cmd_send
func (d *Device) SendCtrlCommand(cmd []byte) error {
	d.trace("SendCtrlCommand", slog.Int("len", len(cmd)))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmd_queue(cmd)
	return d.cmd_process_queue()
}

// SendDataCommand copies a TX data command into the TX slot of descID and
// announces it on the command busy ring with a doorbell. TX slots hold
// rpu.DATA_CMD_SIZE_MAX_TX bytes.
// reference: nrf_wifi_hal_data_cmd_send
func (d *Device) SendDataCommand(cmd []byte, descID uint) error {
	if len(cmd) > rpu.DATA_CMD_SIZE_MAX_TX {
		d.logerr("SendDataCommand", slog.Int("len", len(cmd)), slog.Uint64("desc", uint64(descID)))
		return errCmdTooLarge
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txCmdBase == 0 {
		return errNotInitialized
	}
	addr := d.txCmdBase + uint32(descID)*rpu.DATA_CMD_SIZE_MAX_TX
	err := d.mem_write(addr, cmd)
	if err != nil {
		return err
	}
	return d.msg_post(msgCmdDataTX, 0, addr)
}

// PostRXCommand copies an RX data command into the RX slot of descID and
// announces it on RX busy ring queueID. RX postings ring no doorbell: the
// firmware polls its RX rings. RX slots hold rpu.DATA_CMD_SIZE_MAX_RX
// bytes.
// reference: nrf_wifi_hal_data_cmd_send
func (d *Device) PostRXCommand(cmd []byte, descID uint, queueID uint) error {
	if len(cmd) > rpu.DATA_CMD_SIZE_MAX_RX {
		d.logerr("PostRXCommand", slog.Int("len", len(cmd)), slog.Uint64("desc", uint64(descID)))
		return errCmdTooLarge
	}
	if queueID >= rpu.MAX_NUM_OF_RX_QUEUES {
		d.logerr("PostRXCommand", slog.Uint64("queue_id", uint64(queueID)))
		return errInvalidQueueID
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rxCmdBase == 0 {
		return errNotInitialized
	}
	addr := d.rxCmdBase + uint32(descID)*rpu.DATA_CMD_SIZE_MAX_RX
	err := d.mem_write(addr, cmd)
	if err != nil {
		return err
	}
	return d.msg_post(msgCmdDataRX, queueID, addr)
}

// cmd_queue fragments cmd at the maximum command size and appends the
// fragments to the software command queue in order. Fragments stay queued
// once pushed, whatever happens to the ones after them.
// reference: hal_rpu_cmd_queue
func (d *Device) cmd_queue(cmd []byte) {
	maxSize := int(d.cfg.MaxCmdSize)
	if len(cmd) <= maxSize {
		frag := make([]byte, len(cmd))
		copy(frag, cmd)
		d.cmdQ.push(halMsg{data: frag})
		return
	}
	d.trace("cmd_queue:fragment",
		slog.Int("len", len(cmd)),
		slog.Int("frags", (len(cmd)+maxSize-1)/maxSize),
	)
	for len(cmd) > 0 {
		n := min(len(cmd), maxSize)
		frag := make([]byte, n)
		copy(frag, cmd[:n])
		d.cmdQ.push(halMsg{data: frag})
		cmd = cmd[n:]
	}
}

// cmd_process_queue drains the software command queue: for each fragment
// in FIFO order, wait for the firmware to publish a free command slot,
// copy the fragment there and post its address. A timeout or bus failure
// discards the fragment it hit and stops this drain; fragments behind it
// stay queued for the next send.
// reference: hal_rpu_cmd_process_queue
func (d *Device) cmd_process_queue() error {
	for {
		msg, ok := d.cmdQ.pop()
		if !ok {
			return nil
		}
		err := d.ready_wait(msgCmdCtrl)
		if err != nil {
			d.logerr("cmd_process_queue", slog.String("err", err.Error()))
			return err
		}
		err = d.msg_write(msgCmdCtrl, msg.data)
		if err != nil {
			d.logerr("cmd_process_queue", slog.String("err", err.Error()))
			return err
		}
	}
}

// ready reports whether the RPU has a free command slot published. Only
// control commands draw from the slot ring.
// reference: hal_rpu_ready
func (d *Device) ready(typ msgType) (bool, error) {
	if typ != msgCmdCtrl {
		d.logerr("ready", slog.String("type", typ.String()))
		return false, errInvalidMsgType
	}
	return !d.hpq_is_empty(d.hpqm.CmdAvl), nil
}

// ready_wait busy-waits until the RPU publishes a free command slot,
// bounded by maxRPUReadyWait.
// reference: hal_rpu_ready_wait
func (d *Device) ready_wait(typ msgType) error {
	deadline := time.Now().Add(maxRPUReadyWait)
	for {
		ok, err := d.ready(typ)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Since(deadline) >= 0 {
			d.logerr("ready_wait", slog.String("type", typ.String()))
			return errReadyTimeout
		}
		runtime.Gosched()
	}
}

// msg_get_addr dequeues the RPU address the next control command is to be
// copied to. An empty ring and a dequeue failure both leave the caller
// without an address.
// reference: hal_rpu_msg_get_addr
func (d *Device) msg_get_addr(typ msgType) (uint32, error) {
	if typ != msgCmdCtrl {
		d.logerr("msg_get_addr", slog.String("type", typ.String()))
		return 0, errInvalidMsgType
	}
	addr, ok, err := d.hpq_dequeue(d.hpqm.CmdAvl)
	if err != nil {
		d.logerr("msg_get_addr", slog.String("err", err.Error()))
		return 0, err
	}
	if !ok {
		d.logerr("msg_get_addr", slog.String("err", errNoCmdSlot.Error()))
		return 0, errNoCmdSlot
	}
	return addr, nil
}

// msg_write delivers one message: acquire a slot address, copy the bytes
// into it, post the address back.
// reference: hal_rpu_msg_write
func (d *Device) msg_write(typ msgType, data []byte) error {
	addr, err := d.msg_get_addr(typ)
	if err != nil {
		return err
	}
	err = d.mem_write(addr, data)
	if err != nil {
		return err
	}
	return d.msg_post(typ, 0, addr)
}

// msg_post hands a filled address to the firmware on the busy ring
// matching the message type and rings the doorbell. RX data commands are
// silent.
// reference: hal_rpu_msg_post
func (d *Device) msg_post(typ msgType, queueID uint, addr uint32) error {
	var busy rpu.HPQ
	switch typ {
	case msgCmdCtrl, msgCmdDataTX:
		busy = d.hpqm.CmdBusy
	case msgCmdDataRX:
		if queueID >= rpu.MAX_NUM_OF_RX_QUEUES {
			d.logerr("msg_post", slog.Uint64("queue_id", uint64(queueID)))
			return errInvalidQueueID
		}
		busy = d.hpqm.RXBufBusy[queueID]
	default:
		d.logerr("msg_post", slog.String("type", typ.String()))
		return errInvalidMsgType
	}
	err := d.hpq_enqueue(busy, addr)
	if err != nil {
		return err
	}
	if typ != msgCmdDataRX {
		err = d.msg_trigger()
		if err != nil {
			return err
		}
	}
	d.trace("msg_post", slog.String("type", typ.String()), slog.String("addr", hex32(addr)))
	return nil
}

// msg_trigger rings the doorbell: the post counter OR'd with the fixed
// high bit pattern, then the counter increments.
// reference: hal_rpu_msg_trigger
func (d *Device) msg_trigger() error {
	err := d.reg_write(rpu.REG_INT_TO_MCU_CTRL, d.numCmds|rpu.CMD_POST_PATTERN)
	if err != nil {
		d.logerr("msg_trigger", slog.String("err", err.Error()))
		return err
	}
	d.numCmds++
	return nil
}
