package rpu

import "encoding/binary"

// HPQ is a hardware pointer queue descriptor: one hardware ring identified
// by the pair of system bus registers that operate it. The host writes an
// RPU address to EnqueueAddr to push it onto the ring and reads
// DequeueAddr to pop one. A popped value of 0 means the ring is empty; 0
// is reserved and never a valid buffer address.
type HPQ struct {
	EnqueueAddr uint32
	DequeueAddr uint32
}

const HPQ_SIZE = 8

func DecodeHPQ(order binary.ByteOrder, b []byte) (q HPQ) {
	_ = b[HPQ_SIZE-1]
	q.EnqueueAddr = order.Uint32(b)
	q.DequeueAddr = order.Uint32(b[4:])
	return q
}

func (q *HPQ) Put(order binary.ByteOrder, b []byte) {
	_ = b[HPQ_SIZE-1]
	order.PutUint32(b, q.EnqueueAddr)
	order.PutUint32(b[4:], q.DequeueAddr)
}

// HPQMInfo is the hardware pointer queue manager geometry the firmware
// writes to MEM_HPQ_INFO while booting. Busy rings carry addresses the
// host has filled in; available rings carry addresses the firmware has
// released back to the host.
type HPQMInfo struct {
	EventBusy HPQ
	EventAvl  HPQ
	CmdBusy   HPQ
	CmdAvl    HPQ
	// RXBufBusy receives the RX buffer addresses the host has prepared,
	// one ring per hardware RX queue.
	RXBufBusy [MAX_NUM_OF_RX_QUEUES]HPQ
}

const HPQM_INFO_SIZE = (4 + MAX_NUM_OF_RX_QUEUES) * HPQ_SIZE

func DecodeHPQMInfo(order binary.ByteOrder, b []byte) (info HPQMInfo) {
	_ = b[HPQM_INFO_SIZE-1]
	info.EventBusy = DecodeHPQ(order, b[0:])
	info.EventAvl = DecodeHPQ(order, b[8:])
	info.CmdBusy = DecodeHPQ(order, b[16:])
	info.CmdAvl = DecodeHPQ(order, b[24:])
	for i := range info.RXBufBusy {
		info.RXBufBusy[i] = DecodeHPQ(order, b[32+i*HPQ_SIZE:])
	}
	return info
}

func (info *HPQMInfo) Put(order binary.ByteOrder, b []byte) {
	_ = b[HPQM_INFO_SIZE-1]
	info.EventBusy.Put(order, b[0:])
	info.EventAvl.Put(order, b[8:])
	info.CmdBusy.Put(order, b[16:])
	info.CmdAvl.Put(order, b[24:])
	for i := range info.RXBufBusy {
		info.RXBufBusy[i].Put(order, b[32+i*HPQ_SIZE:])
	}
}

// MsgHdr prefixes every message the firmware writes to an event buffer.
// Len counts the payload bytes following the header. Resubmit is nonzero
// when the host must return the buffer address to the event available
// ring once it has consumed the payload.
type MsgHdr struct {
	Len      uint32
	Resubmit uint32
}

const MSG_HDR_SIZE = 8

func DecodeMsgHdr(order binary.ByteOrder, b []byte) (h MsgHdr) {
	_ = b[MSG_HDR_SIZE-1]
	h.Len = order.Uint32(b)
	h.Resubmit = order.Uint32(b[4:])
	return h
}

func (h *MsgHdr) Put(order binary.ByteOrder, b []byte) {
	_ = b[MSG_HDR_SIZE-1]
	order.PutUint32(b, h.Len)
	order.PutUint32(b[4:], h.Resubmit)
}

// UMACInfo is the block the UMAC bootloader mirrors from OTP into PKTRAM
// at MEM_UMAC_BOOT_SIG. Its first word is the UMAC boot signature.
type UMACInfo struct {
	BootStatus uint32
	Version    uint32
	Part       uint32
	Variant    uint32
	LV         uint32
	// PRN is factory-programmed entropy.
	PRN         [4]uint32
	MACAddress0 [2]uint32
	MACAddress1 [2]uint32
	Calib       [9]uint32
}

const UMAC_INFO_SIZE = 88

func DecodeUMACInfo(order binary.ByteOrder, b []byte) (u UMACInfo) {
	_ = b[UMAC_INFO_SIZE-1]
	u.BootStatus = order.Uint32(b)
	u.Version = order.Uint32(b[4:])
	u.Part = order.Uint32(b[8:])
	u.Variant = order.Uint32(b[12:])
	u.LV = order.Uint32(b[16:])
	for i := range u.PRN {
		u.PRN[i] = order.Uint32(b[20+4*i:])
	}
	u.MACAddress0[0] = order.Uint32(b[36:])
	u.MACAddress0[1] = order.Uint32(b[40:])
	u.MACAddress1[0] = order.Uint32(b[44:])
	u.MACAddress1[1] = order.Uint32(b[48:])
	for i := range u.Calib {
		u.Calib[i] = order.Uint32(b[52+4*i:])
	}
	return u
}

func (u *UMACInfo) Put(order binary.ByteOrder, b []byte) {
	_ = b[UMAC_INFO_SIZE-1]
	order.PutUint32(b, u.BootStatus)
	order.PutUint32(b[4:], u.Version)
	order.PutUint32(b[8:], u.Part)
	order.PutUint32(b[12:], u.Variant)
	order.PutUint32(b[16:], u.LV)
	for i := range u.PRN {
		order.PutUint32(b[20+4*i:], u.PRN[i])
	}
	order.PutUint32(b[36:], u.MACAddress0[0])
	order.PutUint32(b[40:], u.MACAddress0[1])
	order.PutUint32(b[44:], u.MACAddress1[0])
	order.PutUint32(b[48:], u.MACAddress1[1])
	for i := range u.Calib {
		order.PutUint32(b[52+4*i:], u.Calib[i])
	}
}

// HWAddr returns OTP MAC address n (0 or 1) in transmission order.
func (u *UMACInfo) HWAddr(n int) (mac [6]byte) {
	var w0, w1 uint32
	if n == 0 {
		w0, w1 = u.MACAddress0[0], u.MACAddress0[1]
	} else {
		w0, w1 = u.MACAddress1[0], u.MACAddress1[1]
	}
	mac[0] = byte(w0)
	mac[1] = byte(w0 >> 8)
	mac[2] = byte(w0 >> 16)
	mac[3] = byte(w0 >> 24)
	mac[4] = byte(w1)
	mac[5] = byte(w1 >> 8)
	return mac
}
