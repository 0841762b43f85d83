package main

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/soypat/nrf70/rpu"
)

func TestCommandFromBytes(t *testing.T) {
	var bus BusCtl
	cmd, data := bus.CommandFromBytes([]byte{0x02, 0x0C, 0x00, 0x24, 0xAA, 0xBB})
	if cmd.Op != OpWrite || !cmd.Write() {
		t.Error("expected write", cmd.Op)
	}
	if cmd.Addr != 0x0C0024 {
		t.Errorf("bad addr %#x", cmd.Addr)
	}
	if !bytes.Equal(data, []byte{0xAA, 0xBB}) {
		t.Error("bad write data", data)
	}

	cmd, data = bus.CommandFromBytes([]byte{0x0B, 0x00, 0x00, 0x00, 0xFF, 0x01, 0x02})
	if cmd.Op != OpFastRead || cmd.Write() {
		t.Error("expected fast read", cmd.Op)
	}
	if !bytes.Equal(data, []byte{0x01, 0x02}) {
		t.Error("dummy byte not skipped", data)
	}

	cmd, data = bus.CommandFromBytes([]byte{0x1F, 0x06})
	if cmd.Op != OpRDSR1 || cmd.HasAddr() {
		t.Error("expected rdsr1", cmd.Op)
	}
	if !bytes.Equal(data, []byte{0x06}) {
		t.Error("bad status data", data)
	}

	cmd, _ = bus.CommandFromBytes([]byte{0x03, 0x00})
	if cmd.Op != opInvalid {
		t.Error("expected invalid for short frame", cmd.Op)
	}

	bus.TrimStatus = true
	_, data = bus.CommandFromBytes([]byte{0x03, 0x00, 0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8})
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Error("status word not trimmed", data)
	}
}

func TestRegionOf(t *testing.T) {
	if regionOf(rpu.BUS_SYSBUS) != "sysbus" {
		t.Error("bad region for sysbus start")
	}
	if regionOf(rpu.BUS_PKTRAM+0x24) != "pktram" {
		t.Error("bad region for hpqm info")
	}
	if regionOf(rpu.BUS_UMAC_RET+0x9400) != "umac.ret" {
		t.Error("bad region for umac patch")
	}
	if regionOf(0x00F00000) != "unknown" {
		t.Error("expected unknown region")
	}
}

func TestInterpretBytes(t *testing.T) {
	bus := BusCtl{WordInterpreter: binary.BigEndian}
	data := []byte{0x01, 0x02, 0x03, 0x04}
	bus.interpretBytes(data)
	if !bytes.Equal(data, []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Error("expected big endian", data)
	}
	bus = BusCtl{WordInterpreter: binary.LittleEndian}
	data = []byte{0x01, 0x02, 0x03, 0x04}
	bus.interpretBytes(data)
	if !bytes.Equal(data, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Error("expected unchanged data", data)
	}
	bus = BusCtl{}
	data = []byte{0x01, 0x02, 0x03, 0x04}
	bus.interpretBytes(data)
	if !bytes.Equal(data, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Error("expected unchanged data", data)
	}
}
