package nrf70

import (
	"sync"
	"testing"
	"time"

	"github.com/soypat/nrf70/rpu"
)

// Ring and slot geometry used across tests. Addresses are RPU addresses;
// the mock only ever sees their translated bus offsets.
var testGeom = rpu.HPQMInfo{
	EventBusy: rpu.HPQ{EnqueueAddr: 0xA4000B00, DequeueAddr: 0xA4000B04},
	EventAvl:  rpu.HPQ{EnqueueAddr: 0xA4000B08, DequeueAddr: 0xA4000B0C},
	CmdBusy:   rpu.HPQ{EnqueueAddr: 0xA4000B10, DequeueAddr: 0xA4000B14},
	CmdAvl:    rpu.HPQ{EnqueueAddr: 0xA4000B18, DequeueAddr: 0xA4000B1C},
	RXBufBusy: [rpu.MAX_NUM_OF_RX_QUEUES]rpu.HPQ{
		{EnqueueAddr: 0xA4000B20, DequeueAddr: 0xA4000B24},
		{EnqueueAddr: 0xA4000B28, DequeueAddr: 0xA4000B2C},
		{EnqueueAddr: 0xA4000B30, DequeueAddr: 0xA4000B34},
	},
}

const testRXCmdBase = 0xB7000E00

type regAccess struct {
	write bool
	off   uint32
	val   uint32
}

type memAccess struct {
	write bool
	off   uint32
	data  []byte
}

// testBus is an in-memory Bus. Register reads are served from seq first
// (successive values, the last one sticks), then fifo (pop per read, 0
// once drained), then plain registers. Memory reads are served from
// memSeq then the sparse byte map. Every access is logged.
type testBus struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	seq    map[uint32][]uint32
	fifo   map[uint32][]uint32
	mem    map[uint32]byte
	memSeq map[uint32][][]byte

	irq      func() error
	deinited bool

	psSeq   []uint32
	psVal   uint32
	psCalls int
	psErr   error
	wakeLog []bool
	wakeErr error

	failReg map[uint32]error
	failMem map[uint32]error

	regLog []regAccess
	memLog []memAccess
}

func newTestBus() *testBus {
	return &testBus{
		regs:    make(map[uint32]uint32),
		seq:     make(map[uint32][]uint32),
		fifo:    make(map[uint32][]uint32),
		mem:     make(map[uint32]byte),
		memSeq:  make(map[uint32][][]byte),
		failReg: make(map[uint32]error),
		failMem: make(map[uint32]error),
		psVal:   1<<rpu.BIT_PS_STATE | 1<<rpu.BIT_READY_STATE,
	}
}

func (b *testBus) Init(irq func() error) error {
	b.mu.Lock()
	b.irq = irq
	b.deinited = false
	b.mu.Unlock()
	return nil
}

func (b *testBus) Deinit() error {
	b.mu.Lock()
	b.deinited = true
	b.mu.Unlock()
	return nil
}

func (b *testBus) ReadReg(off uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failReg[off]; err != nil {
		return 0, err
	}
	var val uint32
	switch {
	case len(b.seq[off]) > 0:
		val = b.seq[off][0]
		if len(b.seq[off]) > 1 {
			b.seq[off] = b.seq[off][1:]
		}
	case b.fifo[off] != nil:
		if len(b.fifo[off]) > 0 {
			val = b.fifo[off][0]
			b.fifo[off] = b.fifo[off][1:]
		}
	default:
		val = b.regs[off]
	}
	b.regLog = append(b.regLog, regAccess{write: false, off: off, val: val})
	return val, nil
}

func (b *testBus) WriteReg(off uint32, val uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failReg[off]; err != nil {
		return err
	}
	b.regs[off] = val
	b.regLog = append(b.regLog, regAccess{write: true, off: off, val: val})
	return nil
}

func (b *testBus) ReadMem(off uint32, dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failMem[off]; err != nil {
		return err
	}
	if blobs := b.memSeq[off]; len(blobs) > 0 {
		copy(dst, blobs[0])
		if len(blobs) > 1 {
			b.memSeq[off] = blobs[1:]
		}
	} else {
		for i := range dst {
			dst[i] = b.mem[off+uint32(i)]
		}
	}
	b.memLog = append(b.memLog, memAccess{write: false, off: off, data: append([]byte(nil), dst...)})
	return nil
}

func (b *testBus) WriteMem(off uint32, src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failMem[off]; err != nil {
		return err
	}
	for i, v := range src {
		b.mem[off+uint32(i)] = v
	}
	b.memLog = append(b.memLog, memAccess{write: true, off: off, data: append([]byte(nil), src...)})
	return nil
}

func (b *testBus) WakeupNow(assert bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wakeErr != nil {
		return b.wakeErr
	}
	b.wakeLog = append(b.wakeLog, assert)
	return nil
}

func (b *testBus) PSStatus() (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.psCalls++
	if b.psErr != nil {
		return 0, b.psErr
	}
	if len(b.psSeq) > 0 {
		val := b.psSeq[0]
		if len(b.psSeq) > 1 {
			b.psSeq = b.psSeq[1:]
		}
		return val, nil
	}
	return b.psVal, nil
}

func (b *testBus) putMem(off uint32, data []byte) {
	b.mu.Lock()
	for i, v := range data {
		b.mem[off+uint32(i)] = v
	}
	b.mu.Unlock()
}

func (b *testBus) putMem32(off uint32, val uint32) {
	var buf [4]byte
	_busOrder.PutUint32(buf[:], val)
	b.putMem(off, buf[:])
}

func (b *testBus) getMem(off uint32, n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := make([]byte, n)
	for i := range data {
		data[i] = b.mem[off+uint32(i)]
	}
	return data
}

func (b *testBus) putHPQM(info rpu.HPQMInfo) {
	var buf [rpu.HPQM_INFO_SIZE]byte
	info.Put(_busOrder, buf[:])
	off, _ := rpu.MemOffset(rpu.MEM_HPQ_INFO, rpu.LMAC)
	b.putMem(off, buf[:])
}

func (b *testBus) pushFIFO(off uint32, vals ...uint32) {
	b.mu.Lock()
	if b.fifo[off] == nil {
		b.fifo[off] = []uint32{}
	}
	b.fifo[off] = append(b.fifo[off], vals...)
	b.mu.Unlock()
}

func (b *testBus) fifoLen(off uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fifo[off])
}

// seedCmdSlots publishes slot addresses on the command available ring.
// Each address is pushed twice: the ready probe and the dequeue each cost
// one ring read.
func (b *testBus) seedCmdSlots(addrs ...uint32) {
	off, _ := rpu.RegOffset(testGeom.CmdAvl.DequeueAddr)
	b.mu.Lock()
	if b.fifo[off] == nil {
		b.fifo[off] = []uint32{}
	}
	for _, a := range addrs {
		b.fifo[off] = append(b.fifo[off], a, a)
	}
	b.mu.Unlock()
}

func (b *testBus) setSeq(off uint32, vals ...uint32) {
	b.mu.Lock()
	b.seq[off] = vals
	b.mu.Unlock()
}

func (b *testBus) setMemSeq(off uint32, blobs ...[]byte) {
	b.mu.Lock()
	b.memSeq[off] = blobs
	b.mu.Unlock()
}

func (b *testBus) regWritesTo(off uint32) (vals []uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.regLog {
		if a.write && a.off == off {
			vals = append(vals, a.val)
		}
	}
	return vals
}

func (b *testBus) regReadCount(off uint32) (n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.regLog {
		if !a.write && a.off == off {
			n++
		}
	}
	return n
}

func (b *testBus) memReadCount(off uint32) (n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.memLog {
		if !a.write && a.off == off {
			n++
		}
	}
	return n
}

func (b *testBus) memWrites() []memAccess {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]memAccess, 0, len(b.memLog))
	for _, a := range b.memLog {
		if a.write {
			out = append(out, a)
		}
	}
	return out
}

func (b *testBus) wakes() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.wakeLog...)
}

func (b *testBus) psCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.psCalls
}

func (b *testBus) triggerIRQ(t *testing.T) error {
	t.Helper()
	b.mu.Lock()
	irq := b.irq
	b.mu.Unlock()
	if irq == nil {
		t.Fatal("no irq handler registered")
	}
	return irq()
}

func regOff(t *testing.T, addr uint32) uint32 {
	t.Helper()
	off, err := rpu.RegOffset(addr)
	if err != nil {
		t.Fatal(err)
	}
	return off
}

func memOffFor(t *testing.T, addr uint32, proc rpu.Processor) uint32 {
	t.Helper()
	off, err := rpu.MemOffset(addr, proc)
	if err != nil {
		t.Fatal(err)
	}
	return off
}

func memOff(t *testing.T, addr uint32) uint32 {
	return memOffFor(t, addr, rpu.LMAC)
}

func newTestDevice(t *testing.T, b *testBus, cfg Config) *Device {
	t.Helper()
	if cfg.OnEvent == nil {
		cfg.OnEvent = func([]byte) error { return nil }
	}
	d, err := New(b, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	return d
}

// initTestDevice seeds the boot handshake data and runs Init.
func initTestDevice(t *testing.T, b *testBus, d *Device) {
	t.Helper()
	b.putHPQM(testGeom)
	b.putMem32(memOff(t, rpu.MEM_RX_CMD_BASE), testRXCmdBase)
	err := d.Init()
	if err != nil {
		t.Fatal("Init:", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Since(deadline) >= 0 {
			t.Fatal("timeout waiting for ", msg)
		}
		time.Sleep(time.Millisecond)
	}
}
