//go:build rp2040 || rp2350

package nrf70

import (
	"machine"
	"time"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// Serial command opcodes of the nRF70 host port. The command word is the
// opcode in the top byte followed by a 24-bit bus offset.
const (
	cmdRead  uint32 = 0x03 << 24
	cmdWrite uint32 = 0x02 << 24
	addrMask uint32 = 1<<24 - 1
)

// picoChunk is the scratch size for memory transfers. Larger transfers
// are split.
const picoChunk = 256

// PicoSPIPins is the wiring of an nRF70 expansion board to an RP2040 or
// RP2350 board. DATA is the shared half-duplex data line.
type PicoSPIPins struct {
	// BUCKEN and IOVDDEN sequence the radio power rails.
	BUCKEN  machine.Pin
	IOVDDEN machine.Pin
	// WAKE is the host wakeup request line, see Bus.WakeupNow.
	WAKE machine.Pin
	// IRQ is the RPU host interrupt line.
	IRQ  machine.Pin
	CS   machine.Pin
	CLK  machine.Pin
	DATA machine.Pin
}

// PicoSPI drives an nRF70 over a PIO-backed half-duplex SPI. Claim it
// once per state machine; Init and Deinit cycle power and interrupts
// without releasing the PIO.
type PicoSPI struct {
	pins PicoSPIPins
	spi  piolib.SPI3w
	irq  func() error
}

// NewPicoSPI claims a PIO state machine and assembles the bus. Panics if
// no state machine is free.
func NewPicoSPI(pins PicoSPIPins) *PicoSPI {
	pins.BUCKEN.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.IOVDDEN.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.WAKE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CS.High()
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		panic(err.Error())
	}
	spi, err := piolib.NewSPI3w(sm, pins.DATA, pins.CLK, 16_000_000-1)
	if err != nil {
		panic(err.Error())
	}
	spi.EnableStatus(true)
	err = spi.EnableDMA(true)
	if err != nil {
		panic(err.Error())
	}
	return &PicoSPI{
		pins: pins,
		spi:  *spi,
	}
}

// Init powers the radio rails up in order and routes the host interrupt
// line to irq.
// reference: rpu_pwron, rpu_irq_enable
func (b *PicoSPI) Init(irq func() error) error {
	b.irq = irq
	b.pins.BUCKEN.High()
	time.Sleep(4 * time.Millisecond)
	b.pins.IOVDDEN.High()
	time.Sleep(1 * time.Millisecond)
	b.pins.IRQ.Configure(machine.PinConfig{Mode: machine.PinInput})
	return b.pins.IRQ.SetInterrupt(machine.PinRising, func(machine.Pin) {
		if b.irq != nil {
			b.irq()
		}
	})
}

// Deinit detaches the interrupt line and powers the radio rails down.
// reference: rpu_pwroff, rpu_irq_disable
func (b *PicoSPI) Deinit() error {
	err := b.pins.IRQ.SetInterrupt(0, nil)
	b.irq = nil
	b.pins.IOVDDEN.Low()
	b.pins.BUCKEN.Low()
	return err
}

func (b *PicoSPI) ReadReg(offset uint32) (uint32, error) {
	var buf [1]uint32
	_, err := b.cmd_read(cmdRead|offset&addrMask, buf[:])
	return buf[0], err
}

func (b *PicoSPI) WriteReg(offset uint32, val uint32) error {
	buf := [1]uint32{val}
	_, err := b.cmd_write(cmdWrite|offset&addrMask, buf[:])
	return err
}

func (b *PicoSPI) ReadMem(offset uint32, dst []byte) error {
	var words [picoChunk / 4]uint32
	for len(dst) > 0 {
		n := len(dst)
		if n > picoChunk {
			n = picoChunk
		}
		nw := align(uint32(n), 4) / 4
		_, err := b.cmd_read(cmdRead|offset&addrMask, words[:nw])
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			dst[i] = byte(words[i/4] >> (8 * (i % 4)))
		}
		offset += uint32(n)
		dst = dst[n:]
	}
	return nil
}

// WriteMem writes src to the bus. Lengths round up to whole words.
func (b *PicoSPI) WriteMem(offset uint32, src []byte) error {
	var words [picoChunk / 4]uint32
	for len(src) > 0 {
		n := len(src)
		if n > picoChunk {
			n = picoChunk
		}
		nw := align(uint32(n), 4) / 4
		for i := range words[:nw] {
			words[i] = 0
		}
		for i := 0; i < n; i++ {
			words[i/4] |= uint32(src[i]) << (8 * (i % 4))
		}
		_, err := b.cmd_write(cmdWrite|offset&addrMask, words[:nw])
		if err != nil {
			return err
		}
		offset += uint32(n)
		src = src[n:]
	}
	return nil
}

// WakeupNow drives the wakeup request line.
func (b *PicoSPI) WakeupNow(assert bool) error {
	b.pins.WAKE.Set(assert)
	return nil
}

// PSStatus returns the power status bits the RPU shifts out ahead of each
// transfer, refreshed with a one-word read of the MCU control register.
func (b *PicoSPI) PSStatus() (uint32, error) {
	var buf [1]uint32
	return b.cmd_read(cmdRead|0, buf[:])
}

func (b *PicoSPI) cmd_read(cmd uint32, buf []uint32) (status uint32, err error) {
	b.csEnable(true)
	err = b.spi.CmdRead(cmd, buf)
	b.csEnable(false)
	return b.spi.LastStatus(), err
}

func (b *PicoSPI) cmd_write(cmd uint32, buf []uint32) (status uint32, err error) {
	b.csEnable(true)
	err = b.spi.CmdWrite(cmd, buf)
	b.csEnable(false)
	return b.spi.LastStatus(), err
}

func (b *PicoSPI) csEnable(enable bool) {
	b.pins.CS.Set(!enable)
}
