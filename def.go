package nrf70

import (
	"errors"
	"time"

	"golang.org/x/exp/constraints"
)

// msgType classifies a message exchanged with the RPU. The type selects
// the hardware pointer queue a message's address travels on and whether
// posting it rings the doorbell.
type msgType uint8

const (
	// Control command. Fragmented, queued and delivered through the
	// command available/busy ring pair with a doorbell per fragment.
	msgCmdCtrl msgType = iota
	// RX data command. Posted to a fixed RX slot and announced on one of
	// the RX busy rings, no doorbell.
	msgCmdDataRX
	// TX data command. Posted to a fixed TX slot and announced on the
	// command busy ring with a doorbell.
	msgCmdDataTX
	// Event from the RPU to the host.
	msgEvent
)

func (m msgType) String() (s string) {
	switch m {
	case msgCmdCtrl:
		s = "cmd_ctrl"
	case msgCmdDataRX:
		s = "cmd_data_rx"
	case msgCmdDataTX:
		s = "cmd_data_tx"
	case msgEvent:
		s = "event"
	default:
		s = "unknown"
	}
	return s
}

// halStatus gates interrupt-triggered event scheduling. It never gates an
// already scheduled event drain.
type halStatus uint8

const (
	halStatusDisabled halStatus = iota
	halStatusEnabled
)

func (h halStatus) String() (s string) {
	if h == halStatusEnabled {
		return "enabled"
	}
	return "disabled"
}

// PowerState is the RPU power save state tracked by the driver. The RPU
// is asleep until its firmware boots and between bursts of host traffic.
type PowerState uint8

const (
	PowerStateAsleep PowerState = iota
	PowerStateAwake
)

func (ps PowerState) String() (s string) {
	if ps == PowerStateAwake {
		return "awake"
	}
	return "asleep"
}

// Timing of the RPU interface.
// reference: hal.h of the nRF70 host driver.
const (
	// maxRPUReadyWait bounds the busy-wait for the firmware to publish a
	// free command slot address on the available ring.
	maxRPUReadyWait = 1 * time.Second

	// rpuWakeSettleDelay avoids a race in the RPU between asserting the
	// wakeup request and the first PS status poll.
	// TODO: reduce to 200us once RPU sleep entry has stabilized.
	rpuWakeSettleDelay = 1000 * time.Microsecond
	// rpuWakePollInterval paces PS status polls inside the outer
	// rpuWakeTimeout budget.
	rpuWakePollInterval = time.Millisecond
	rpuWakeTimeout      = 1 * time.Second

	// regPollTries/regPollInterval pace the processor reset polls.
	regPollTries    = 50
	regPollInterval = 10 * time.Millisecond

	// bootPollTries*bootPollInterval is the firmware boot budget.
	bootPollTries    = 100
	bootPollInterval = 10 * time.Millisecond

	// minSleepEntryTime is the shortest wakeup-deasserted period in which
	// the RPU could plausibly have entered sleep. Shorter gaps do not
	// count as sleep opportunities for the recovery heuristic.
	minSleepEntryTime = 100 * time.Millisecond
)

// Configuration defaults, see Config.
const (
	defaultMaxCmdSize              = 400
	defaultMaxEventSize            = 512
	defaultPSIdleTimeout           = 10 * time.Millisecond
	defaultRecoveryPSActiveTimeout = 50 * time.Second
)

var (
	errNilBus             = errors.New("nil bus")
	errNilEventHandler    = errors.New("nil event handler")
	errReadyTimeout       = errors.New("timeout waiting for free command slot from RPU")
	errNoCmdSlot          = errors.New("no command slot address available")
	errCmdTooLarge        = errors.New("command larger than its slot")
	errWakeTimeout        = errors.New("RPU wakeup timeout")
	errRegPollTimeout     = errors.New("register poll timeout")
	errBootSigTimeout     = errors.New("firmware boot signature timeout")
	errEventTooLarge      = errors.New("event larger than max event size")
	errInvalidProc        = errors.New("invalid RPU processor")
	errInvalidQueueID     = errors.New("invalid RX queue id")
	errInvalidMsgType     = errors.New("invalid message type")
	errNotInitialized     = errors.New("device not initialized")
	errFirmwarePatchEmpty = errors.New("empty firmware patch")
)

// errjoin returns an error that wraps the given errors.
// Any nil error values are discarded.
// errjoin returns nil if every value in errs is nil.
// The error formats as the concatenation of the strings obtained
// by calling the Error method of each element of errs, with a newline
// between each string.
//
// A non-nil error returned by errjoin implements the Unwrap() []error method.
func errjoin(errs ...error) error {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	e := &joinError{
		errs: make([]error, 0, n),
	}
	for _, err := range errs {
		if err != nil {
			e.errs = append(e.errs, err)
		}
	}
	return e
}

type joinError struct {
	errs []error
}

func (e *joinError) Error() string {
	var b []byte
	for i, err := range e.errs {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, err.Error()...)
	}
	return string(b)
}

func (e *joinError) Unwrap() []error {
	return e.errs
}

// align rounds `val` up to nearest multiple of `align`.
func align[T constraints.Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}
