package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/soypat/nrf70/rpu"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

// Optional flags.
var (
	timingsOutput string
)

type BusCtl struct {
	// Interpret data bytes as words. Wire data is little endian.
	WordInterpreter binary.ByteOrder
	// Register names used to annotate output, keyed by bus offset.
	Regmap        map[uint32]string
	TrimForce     uint
	TrimStatus    bool
	OmitReadData  bool
	OmitRead      bool
	OmitWrite     bool
	PadDataToWord bool
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "nrf70analyze - Process Binary Saleae digital data files corresponding to nRF70 host port transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	sdio := flag.String("f-sd", "digital_1.bin", "Input filename: serial data line.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: CS/SS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI clock data.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of nRF70 command transactions.")

	flag.StringVar(&timingsOutput, "o-time", "", "Output timing data to a file corresponding to output command history line-by-line.")
	flagInterpretWords := flag.String("interpret-words", "", "Interpret byte data as uint32 words. Accepts 'be' or 'le'.")
	flagRegmap := flag.String("regmap", "", "YAML file mapping RPU register addresses to names used to annotate output.")
	flagTrimStatus := flag.Bool("trim-stat", false, "Trim status word. Trims 4 trailing bytes not part of actual command data.")
	flagTrimForce := flag.Uint("trim-force", 0, "Trims n bytes off the end of every command.")
	omitReadData := flag.Bool("omit-read-data", false, "Choose to omit read data in output.")
	omitReadAll := flag.Bool("omit-read", false, "Choose to omit read commands in output.")
	omitWriteAll := flag.Bool("omit-write", false, "Choose to omit write commands in output.")
	padDataToWord := flag.Bool("pad-data", false, "Pad data to word size (4 bytes).")
	flag.Parse()
	BUS := BusCtl{
		TrimForce:     *flagTrimForce,
		TrimStatus:    *flagTrimStatus,
		OmitReadData:  *omitReadData,
		OmitRead:      *omitReadAll,
		OmitWrite:     *omitWriteAll,
		PadDataToWord: *padDataToWord,
	}
	switch *flagInterpretWords {
	case "":
	case "be":
		BUS.WordInterpreter = binary.BigEndian
	case "le":
		BUS.WordInterpreter = binary.LittleEndian
	default:
		log.Fatal("invalid ordering ", *flagInterpretWords)
	}
	if BUS.OmitRead && BUS.OmitWrite {
		log.Fatal("cannot omit both read and write commands")
	}
	if *flagRegmap != "" {
		var err error
		BUS.Regmap, err = loadRegmap(*flagRegmap)
		if err != nil {
			log.Fatal(err.Error())
		}
	}
	start := time.Now()
	if err := BUS.run(*sdio, *enable, *clk, *output); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

// loadRegmap reads a YAML map of RPU addresses to register names and
// rekeys it by bus offset, which is what the capture sees.
func loadRegmap(filename string) (map[uint32]string, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var byAddr map[uint32]string
	err = yaml.Unmarshal(b, &byAddr)
	if err != nil {
		return nil, err
	}
	m := make(map[uint32]string, len(byAddr))
	for addr, name := range byAddr {
		offset, err := rpu.RegOffset(addr)
		if err != nil {
			offset, err = rpu.MemOffset(addr, rpu.LMAC)
		}
		if err != nil {
			offset, err = rpu.MemOffset(addr, rpu.UMAC)
		}
		if err != nil {
			return nil, fmt.Errorf("regmap %s (%#x): %w", name, addr, err)
		}
		m[offset] = name
	}
	return m, nil
}

func (bus *BusCtl) run(sdio, enable, clk, output string) error {
	const fmtMsg = "cmd×%2d %s data=%#x"
	commands, err := bus.processSpiFiles(sdio, clk, enable)
	if err != nil {
		return err
	}
	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	var timings *os.File
	if timingsOutput != "" {
		log.Println("creating timings file", timingsOutput)
		timings, err = os.Create(timingsOutput)
		if err != nil {
			return err
		}
		defer timings.Close()
	}

	for _, action := range commands {
		if (bus.OmitRead && !action.Cmd.Write()) || (bus.OmitWrite && action.Cmd.Write()) {
			continue
		} else if bus.OmitReadData && !action.Cmd.Write() {
			action.Data = []byte{}
		} else if bus.PadDataToWord && len(action.Data)%4 != 0 {
			pad := 4 - len(action.Data)%4
			action.Data = append(action.Data[:len(action.Data):len(action.Data)], make([]byte, pad)...)
		}
		bus.interpretBytes(action.Data)
		_, err = fmt.Fprintf(fp, fmtMsg, action.Num, action.Cmd.String(), action.Data)
		if err != nil {
			return err
		}
		if name, ok := bus.Regmap[action.Cmd.Addr]; ok && action.Cmd.HasAddr() {
			fmt.Fprintf(fp, "  (%s)", name)
		}
		fmt.Fprintln(fp)
		if timings != nil {
			fmt.Fprintf(timings, "t=%f\tdata=%#x\n", action.Start, action.Data)
		}
	}
	return nil
}

func (bus *BusCtl) processSpiFiles(fsdio, fclk, fenable string) ([]rputx, error) {
	sdio, err := opendigital(fsdio)
	if err != nil {
		return nil, err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return nil, err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return nil, err
	}
	spi := analyzers.SPI{}
	// The data line is shared, so it serves as both SDO and SDI.
	txs, _ := spi.Scan(clk, enable, sdio, sdio)
	return bus.process(txs), nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// RPUCmd is one decoded host port transaction: an opcode, a 24-bit bus
// offset for the memory opcodes, and the data that followed.
type RPUCmd struct {
	Op   Opcode
	Addr uint32
}

func (cmd *RPUCmd) Write() bool {
	return cmd.Op == OpWrite || cmd.Op == OpWRSR2
}

// HasAddr returns whether the opcode carries an address phase.
func (cmd *RPUCmd) HasAddr() bool {
	return cmd.Op == OpWrite || cmd.Op == OpRead || cmd.Op == OpFastRead
}

func (cmd *RPUCmd) String() string {
	if !cmd.HasAddr() {
		return fmt.Sprintf("op=%-8s %24s", cmd.Op.String(), "")
	}
	return fmt.Sprintf("op=%-8s addr=%#08x rgn=%-8s", cmd.Op.String(), cmd.Addr, regionOf(cmd.Addr))
}

func (bus *BusCtl) CommandFromBytes(b []byte) (cmd RPUCmd, data []byte) {
	if len(b) == 0 {
		cmd.Op = opInvalid
		return cmd, b
	}
	cmd.Op = Opcode(b[0])
	switch cmd.Op {
	case OpRDSR1, OpRDSR2, OpWRSR2:
		data = b[1:]
	case OpWrite, OpRead, OpFastRead:
		if len(b) < 4 {
			cmd.Op = opInvalid
			return cmd, b
		}
		_ = b[3]
		cmd.Addr = uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		data = b[4:]
		if cmd.Op == OpFastRead && len(data) > 0 {
			data = data[1:] // Dummy byte between address and data.
		}
	default:
		data = b[1:]
	}
	if bus.TrimForce > 0 {
		data = data[:max(0, len(data)-int(bus.TrimForce))]
	}
	if bus.TrimStatus && len(data) >= 4 {
		data = data[:len(data)-4]
	}
	return cmd, data
}

type rputx struct {
	Num   int
	Cmd   RPUCmd
	Data  []byte
	Start float64
}

func (bus *BusCtl) process(txs []analyzers.TxSPI) (rtxs []rputx) {
	var accumulativeResults int = 1
	for i := 0; i < len(txs); i++ {
		tx := txs[i]
		cmd, data := bus.CommandFromBytes(tx.SDO)
		// Collapse runs of identical transactions. Power status polls
		// while the RPU wakes produce long runs of these.
		for j := i + 1; j < len(txs); j++ {
			nextcmd, nextdata := bus.CommandFromBytes(txs[j].SDO)
			if nextcmd != cmd || !bytes.Equal(data, nextdata) {
				break
			}
			accumulativeResults++
			i = j
		}
		rtxs = append(rtxs, rputx{
			Num:   accumulativeResults,
			Cmd:   cmd,
			Data:  data,
			Start: tx.StartTime(),
		})
		accumulativeResults = 1
	}
	return rtxs
}

// Opcode is the first byte of a host port transaction.
type Opcode uint16

const (
	// Memory opcodes: opcode, 24-bit bus offset, then data.
	OpWrite    Opcode = 0x02
	OpRead     Opcode = 0x03
	OpFastRead Opcode = 0x0B
	// Status register opcodes, no address phase.
	OpRDSR1 Opcode = 0x1F
	OpRDSR2 Opcode = 0x2F
	OpWRSR2 Opcode = 0x3F

	opInvalid Opcode = 0x1FF
)

func (op Opcode) String() (s string) {
	switch op {
	case OpWrite:
		s = "write"
	case OpRead:
		s = "read"
	case OpFastRead:
		s = "fastread"
	case OpRDSR1:
		s = "rdsr1"
	case OpRDSR2:
		s = "rdsr2"
	case OpWRSR2:
		s = "wrsr2"
	case opInvalid:
		s = "invalid"
	default:
		s = "unknown"
	}
	return s
}

// busRegions maps the linear bus window back to the RPU regions.
var busRegions = []struct {
	start uint32
	size  uint32
	name  string
}{
	{rpu.BUS_SYSBUS, rpu.ADDR_SBUS_END - rpu.ADDR_SBUS_START + 1, "sysbus"},
	{rpu.BUS_PBUS, rpu.ADDR_PBUS_END - rpu.ADDR_PBUS_START + 1, "pbus"},
	{rpu.BUS_GRAM, rpu.ADDR_GRAM_END - rpu.ADDR_GRAM_START + 1, "gram"},
	{rpu.BUS_PKTRAM, rpu.ADDR_PKTRAM_END - rpu.ADDR_PKTRAM_START + 1, "pktram"},
	{rpu.BUS_LMAC_ROM, rpu.ADDR_LMAC_ROM_END - rpu.ADDR_LMAC_ROM_START + 1, "lmac.rom"},
	{rpu.BUS_LMAC_RET, rpu.ADDR_LMAC_RET_END - rpu.ADDR_LMAC_RET_START + 1, "lmac.ret"},
	{rpu.BUS_LMAC_SCRATCH, rpu.ADDR_LMAC_SCRATCH_END - rpu.ADDR_LMAC_SCRATCH_START + 1, "lmac.scr"},
	{rpu.BUS_UMAC_ROM, rpu.ADDR_UMAC_ROM_END - rpu.ADDR_UMAC_ROM_START + 1, "umac.rom"},
	{rpu.BUS_UMAC_RET, rpu.ADDR_UMAC_RET_END - rpu.ADDR_UMAC_RET_START + 1, "umac.ret"},
	{rpu.BUS_UMAC_SCRATCH, rpu.ADDR_UMAC_SCRATCH_END - rpu.ADDR_UMAC_SCRATCH_START + 1, "umac.scr"},
}

func regionOf(offset uint32) string {
	for _, r := range busRegions {
		if offset >= r.start && offset-r.start < r.size {
			return r.name
		}
	}
	return "unknown"
}

var interpretOnce sync.Once

func (bus *BusCtl) interpretBytes(data []byte) {
	if bus.WordInterpreter == nil || bus.WordInterpreter == binary.ByteOrder(binary.LittleEndian) {
		return // Wire order, nothing to do.
	}
	interpretOnce.Do(func() {
		log.Println("interpreting bytes as words in", bus.WordInterpreter.String(), "order")
	})
	for len(data) >= 4 {
		word := binary.LittleEndian.Uint32(data[:4])
		bus.WordInterpreter.PutUint32(data[:4], word)
		data = data[4:]
	}
}

func max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
