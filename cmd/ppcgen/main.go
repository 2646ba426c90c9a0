package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oisee/ppc-codegen/pkg/backend"
	"github.com/oisee/ppc-codegen/pkg/code"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ppcgen",
		Short: "PPC32 dynamic code generator — lower IR blocks to machine code",
	}

	// emit command
	var base uint32
	var addrBits int
	var guestBE bool

	emitCmd := &cobra.Command{
		Use:   "emit",
		Short: "Lower the built-in demonstration block and dump the emitted code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(int32(base), addrBits, guestBE)
		},
	}
	emitCmd.Flags().Uint32Var(&base, "base", 0x100000, "code buffer load address")
	emitCmd.Flags().IntVar(&addrBits, "addr-bits", 32, "guest address width (32 or 64)")
	emitCmd.Flags().BoolVar(&guestBE, "guest-be", false, "guest is big-endian (disables byte swap)")
	rootCmd.AddCommand(emitCmd)

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm [file]",
		Short: "Disassemble hex instruction words from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runDisasm(in)
		},
	}
	rootCmd.AddCommand(disasmCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// demoConfig is a plausible softmmu geometry for the demonstration block.
func demoConfig(addrBits int, guestBE bool) backend.Config {
	return backend.Config{
		AddrBits:       addrBits,
		PhysAddrBits:   32,
		GuestBigEndian: guestBE,
		PageBits:       12,
		TLBBits:        8,
		TLBEntryBits:   4,
		TLBTableOff:    0x200,
		AddrReadOff:    0,
		AddrWriteOff:   4,
		AddendOff:      8,
		LdHelpers:      [4]int32{0x4000, 0x4100, 0x4200, 0x4300},
		StHelpers:      [4]int32{0x4400, 0x4500, 0x4600, 0x4700},
		DivTrampoline:  0x4800,
		UdivTrampoline: 0x4900,
	}
}

func runEmit(base int32, addrBits int, guestBE bool) error {
	buf := code.NewBuffer(base)
	ctx := tcg.NewContext(buf)
	b, err := backend.New(ctx, demoConfig(addrBits, guestBE))
	if err != nil {
		return err
	}

	if err := b.EmitPrologue(); err != nil {
		return err
	}

	type irOp struct {
		op    tcg.Op
		args  []tcg.Arg
		konst []bool
	}
	skip := ctx.NewLabel()
	block := []irOp{
		{tcg.OpMovi, []tcg.Arg{14, 0x12345678}, []bool{false, true}},
		{tcg.OpMovi, []tcg.Arg{15, 100}, []bool{false, true}},
		{tcg.OpAdd, []tcg.Arg{16, 14, 15}, []bool{false, false, false}},
		{tcg.OpAnd, []tcg.Arg{16, 16, 0xff00}, []bool{false, false, true}},
		{tcg.OpBrcond, []tcg.Arg{16, 0, tcg.Arg(tcg.CondEQ), tcg.Arg(skip)}, []bool{false, true, true, true}},
		{tcg.OpQemuLd32u, []tcg.Arg{17, 16, 0}, []bool{false, false, true}},
		{tcg.OpQemuSt32, []tcg.Arg{17, 16, 0}, []bool{false, false, true}},
	}
	for _, o := range block {
		if err := b.EmitOp(o.op, o.args, o.konst); err != nil {
			return fmt.Errorf("%s: %w", o.op, err)
		}
	}
	if err := ctx.ResolveLabel(skip, buf.Addr()); err != nil {
		return err
	}
	if err := b.EmitOp(tcg.OpExitTB, []tcg.Arg{0}, []bool{true}); err != nil {
		return err
	}

	fmt.Printf("PPC32 code generator\n")
	fmt.Printf("  Base:       %#x\n", base)
	fmt.Printf("  Guest:      %d-bit addresses, ", addrBits)
	if guestBE {
		fmt.Printf("big-endian\n")
	} else {
		fmt.Printf("little-endian\n")
	}
	fmt.Printf("  Emitted:    %d instructions (%d bytes)\n\n", buf.Len()/4, buf.Len())

	dump(buf)
	return nil
}

// dump prints emitted words with disassembly. On narrow terminals the
// disassembly column is dropped.
func dump(buf *code.Buffer) {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	for i, word := range buf.Words() {
		addr := uint32(buf.AddrOf(int32(i * 4)))
		if width < 40 {
			fmt.Printf("%08x: %08x\n", addr, word)
			continue
		}
		fmt.Printf("%08x: %08x  %s\n", addr, word, ppc.Disasm(addr, word))
	}
}

func runDisasm(in *os.File) error {
	scanner := bufio.NewScanner(in)
	var addr uint32
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			tok = strings.TrimPrefix(tok, "0x")
			word, err := strconv.ParseUint(tok, 16, 32)
			if err != nil {
				return fmt.Errorf("bad word %q: %w", tok, err)
			}
			fmt.Printf("%08x: %08x  %s\n", addr, uint32(word), ppc.Disasm(addr, uint32(word)))
			addr += 4
		}
	}
	return scanner.Err()
}
