package backend

import (
	"testing"

	"github.com/oisee/ppc-codegen/pkg/emu"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

const envBase = 0x40000

// emitted reports whether any emitted word decodes to the mnemonic.
func emitted(ctx *tcg.Context, mnemonic string) bool {
	for _, w := range ctx.Buf.Words() {
		if info, ok := ppc.Lookup(w); ok && info.Mnemonic == mnemonic {
			return true
		}
	}
	return false
}

// fillTLB writes one TLB entry for addr so the fast path hits. write
// selects the addr_write tag slot instead of addr_read.
// hostAddr is where the guest byte should land in machine memory.
func fillTLB(t *testing.T, m *emu.Machine, cfg Config, memIndex int, addr, hostAddr uint32, write bool) {
	t.Helper()
	index := addr >> cfg.PageBits & (uint32(1)<<cfg.TLBBits - 1)
	entry := envBase + uint32(cfg.TLBTableOff) +
		uint32(memIndex)<<(cfg.TLBBits+cfg.TLBEntryBits) +
		index<<cfg.TLBEntryBits

	tag := addr &^ (uint32(1)<<cfg.PageBits - 1)
	slot := entry + uint32(cfg.AddrReadOff)
	if write {
		slot = entry + uint32(cfg.AddrWriteOff)
	}
	if err := m.Store32(slot, tag); err != nil {
		t.Fatal(err)
	}
	if err := m.Store32(entry+uint32(cfg.AddendOff), hostAddr-addr); err != nil {
		t.Fatal(err)
	}
}

func TestQemuLd32uLittleEndianFastPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}

	// The fast path must use the byte-reversed form, never a plain lwz,
	// for a little-endian guest.
	if !emitted(ctx, "lwbrx") {
		t.Error("little-endian 32-bit load emitted no lwbrx")
	}

	slow := false
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		fillTLB(t, m, testConfig(), 0, 0x2344, 0x80344, false)
		copy(m.Mem[0x80344:], []byte{0xbe, 0xba, 0xfe, 0xca})
		m.Hooks[uint32(testConfig().LdHelpers[2])] = func(*emu.Machine) { slow = true }
	})
	if slow {
		t.Error("TLB hit took the slow path")
	}
	if m.R[21] != 0xcafebabe {
		t.Errorf("loaded %#x, want 0xcafebabe", m.R[21])
	}
}

func TestQemuLd32uBigEndianGuest(t *testing.T) {
	b, ctx := newTestBackend(t, func(c *Config) { c.GuestBigEndian = true })
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	if emitted(ctx, "lwbrx") {
		t.Fatal("big-endian guest load emitted lwbrx")
	}

	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		fillTLB(t, m, testConfig(), 0, 0x2344, 0x80344, false)
		copy(m.Mem[0x80344:], []byte{0xca, 0xfe, 0xba, 0xbe})
	})
	if m.R[21] != 0xcafebabe {
		t.Errorf("loaded %#x, want 0xcafebabe", m.R[21])
	}
}

func TestQemuLdSlowPathOnMiss(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 1}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}

	var gotAddr, gotIndex uint32
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		// TLB left empty: the probe must miss and call the helper.
		m.Hooks[uint32(testConfig().LdHelpers[2])] = func(m *emu.Machine) {
			gotAddr, gotIndex = m.R[3], m.R[4]
			m.R[3] = 0x11223344
		}
	})
	if gotAddr != 0x2344 || gotIndex != 1 {
		t.Errorf("helper args = (%#x, %d), want (0x2344, 1)", gotAddr, gotIndex)
	}
	if m.R[21] != 0x11223344 {
		t.Errorf("data = %#x, want helper result", m.R[21])
	}
}

// TestQemuLdMisalignedTakesSlowPath: the alignment bits ride on the tag
// compare, so a misaligned word access misses a valid TLB entry.
func TestQemuLdMisalignedTakesSlowPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	slow := false
	execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2345 // misaligned
		fillTLB(t, m, testConfig(), 0, 0x2345, 0x80345, false)
		m.Hooks[uint32(testConfig().LdHelpers[2])] = func(m *emu.Machine) {
			slow = true
			m.R[3] = 0
		}
	})
	if !slow {
		t.Error("misaligned access stayed on the fast path")
	}
}

func TestQemuLdSignExtendingSlowPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuLd8s, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		m.Hooks[uint32(testConfig().LdHelpers[0])] = func(m *emu.Machine) {
			m.R[3] = 0x80 // helper returns the raw byte
		}
	})
	if m.R[21] != 0xffffff80 {
		t.Errorf("ld8s = %#x, want sign-extended 0xffffff80", m.R[21])
	}
}

func TestQemuLd64FastPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	// args: data (low), data2 (high), addr, mem_index
	if err := b.EmitOp(tcg.OpQemuLd64, []tcg.Arg{21, 22, 20, 0}, []bool{false, false, false, true}); err != nil {
		t.Fatal(err)
	}
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2340
		fillTLB(t, m, testConfig(), 0, 0x2340, 0x80340, false)
		copy(m.Mem[0x80340:], []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef})
	})
	// Byte-swapped pair: each word reversed, pair order inverted.
	if m.R[21] != 0x67452301 {
		t.Errorf("data = %#x, want 0x67452301", m.R[21])
	}
	if m.R[22] != 0xefcdab89 {
		t.Errorf("data2 = %#x, want 0xefcdab89", m.R[22])
	}
}

func TestQemuSt32LittleEndianFastPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuSt32, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		m.R[21] = 0x11223344
		fillTLB(t, m, testConfig(), 0, 0x2344, 0x80344, true)
	})
	want := []byte{0x44, 0x33, 0x22, 0x11}
	for i, by := range m.Mem[0x80344:0x80348] {
		if by != want[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, by, want[i])
		}
	}
}

func TestQemuSt64FastPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuSt64, []tcg.Arg{21, 22, 20, 0}, []bool{false, false, false, true}); err != nil {
		t.Fatal(err)
	}
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2340
		m.R[21] = 0x67452301 // low word as the load fast path produced it
		m.R[22] = 0xefcdab89
		fillTLB(t, m, testConfig(), 0, 0x2340, 0x80340, true)
	})
	want := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	for i, by := range m.Mem[0x80340:0x80348] {
		if by != want[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, by, want[i])
		}
	}
}

// TestQemuSt16SlowPathMasksData: the slow path narrows store data with a
// mask so the helper never sees the high bits.
func TestQemuSt16SlowPathMasksData(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuSt16, []tcg.Arg{21, 20, 2}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	var gotAddr, gotData, gotIndex uint32
	execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		m.R[21] = 0xdead1234
		m.Hooks[uint32(testConfig().StHelpers[1])] = func(m *emu.Machine) {
			gotAddr, gotData, gotIndex = m.R[3], m.R[4], m.R[5]
		}
	})
	if gotAddr != 0x2344 {
		t.Errorf("addr = %#x", gotAddr)
	}
	if gotData != 0x1234 {
		t.Errorf("data = %#x, want masked 0x1234", gotData)
	}
	if gotIndex != 2 {
		t.Errorf("mem_index = %d, want 2", gotIndex)
	}
}

func TestQemuSt64SlowPathMarshalling(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuSt64, []tcg.Arg{21, 22, 20, 0}, []bool{false, false, false, true}); err != nil {
		t.Fatal(err)
	}
	var r3, r5, r6, r7 uint32
	execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2340
		m.R[21] = 0x11111111
		m.R[22] = 0x22222222
		m.Hooks[uint32(testConfig().StHelpers[3])] = func(m *emu.Machine) {
			r3, r5, r6, r7 = m.R[3], m.R[5], m.R[6], m.R[7]
		}
	})
	if r3 != 0x2340 {
		t.Errorf("addr = %#x", r3)
	}
	if r5 != 0x22222222 || r6 != 0x11111111 {
		t.Errorf("data pair = %#x:%#x", r5, r6)
	}
	if r7 != 0 {
		t.Errorf("mem_index = %d", r7)
	}
}

// wideConfig is the 64-bit-guest-address geometry: 8-byte tags, 32-byte
// entries.
func wideConfig(c *Config) {
	c.AddrBits = 64
	c.TLBEntryBits = 5
	c.AddrReadOff = 0
	c.AddrWriteOff = 8
	c.AddendOff = 16
}

func TestQemuLd64BitAddressHit(t *testing.T) {
	b, ctx := newTestBackend(t, wideConfig)
	// args: data, addr_low, addr_high, mem_index
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 19, 0}, []bool{false, false, false, true}); err != nil {
		t.Fatal(err)
	}

	// The probe must combine the two half-compares with crand.
	if !emitted(ctx, "crand") {
		t.Fatal("64-bit address probe emitted no crand")
	}

	cfg := testConfig()
	wideConfig(&cfg)
	slow := false
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344     // address low
		m.R[19] = 0x12345678 // address high
		index := uint32(0x2344) >> cfg.PageBits & (uint32(1)<<cfg.TLBBits - 1)
		entry := uint32(envBase) + uint32(cfg.TLBTableOff) + index<<cfg.TLBEntryBits
		if err := m.Store32(entry, 0x2000); err != nil { // low tag
			t.Fatal(err)
		}
		if err := m.Store32(entry+4, 0x12345678); err != nil { // high tag
			t.Fatal(err)
		}
		if err := m.Store32(entry+uint32(cfg.AddendOff), 0x80344-0x2344); err != nil {
			t.Fatal(err)
		}
		copy(m.Mem[0x80344:], []byte{0xbe, 0xba, 0xfe, 0xca})
		m.Hooks[uint32(cfg.LdHelpers[2])] = func(*emu.Machine) { slow = true }
	})
	if slow {
		t.Error("matching 64-bit address took the slow path")
	}
	if m.R[21] != 0xcafebabe {
		t.Errorf("loaded %#x", m.R[21])
	}
}

func TestQemuLd64BitAddressHighMiss(t *testing.T) {
	b, ctx := newTestBackend(t, wideConfig)
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 19, 0}, []bool{false, false, false, true}); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	wideConfig(&cfg)
	var gotHigh, gotLow, gotIndex uint32
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[27] = envBase
		m.R[20] = 0x2344
		m.R[19] = 0x12345678
		index := uint32(0x2344) >> cfg.PageBits & (uint32(1)<<cfg.TLBBits - 1)
		entry := uint32(envBase) + uint32(cfg.TLBTableOff) + index<<cfg.TLBEntryBits
		if err := m.Store32(entry, 0x2000); err != nil {
			t.Fatal(err)
		}
		if err := m.Store32(entry+4, 0x99999999); err != nil { // wrong high tag
			t.Fatal(err)
		}
		m.Hooks[uint32(cfg.LdHelpers[2])] = func(m *emu.Machine) {
			gotHigh, gotLow, gotIndex = m.R[3], m.R[4], m.R[5]
			m.R[3] = 0x5a5a5a5a
		}
	})
	if gotHigh != 0x12345678 || gotLow != 0x2344 || gotIndex != 0 {
		t.Errorf("helper args = (%#x, %#x, %d)", gotHigh, gotLow, gotIndex)
	}
	if m.R[21] != 0x5a5a5a5a {
		t.Errorf("data = %#x", m.R[21])
	}
}

// TestQemuLd64SlowPathRegisterShuffle: 64-bit load results come back in
// r3:r4 and must reach the destination pair even when it aliases them.
func TestQemuLd64SlowPathRegisterShuffle(t *testing.T) {
	cases := []struct {
		data, data2 tcg.Arg
	}{
		{21, 22},
		{4, 22}, // data in the low result register
		{3, 4},  // fully swapped pair
		{3, 22},
	}
	for _, tc := range cases {
		b, ctx := newTestBackend(t, nil)
		if err := b.EmitOp(tcg.OpQemuLd64, []tcg.Arg{tc.data, tc.data2, 20, 0}, []bool{false, false, false, true}); err != nil {
			t.Fatal(err)
		}
		m := execute(t, ctx, func(m *emu.Machine) {
			m.R[27] = envBase
			m.R[20] = 0x2340
			m.Hooks[uint32(testConfig().LdHelpers[3])] = func(m *emu.Machine) {
				m.R[3] = 0xa1a1a1a1 // value high? helper packs into r3:r4
				m.R[4] = 0xb2b2b2b2
			}
		})
		if m.R[tc.data] != 0xb2b2b2b2 {
			t.Errorf("data reg r%d = %#x, want r4 value", tc.data, m.R[tc.data])
		}
		if m.R[tc.data2] != 0xa1a1a1a1 {
			t.Errorf("data2 reg r%d = %#x, want r3 value", tc.data2, m.R[tc.data2])
		}
	}
}

// TestProbeUsesUpdateForm: the tag fetch must be lwzu, so that after the
// probe the entry pointer register holds the matched entry's tag address,
// which the addend reload depends on.
func TestProbeUsesUpdateForm(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpQemuLd32u, []tcg.Arg{21, 20, 0}, []bool{false, false, true}); err != nil {
		t.Fatal(err)
	}
	if !emitted(ctx, "lwzu") {
		t.Error("probe did not use the update-form tag fetch")
	}
}
