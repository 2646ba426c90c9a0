package backend

import (
	"testing"

	"github.com/oisee/ppc-codegen/pkg/emu"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// TestBrcondUnresolvedThenPatched walks the documented emission: compare,
// placeholder branch, relocation patch once the label resolves.
func TestBrcondUnresolvedThenPatched(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	l := ctx.NewLabel()
	if err := b.EmitOp(tcg.OpBrcond,
		[]tcg.Arg{3, 0, tcg.Arg(tcg.CondEQ), tcg.Arg(l)},
		[]bool{false, true, true, true}); err != nil {
		t.Fatal(err)
	}

	wantWords(t, ctx, []uint32{0x2f830000, 0x419e0000})
	if ctx.Pending() != 1 {
		t.Fatalf("pending relocs = %d, want 1", ctx.Pending())
	}

	// Resolve the label three words past the compare.
	if err := ctx.ResolveLabel(l, ctx.Buf.Base()+12); err != nil {
		t.Fatal(err)
	}
	if got := ctx.Buf.Word(4); got != 0x419e0008 {
		t.Errorf("patched bc = %#08x, want 0x419e0008", got)
	}
}

// TestBrcondOutcomes executes every condition in both polarities. The
// fallthrough slot sets a marker register; a taken branch skips it.
func TestBrcondOutcomes(t *testing.T) {
	cases := []struct {
		cond  tcg.Cond
		a, b  uint32
		konst bool
		taken bool
	}{
		{tcg.CondEQ, 5, 5, true, true},
		{tcg.CondEQ, 5, 6, true, false},
		{tcg.CondNE, 5, 6, true, true},
		{tcg.CondNE, 5, 5, true, false},
		{tcg.CondLT, 0xffffffff, 0, true, true},  // -1 < 0 signed
		{tcg.CondLT, 1, 0, true, false},
		{tcg.CondGE, 1, 0, true, true},
		{tcg.CondLE, 3, 3, true, true},
		{tcg.CondGT, 4, 3, true, true},
		{tcg.CondGT, 3, 4, true, false},
		{tcg.CondLTU, 1, 0xffffffff, true, true}, // 1 < huge unsigned
		{tcg.CondLTU, 0xffffffff, 1, true, false},
		{tcg.CondGEU, 0xffffffff, 1, true, true},
		{tcg.CondLEU, 7, 7, true, true},
		{tcg.CondGTU, 8, 7, true, true},
		// Register forms and constants beyond 16 bits.
		{tcg.CondEQ, 0x12345678, 0x12345678, true, true},
		{tcg.CondLT, 5, 0x12345678, true, true},
		{tcg.CondLTU, 5, 0x80000000, true, true},
		{tcg.CondEQ, 9, 9, false, true},
		{tcg.CondGTU, 0x80000000, 1, false, true},
	}
	for _, tc := range cases {
		b, ctx := newTestBackend(t, nil)
		l := ctx.NewLabel()
		if err := b.EmitOp(tcg.OpBrcond,
			[]tcg.Arg{10, tc.b, tcg.Arg(tc.cond), tcg.Arg(l)},
			[]bool{false, tc.konst, true, true}); err != nil {
			t.Fatal(err)
		}
		b.EmitMovi(20, 1)
		if err := ctx.ResolveLabel(l, ctx.Buf.Addr()); err != nil {
			t.Fatal(err)
		}

		m := execute(t, ctx, func(m *emu.Machine) {
			m.R[10] = tc.a
			if !tc.konst {
				m.R[tc.b] = tc.b
			}
		})
		if taken := m.R[20] == 0; taken != tc.taken {
			t.Errorf("brcond %s %#x,%#x (const=%v): taken=%v, want %v",
				tc.cond, tc.a, tc.b, tc.konst, taken, tc.taken)
		}
	}
}

// TestBrcond2EQ covers the double-word equality chain: the user label is
// reached only when both halves match; differing low halves fall through
// the local label without touching the user path.
func TestBrcond2EQ(t *testing.T) {
	cases := []struct {
		al, ah, bl, bh uint32
		taken          bool
	}{
		{0x1111, 0x2222, 0x1111, 0x2222, true},
		{0x1111, 0x2222, 0x1111, 0x9999, false}, // high halves differ
		{0x1111, 0x2222, 0x9999, 0x2222, false}, // low halves differ
		{0x1111, 0x2222, 0x9999, 0x9999, false},
	}
	for _, tc := range cases {
		b, ctx := newTestBackend(t, nil)
		user := ctx.NewLabel()
		if err := b.EmitOp(tcg.OpBrcond2,
			[]tcg.Arg{10, 11, 12, 13, tcg.Arg(tcg.CondEQ), tcg.Arg(user)},
			[]bool{false, false, false, false, true, true}); err != nil {
			t.Fatal(err)
		}
		b.EmitMovi(20, 1)
		if err := ctx.ResolveLabel(user, ctx.Buf.Addr()); err != nil {
			t.Fatal(err)
		}

		m := execute(t, ctx, func(m *emu.Machine) {
			m.R[10], m.R[11] = tc.al, tc.ah
			m.R[12], m.R[13] = tc.bl, tc.bh
		})
		if taken := m.R[20] == 0; taken != tc.taken {
			t.Errorf("brcond2 eq %#x:%#x vs %#x:%#x: taken=%v, want %v",
				tc.ah, tc.al, tc.bh, tc.bl, taken, tc.taken)
		}
	}
}

// TestBrcond2Ordered checks the high-half-first decision chain for an
// ordered unsigned comparison.
func TestBrcond2Ordered(t *testing.T) {
	cases := []struct {
		al, ah, bl, bh uint32
		taken          bool
	}{
		{0, 1, 0xffffffff, 0, true},  // high decides: 1:0 > 0:ffffffff
		{0, 0, 1, 0, false},          // high equal, low decides: 0 < 1
		{2, 0, 1, 0, true},           // high equal, low decides: 2 > 1
		{0, 0, 0, 1, false},          // high decides the other way
		{5, 7, 5, 7, false},          // equal is not greater
	}
	for _, tc := range cases {
		b, ctx := newTestBackend(t, nil)
		user := ctx.NewLabel()
		if err := b.EmitOp(tcg.OpBrcond2,
			[]tcg.Arg{10, 11, 12, 13, tcg.Arg(tcg.CondGTU), tcg.Arg(user)},
			[]bool{false, false, false, false, true, true}); err != nil {
			t.Fatal(err)
		}
		b.EmitMovi(20, 1)
		if err := ctx.ResolveLabel(user, ctx.Buf.Addr()); err != nil {
			t.Fatal(err)
		}

		m := execute(t, ctx, func(m *emu.Machine) {
			m.R[10], m.R[11] = tc.al, tc.ah
			m.R[12], m.R[13] = tc.bl, tc.bh
		})
		if taken := m.R[20] == 0; taken != tc.taken {
			t.Errorf("brcond2 gtu %#x:%#x vs %#x:%#x: taken=%v, want %v",
				tc.ah, tc.al, tc.bh, tc.bl, taken, tc.taken)
		}
	}
}

// TestBrForward emits an unconditional branch to a not-yet-known label.
func TestBrForward(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	l := ctx.NewLabel()
	if err := b.EmitOp(tcg.OpBr, []tcg.Arg{tcg.Arg(l)}, []bool{true}); err != nil {
		t.Fatal(err)
	}
	b.EmitMovi(20, 1) // skipped
	if err := ctx.ResolveLabel(l, ctx.Buf.Addr()); err != nil {
		t.Fatal(err)
	}
	b.EmitMovi(21, 2)

	m := execute(t, ctx, nil)
	if m.R[20] != 0 {
		t.Error("branch fell through the skipped slot")
	}
	if m.R[21] != 2 {
		t.Errorf("r21 = %d, want 2", m.R[21])
	}
}

// TestDiv2FastPath: a zero high word shrinks the division to an inline
// divw/divwu with the remainder reconstructed by multiply-subtract.
func TestDiv2FastPath(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpDivu2, []tcg.Arg{6, 3, 4, 4, 5}, []bool{false, false, false, false, false}); err != nil {
		t.Fatal(err)
	}
	trampolined := false
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[3] = 0   // dividend high
		m.R[4] = 100 // dividend low
		m.R[5] = 7
		m.Hooks[uint32(testConfig().UdivTrampoline)] = func(*emu.Machine) { trampolined = true }
	})
	if trampolined {
		t.Error("fast path should not call the trampoline")
	}
	if m.R[6] != 14 {
		t.Errorf("quotient = %d, want 14", m.R[6])
	}
	if m.R[3] != 2 {
		t.Errorf("remainder = %d, want 2", m.R[3])
	}
}

// TestDiv2SlowPath: a nonzero high word goes through the trampoline.
func TestDiv2SlowPath(t *testing.T) {
	for _, uns := range []bool{false, true} {
		op := tcg.OpDiv2
		target := testConfig().DivTrampoline
		if uns {
			op = tcg.OpDivu2
			target = testConfig().UdivTrampoline
		}
		b, ctx := newTestBackend(t, nil)
		if err := b.EmitOp(op, []tcg.Arg{6, 3, 4, 4, 5}, []bool{false, false, false, false, false}); err != nil {
			t.Fatal(err)
		}
		called := false
		m := execute(t, ctx, func(m *emu.Machine) {
			m.R[3] = 1
			m.R[4] = 0
			m.R[5] = 7
			m.Hooks[uint32(target)] = func(m *emu.Machine) {
				called = true
				m.R[3] = 0x123 // remainder
				m.R[4] = 0x456 // quotient low
			}
		})
		if !called {
			t.Errorf("uns=%v: trampoline not called", uns)
		}
		if m.R[3] != 0x123 || m.R[4] != 0x456 {
			t.Errorf("uns=%v: results clobbered after return: r3=%#x r4=%#x", uns, m.R[3], m.R[4])
		}
	}
}

// TestCallJmpRegisterForms route through LR and CTR respectively.
func TestCallJmpRegisterForms(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpCall, []tcg.Arg{10}, []bool{false}); err != nil {
		t.Fatal(err)
	}
	called := false
	m := execute(t, ctx, func(m *emu.Machine) {
		m.R[10] = 0xf000
		m.Hooks[0xf000] = func(*emu.Machine) { called = true }
	})
	if !called {
		t.Error("register call did not reach the target")
	}
	_ = m

	b2, ctx2 := newTestBackend(t, nil)
	if err := b2.EmitOp(tcg.OpJmp, []tcg.Arg{10}, []bool{false}); err != nil {
		t.Fatal(err)
	}
	words := ctx2.Buf.Words()
	if len(words) != 2 || words[0] != 0x7d4903a6 || words[1] != 0x4e800420 {
		t.Errorf("jmp reg: emitted %#08x, want mtctr r10; bcctr", words)
	}
}

// TestBranchFarTarget falls back to the CTR trampoline when the direct
// displacement cannot reach.
func TestBranchFarTarget(t *testing.T) {
	b, ctx := newTestBackend(t, nil)
	if err := b.EmitOp(tcg.OpJmp, []tcg.Arg{0x7ff00004}, []bool{true}); err != nil {
		t.Fatal(err)
	}
	words := ctx.Buf.Words()
	// movi pair, mtctr, bcctr
	if len(words) != 4 {
		t.Fatalf("far jmp emitted %d words: %#08x", len(words), words)
	}
	if words[2] != 0x7c0903a6 {
		t.Errorf("word 2 = %#08x, want mtctr r0", words[2])
	}
	if words[3] != 0x4e800420 {
		t.Errorf("word 3 = %#08x, want bcctr", words[3])
	}
}
