package tcg

import (
	"fmt"

	"github.com/oisee/ppc-codegen/pkg/code"
)

// Label is a branch target inside the translation block. It is either
// resolved to an absolute address or still pending, with relocation
// records queued against it.
type Label struct {
	HasValue bool
	Value    int32
}

// Reloc records one branch site waiting for a label to resolve.
type Reloc struct {
	Off    int32 // byte offset of the branch word
	Kind   code.RelocKind
	Label  int
	Addend int32
}

// Context carries the per-translation state shared between the IR driver
// and the backend: the code buffer, labels, pending relocations, and the
// goto_tb offset tables the outer runtime reads back.
type Context struct {
	Buf *code.Buffer

	labels []Label
	relocs []Reloc

	// TBJmpOffset[n] is the byte offset of the reserved direct-jump slot
	// for chained block n; TBNextOffset[n] is the offset just past it.
	TBJmpOffset  map[Arg]int32
	TBNextOffset map[Arg]int32
}

// NewContext wraps a code buffer for one translation block.
func NewContext(buf *code.Buffer) *Context {
	return &Context{
		Buf:          buf,
		TBJmpOffset:  make(map[Arg]int32),
		TBNextOffset: make(map[Arg]int32),
	}
}

// NewLabel allocates a fresh unresolved label and returns its index.
func (c *Context) NewLabel() int {
	c.labels = append(c.labels, Label{})
	return len(c.labels) - 1
}

// Label returns the label with the given index.
func (c *Context) Label(idx int) (*Label, error) {
	if idx < 0 || idx >= len(c.labels) {
		return nil, fmt.Errorf("label %d out of range", idx)
	}
	return &c.labels[idx], nil
}

// OutReloc queues a relocation for the branch word at byte offset off.
func (c *Context) OutReloc(off int32, kind code.RelocKind, label int, addend int32) {
	c.relocs = append(c.relocs, Reloc{Off: off, Kind: kind, Label: label, Addend: addend})
}

// ResolveLabel binds a label to the absolute address value and patches
// every branch queued against it. Resolution is single-assignment.
func (c *Context) ResolveLabel(idx int, value int32) error {
	l, err := c.Label(idx)
	if err != nil {
		return err
	}
	if l.HasValue {
		return fmt.Errorf("label %d already resolved", idx)
	}
	l.HasValue = true
	l.Value = value

	kept := c.relocs[:0]
	for _, r := range c.relocs {
		if r.Label != idx {
			kept = append(kept, r)
			continue
		}
		if err := c.Buf.PatchReloc(r.Off, r.Kind, value, r.Addend); err != nil {
			return fmt.Errorf("label %d: %w", idx, err)
		}
	}
	c.relocs = kept
	return nil
}

// Pending returns the number of unresolved relocation records. The driver
// checks this is zero before handing the block to execution.
func (c *Context) Pending() int { return len(c.relocs) }
