// Package symtab implements the assembler's symbol table: a fixed-bucket
// hash (djb2-hashed keys, linked list per bucket) whose symbols carry an
// intrusive list of pending forward references. Defining a symbol walks and
// discharges its pending list by patching the referencing line's bytes
// directly; anything still pending at end-of-input is an undefined-label
// error.
package symtab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beaglebone/snap6502/line"
)

// Kind classifies a symbol's nature.
type Kind int

const (
	KindUndefined Kind = iota
	KindConstant       // defined via EQU / '='
	KindLabel          // defined by appearing as a line label
	KindVariable       // ']name', may be redefined
)

// RefKind selects how a pending forward reference should be patched once its
// symbol's value becomes known.
type RefKind int

const (
	RefAbsoluteOrZP RefKind = iota // instruction operand committed to zero-page or absolute sizing ahead of the value; see patch
	RefLowByte                     // 1 byte: value & 0xff
	RefHighByte                    // 1 byte: (value >> 8) & 0xff
	RefRelative                    // 1 byte: signed branch offset from FromPC
	RefWord                        // 2 bytes LE, unconditionally (DA/DW directive data, no addressing-mode ambiguity)
)

// PendingRef is one not-yet-resolvable use of a symbol, recorded on the
// symbol itself so that defining it can walk straight to every dependent.
type PendingRef struct {
	Info            *line.Info
	Offset          int
	Ref             RefKind
	ZeroPageAllowed bool
	FromPC          uint16 // PC immediately after the referencing instruction, for RefRelative
}

// Symbol is one entry in the table.
type Symbol struct {
	Name    string
	Kind    Kind
	Value   uint16
	Defined bool
	Pending []*PendingRef

	// VarHistory is the redefinition chain for KindVariable symbols, in
	// textual order. A reference resolves to the latest entry known at the
	// time of lookup; a forward reference binds to VarHistory[0] once it
	// exists, per spec.
	VarHistory []VarEntry
}

// VarEntry is one assignment in a variable symbol's history.
type VarEntry struct {
	Line  int
	Value uint16
}

type bucketEntry struct {
	key  string
	sym  *Symbol
	next *bucketEntry
}

// DefaultBucketCount matches the original assembler's fixed table size.
const DefaultBucketCount = 511

// Table is the bucketed symbol table plus local-label scoping state.
type Table struct {
	buckets    []*bucketEntry
	count      int
	lastGlobal string
}

// NewTable creates a table with bucketCount buckets (DefaultBucketCount if 0).
func NewTable(bucketCount int) *Table {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	return &Table{buckets: make([]*bucketEntry, bucketCount)}
}

// djb2 is the hash the original C symbol table used over key bytes.
func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + uint32(s[i])
	}
	return h
}

func (t *Table) bucketIndex(key string) int {
	return int(djb2(key) % uint32(len(t.buckets)))
}

func (t *Table) find(key string) *Symbol {
	idx := t.bucketIndex(key)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return e.sym
		}
	}
	return nil
}

func (t *Table) insert(key string, sym *Symbol) {
	idx := t.bucketIndex(key)
	t.buckets[idx] = &bucketEntry{key: key, sym: sym, next: t.buckets[idx]}
	t.count++
}

// Count returns the number of distinct symbols in the table.
func (t *Table) Count() int {
	return t.count
}

// SetLastGlobal records the most recently seen global label, used to mangle
// local (':name') symbol keys.
func (t *Table) SetLastGlobal(name string) {
	t.lastGlobal = name
}

// LastGlobal returns the most recently seen global label.
func (t *Table) LastGlobal() string {
	return t.lastGlobal
}

// MangleLocal produces the lookup key for a local label under the current
// last global: "{last_global}.{local}".
func (t *Table) MangleLocal(local string) string {
	return fmt.Sprintf("%s.%s", t.lastGlobal, local)
}

// Lookup finds a symbol by its already-mangled key (bare name for globals
// and variables, MangleLocal output for locals). It never creates a pending
// forward-reference entry itself; callers needing that call Reference.
func (t *Table) Lookup(key string) (*Symbol, bool) {
	sym := t.find(key)
	if sym == nil {
		return nil, false
	}
	return sym, true
}

// Reference records a pending forward reference against key, creating an
// undefined placeholder symbol if none exists yet. Returns the symbol so the
// caller can inspect Defined/Value immediately if it turns out to already be
// known.
func (t *Table) Reference(key string, ref *PendingRef) *Symbol {
	sym := t.find(key)
	if sym == nil {
		sym = &Symbol{Name: key, Kind: KindUndefined}
		t.insert(key, sym)
	}
	if !sym.Defined {
		sym.Pending = append(sym.Pending, ref)
	}
	return sym
}

// Define creates or updates a symbol's value. Non-variable symbols may be
// defined exactly once; redefining one is reported by the caller as
// "'name' symbol has already been defined." (kept here as an error return so
// callers can form the exact diagnostic with their own position). Defining a
// symbol for the first time discharges every pending forward reference.
func (t *Table) Define(key string, kind Kind, value uint16, atLine int) (*Symbol, error) {
	sym := t.find(key)
	if sym == nil {
		sym = &Symbol{Name: key, Kind: KindUndefined}
		t.insert(key, sym)
	}

	if kind == KindVariable {
		sym.Kind = KindVariable
		first := !sym.Defined
		sym.VarHistory = append(sym.VarHistory, VarEntry{Line: atLine, Value: value})
		sym.Value = value
		sym.Defined = true
		if first {
			if err := t.discharge(sym, value); err != nil {
				return sym, err
			}
		}
		return sym, nil
	}

	if sym.Defined {
		return sym, fmt.Errorf("'%s' symbol has already been defined.", sym.Name)
	}

	sym.Kind = kind
	sym.Value = value
	sym.Defined = true
	if err := t.discharge(sym, value); err != nil {
		return sym, err
	}
	return sym, nil
}

// discharge patches every pending reference against sym now that value is
// known, then clears the pending list.
func (t *Table) discharge(sym *Symbol, value uint16) error {
	for _, p := range sym.Pending {
		if err := patch(p, sym.Name, value); err != nil {
			return err
		}
	}
	sym.Pending = nil
	return nil
}

// patch fixes up one pending reference now that its symbol's value is known.
//
// RefAbsoluteOrZP is an instruction operand whose addressing mode had to be
// committed before the value was known: a forward reference always commits
// to absolute sizing unless the instruction has no absolute encoding at all,
// in which case it was forced into zero page (see operand.go's sizedMode).
// Reproducing the original assembler's behavior exactly: a reference that
// was forced into zero page is rejected if the final value doesn't fit, and
// a reference that committed to absolute is rejected if the final value
// turns out to fit in zero page after all -- the opcode byte already chosen
// can't be swapped for the other mode's opcode after the fact.
func patch(p *PendingRef, name string, value uint16) error {
	switch p.Ref {
	case RefAbsoluteOrZP:
		if p.ZeroPageAllowed {
			if value > 0xff {
				return fmt.Errorf("Couldn't properly infer size of a forward reference in '%s' operand.", name)
			}
			p.Info.PatchByte(p.Offset, byte(value))
			return nil
		}
		if value <= 0xff {
			return fmt.Errorf("Couldn't properly infer size of a forward reference in '%s' operand.", name)
		}
		p.Info.PatchWord(p.Offset, value)
	case RefLowByte:
		p.Info.PatchByte(p.Offset, byte(value))
	case RefHighByte:
		p.Info.PatchByte(p.Offset, byte(value>>8))
	case RefWord:
		p.Info.PatchWord(p.Offset, value)
	case RefRelative:
		offset := int(value) - int(p.FromPC)
		if offset < -128 || offset > 127 {
			return fmt.Errorf("Relative offset of '%d' exceeds the allowed -128 to 127 range", offset)
		}
		p.Info.PatchByte(p.Offset, byte(int8(offset)))
	}
	return nil
}

// ResolveForwardReferences is called at end-of-input: every symbol that
// still carries pending references was never defined.
func (t *Table) ResolveForwardReferences() []*Symbol {
	var undefined []*Symbol
	for _, bucket := range t.buckets {
		for e := bucket; e != nil; e = e.next {
			if !e.sym.Defined && len(e.sym.Pending) > 0 {
				undefined = append(undefined, e.sym)
			}
		}
	}
	return undefined
}

// All returns every symbol in the table, unordered.
func (t *Table) All() []*Symbol {
	out := make([]*Symbol, 0, t.count)
	for _, bucket := range t.buckets {
		for e := bucket; e != nil; e = e.next {
			out = append(out, e.sym)
		}
	}
	return out
}

// Dump renders every defined symbol sorted by address, then name, as a
// fixed-width table. Adapted from the reference cross-reference dumper's
// sorted, fixed-width table style.
func Dump(t *Table) string {
	syms := t.All()
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].Value != syms[j].Value {
			return syms[i].Value < syms[j].Value
		}
		return syms[i].Name < syms[j].Name
	})

	var sb strings.Builder
	for _, s := range syms {
		if !s.Defined {
			continue
		}
		kind := "label"
		switch s.Kind {
		case KindConstant:
			kind = "const"
		case KindVariable:
			kind = "var"
		}
		fmt.Fprintf(&sb, "%-30s %-6s 0x%04X\n", s.Name, kind, s.Value)
	}
	return sb.String()
}
