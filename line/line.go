// Package line holds the per-source-line record the assembler core builds
// during its single logical pass: the program counter at that line, the
// bytes it emitted, and enough context for the listing formatter to render
// it. The list is append-only while lines are being produced; back-patching
// a forward reference mutates an existing Info's MachineCode in place,
// which is why callers are handed *Info rather than a copy.
package line

// Info is one processed source line.
type Info struct {
	LineNumber     int
	Filename       string
	PC             uint16
	HasAddress     bool // false suppresses the PC column (inactive DO arm, comment-only line)
	MachineCode    []byte
	InDummySegment bool
	IndentListing  int // nesting depth from PUT/LUP, rendered as extra leading spaces
	IsEquate       bool
	EquValue       uint16
	SourceText     string
}

// List is the append-only sequence of every line processed this run.
type List struct {
	items []*Info
}

// Append records a new line at the end of the list.
func (l *List) Append(i *Info) {
	l.items = append(l.items, i)
}

// Items returns every recorded line, in textual emission order.
func (l *List) Items() []*Info {
	return l.items
}

// PatchByte overwrites a single byte of a previously-emitted line, used when
// a forward reference is resolved after the defining line has already been
// appended.
func (i *Info) PatchByte(offset int, value byte) {
	i.MachineCode[offset] = value
}

// PatchWord overwrites two little-endian bytes of a previously-emitted line.
func (i *Info) PatchWord(offset int, value uint16) {
	i.MachineCode[offset] = byte(value)
	i.MachineCode[offset+1] = byte(value >> 8)
}
