// Package assembler drives the single logical pass that turns stacked
// source lines into a binary image, a symbol table and a listing: parsing
// fields, dispatching directives and mnemonics, evaluating operands,
// reserving and patching bytes, and folding every diagnostic into one
// most-severe-wins run result.
package assembler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/beaglebone/snap6502/binbuf"
	"github.com/beaglebone/snap6502/directive"
	"github.com/beaglebone/snap6502/errs"
	"github.com/beaglebone/snap6502/eval"
	"github.com/beaglebone/snap6502/isa"
	"github.com/beaglebone/snap6502/line"
	"github.com/beaglebone/snap6502/lineparse"
	"github.com/beaglebone/snap6502/listing"
	"github.com/beaglebone/snap6502/source"
	"github.com/beaglebone/snap6502/symtab"
)

// xcState names the three positions of the XC toggle: plain 6502, 65C02, and
// the "stub" mode a second toggle lands in, where every instruction encodes
// as a bare RTS. A third toggle is an error.
const (
	xc6502 = iota
	xc65C02
	xcStub
)

// condFrame is one level of DO/ELSE/FIN nesting.
type condFrame struct {
	parentActive bool
	thisTrue     bool
	haveElse     bool
}

func (f condFrame) activeBranch() bool {
	return f.parentActive && f.thisTrue
}

type capturedLine struct {
	raw        string
	lineNumber int
	filename   string
	indent     int
}

// Assembler holds all state for one assembly run.
type Assembler struct {
	stack source.Stack
	syms  *symtab.Table
	buf   *binbuf.Buffer
	lines line.List
	Diags errs.List

	cond []condFrame
	xc   int

	lastPos errs.Position

	// PutDirs is searched, in order, for a PUT operand that can't be opened
	// as given (relative to the current working directory).
	PutDirs []string
}

// New returns an Assembler ready to assemble one source file via
// AssembleFile.
func New() *Assembler {
	return &Assembler{
		syms: symtab.NewTable(0),
		buf:  binbuf.New(),
	}
}

// AssembleFile loads path as the top-level source and runs the assembler to
// completion. It may be called only once per Assembler.
func (a *Assembler) AssembleFile(path string) error {
	file, err := source.NewTextFileFromPath(path)
	if err != nil {
		a.Diags.Add(errs.NewError(errs.Position{Filename: path}, errs.KindFileNotFound, err.Error()))
		return err
	}
	if err := a.stack.Push(source.NewTextSource(file, 0)); err != nil {
		return err
	}
	a.run()
	return nil
}

func (a *Assembler) run() {
	for {
		raw, src, ok := a.stack.NextLine()
		if !ok {
			break
		}
		a.processLine(raw, src.LineNumber(), src.Filename(), src.Indent())
	}

	for _, sym := range a.syms.ResolveForwardReferences() {
		a.Diags.Add(errs.NewError(a.lastPos, errs.KindSemantic, directive.UndefinedLabelMessage(sym.Name)))
	}
	if len(a.cond) > 0 {
		a.Diags.AddWarning(errs.NewWarning(a.lastPos, errs.KindDirectiveMisuse, directive.WarnDoMissingFin))
	}
}

func (a *Assembler) active() bool {
	if len(a.cond) == 0 {
		return true
	}
	return a.cond[len(a.cond)-1].activeBranch()
}

func (a *Assembler) errorf(pos errs.Position, format string, args ...interface{}) {
	a.Diags.Add(errs.NewError(pos, errs.KindSemantic, fmt.Sprintf(format, args...)))
}

func (a *Assembler) c02Enabled() bool {
	return a.xc >= xc65C02
}

// processLine parses and dispatches one source line. filename/lineNumber
// identify its origin for diagnostics and the listing; indent is the
// PUT/LUP nesting depth used to indent the listing's source column.
func (a *Assembler) processLine(raw string, lineNumber int, filename string, indent int) {
	pos := errs.Position{Filename: filename, Line: lineNumber}
	a.lastPos = pos

	fields := lineparse.Parse(raw)
	if fields.IsBlank || fields.IsCommentOnly {
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	}

	upperOp := strings.ToUpper(fields.Operator)

	// DO/ELSE/FIN/LUP/--^ must be processed even inside an inactive
	// conditional arm, since they are what can reactivate it.
	switch upperOp {
	case "DO":
		a.handleDo(fields.Operand, pos)
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	case "ELSE":
		a.handleElse(pos)
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	case "FIN":
		a.handleFin(pos)
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	case "LUP":
		a.handleLup(fields.Operand, pos)
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	case "--^":
		a.errorf(pos, directive.ErrEndLupWithoutLup)
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	}

	if !a.active() {
		a.lines.Append(&line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw})
		return
	}

	if fields.Label != "" && upperOp != "EQU" && upperOp != "=" {
		a.defineLabel(fields.Label, lineNumber, pos)
	}

	info := &line.Info{LineNumber: lineNumber, Filename: filename, IndentListing: indent, SourceText: raw}

	switch {
	case upperOp == "":
		// label-only line: no bytes emitted, but the label's own value is
		// the current PC, so the listing still shows an address column.
		if fields.Label != "" {
			info.HasAddress = true
			info.PC = a.buf.PC()
		}
		a.lines.Append(info)
		return

	case directive.IsDirective(upperOp):
		a.handleDirective(upperOp, fields, lineNumber, pos, info)
		a.lines.Append(info)
		return

	default:
		if _, ok := isa.Lookup(upperOp); ok {
			a.assembleInstruction(upperOp, fields.Operand, pos, info)
			a.lines.Append(info)
			return
		}
		a.errorf(pos, "'%s' is not a recognized mnemonic or macro", fields.Operator)
		a.lines.Append(info)
	}
}

func (a *Assembler) defineLabel(label string, lineNumber int, pos errs.Position) {
	switch {
	case strings.HasPrefix(label, ":"):
		key := a.syms.MangleLocal(label[1:])
		if _, err := a.syms.Define(key, symtab.KindLabel, a.buf.PC(), lineNumber); err != nil {
			a.errorf(pos, "%s", err.Error())
		}
	case strings.HasPrefix(label, "]"):
		// Variable labels are only meaningful paired with EQU/'=' on the
		// same line; a bare ']name' label is not a valid definition.
		a.errorf(pos, "'%s' is not a valid label", label)
	default:
		if _, err := a.syms.Define(label, symtab.KindLabel, a.buf.PC(), lineNumber); err != nil {
			a.errorf(pos, "%s", err.Error())
			return
		}
		a.syms.SetLastGlobal(label)
	}
}

func (a *Assembler) handleDo(operand string, pos errs.Position) {
	parentActive := a.active()
	if len(a.cond) >= directive.MaxConditionalDepth {
		a.errorf(pos, "DO/IF directives are nested more than %d deep", directive.MaxConditionalDepth)
		return
	}
	truth := false
	if strings.TrimSpace(operand) == "" {
		a.errorf(pos, directive.RequiresOperandMessage("do"))
	} else if parentActive {
		res, err := eval.Eval(operand, a.syms, a.buf.PC())
		if err != nil {
			a.errorf(pos, "%s", err.Error())
		} else {
			truth = res.Value != 0
		}
	}
	a.cond = append(a.cond, condFrame{parentActive: parentActive, thisTrue: truth})
}

func (a *Assembler) handleElse(pos errs.Position) {
	if len(a.cond) == 0 {
		a.errorf(pos, "ELSE directive without matching DO/IF directive")
		return
	}
	top := &a.cond[len(a.cond)-1]
	if top.haveElse {
		a.errorf(pos, directive.ErrMultipleElse)
		return
	}
	top.haveElse = true
	top.thisTrue = !top.thisTrue
}

func (a *Assembler) handleFin(pos errs.Position) {
	if len(a.cond) == 0 {
		a.errorf(pos, "FIN directive without matching DO/IF directive")
		return
	}
	a.cond = a.cond[:len(a.cond)-1]
}

// lupCount evaluates a LUP directive's repeat count, reporting and
// discarding it (treating the loop as a zero-iteration no-op) if it is
// missing, a forward reference, or out of the valid 1..32768 range.
func (a *Assembler) lupCount(operand string, pos errs.Position) int {
	if strings.TrimSpace(operand) == "" {
		a.errorf(pos, directive.RequiresOperandMessage("lup"))
		return 0
	}

	res, err := eval.Eval(operand, a.syms, a.buf.PC())
	if err != nil {
		a.errorf(pos, "%s", err.Error())
		return 0
	}
	if res.ForwardRef {
		a.errorf(pos, "LUP directive count cannot be a forward reference")
		return 0
	}

	count := int(res.Value)
	if count < directive.MinLupCount || count > directive.MaxLupCount {
		a.Diags.AddWarning(errs.NewWarning(pos, errs.KindDirectiveMisuse, directive.LupCountRangeMessage(count)))
		return 0
	}
	return count
}

func (a *Assembler) handleLup(operand string, pos errs.Position) {
	count := a.lupCount(operand, pos)

	var body []capturedLine
	closed := false
	for {
		raw, src, ok := a.stack.NextLine()
		if !ok {
			break
		}
		fields := lineparse.Parse(raw)
		upperOp := strings.ToUpper(fields.Operator)
		if upperOp == "LUP" {
			a.errorf(errs.Position{Filename: src.Filename(), Line: src.LineNumber()}, "Nested LUP directives are not supported")
			continue
		}
		if upperOp == "--^" {
			closed = true
			break
		}
		body = append(body, capturedLine{raw: raw, lineNumber: src.LineNumber(), filename: src.Filename(), indent: src.Indent()})
	}
	if !closed {
		a.errorf(pos, directive.ErrLupMissingEnd)
	}

	for iter := 0; iter < count; iter++ {
		for _, cl := range body {
			a.processLine(cl.raw, cl.lineNumber, cl.filename, cl.indent+1)
		}
	}
}

func (a *Assembler) handleDirective(name string, fields lineparse.Fields, lineNumber int, pos errs.Position, info *line.Info) {
	operand := fields.Operand
	if directive.RequiresOperand(name) && strings.TrimSpace(operand) == "" {
		a.errorf(pos, directive.RequiresOperandMessage(name))
		return
	}

	switch name {
	case "XC":
		a.handleXC(operand, pos)

	case "LST", "LSTDO", "TR", "MX":
		// Listing/trace toggles have no effect on the object file; accepted
		// and ignored so their operand doesn't trip an unknown-directive error.

	case "ORG":
		res, err := eval.Eval(operand, a.syms, a.buf.PC())
		if err != nil {
			a.errorf(pos, "%s", err.Error())
			return
		}
		if res.ForwardRef {
			a.errorf(pos, directive.NotAbsoluteMessage(operand))
			return
		}
		if err := a.buf.SetOrigin(res.Value); err != nil {
			a.errorf(pos, "%s", err.Error())
		}

	case "DUM":
		res, err := eval.Eval(operand, a.syms, a.buf.PC())
		if err != nil {
			a.errorf(pos, "%s", err.Error())
			return
		}
		a.buf.EnterDummy(res.Value)

	case "DEND":
		if err := a.buf.ExitDummy(); err != nil {
			a.errorf(pos, directive.ErrDendWithoutDum)
		}

	case "EQU", "=":
		a.handleEqu(fields, lineNumber, pos, info)

	case "HEX":
		data, err := directive.ParseHex(operand)
		if err != nil {
			a.errorf(pos, "%s", err.Error())
			return
		}
		a.emit(data, info)

	case "DS":
		a.handleDS(operand, pos, info)

	case "DB", "DFB":
		a.handleExprList(operand, 1, pos, info)

	case "DA", "DW":
		a.handleExprList(operand, 2, pos, info)

	case "ASC":
		a.handleAsc(operand, false, pos, info)

	case "REV":
		a.handleAsc(operand, true, pos, info)

	case "SAV":
		addr, length := a.buf.Span()
		a.buf.QueueSAV(strings.TrimSpace(operand), addr, length)

	case "USR":
		a.handleUSR(operand, pos)

	case "PUT":
		a.handlePut(operand, pos)
	}
}

func (a *Assembler) handleXC(operand string, pos errs.Position) {
	if strings.EqualFold(strings.TrimSpace(operand), "OFF") {
		a.xc = xc6502
		return
	}
	if a.xc >= xcStub {
		a.errorf(pos, "XC directive cannot be toggled more than twice")
		return
	}
	a.xc++
}

func (a *Assembler) handleEqu(fields lineparse.Fields, lineNumber int, pos errs.Position, info *line.Info) {
	if fields.Label == "" {
		a.errorf(pos, "EQU directive requires a line label.")
		return
	}
	res, err := eval.Eval(fields.Operand, a.syms, a.buf.PC())
	if err != nil {
		a.errorf(pos, "%s", err.Error())
		return
	}

	info.IsEquate = true
	info.EquValue = res.Value

	if strings.HasPrefix(fields.Label, "]") {
		if _, err := a.syms.Define(fields.Label, symtab.KindVariable, res.Value, lineNumber); err != nil {
			a.errorf(pos, "%s", err.Error())
		}
		return
	}
	if _, err := a.syms.Define(fields.Label, symtab.KindConstant, res.Value, lineNumber); err != nil {
		a.errorf(pos, "%s", err.Error())
	}
}

func (a *Assembler) handleDS(operand string, pos errs.Position, info *line.Info) {
	count, fill, pageAlign, err := directive.ParseDS(operand)
	if err != nil {
		a.errorf(pos, "%s", err.Error())
		return
	}
	n := int(count)
	if pageAlign {
		n = directive.DSPageFill(a.buf.PC())
	}
	if n <= 0 {
		return
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = fill
	}
	a.emit(data, info)
}

func (a *Assembler) handleExprList(operand string, width int, pos errs.Position, info *line.Info) {
	exprs := directive.SplitExprList(operand)
	data := make([]byte, 0, len(exprs)*width)

	type fixup struct {
		offset    int
		refSymbol string
	}
	var fixups []fixup

	for _, expr := range exprs {
		res, err := eval.Eval(expr, a.syms, a.buf.PC())
		if err != nil {
			a.errorf(pos, "%s", err.Error())
			continue
		}
		offset := len(data)
		if width == 1 {
			data = append(data, byte(res.Value))
		} else {
			data = append(data, byte(res.Value), byte(res.Value>>8))
		}
		if res.ForwardRef {
			fixups = append(fixups, fixup{offset: offset, refSymbol: res.RefSymbol})
		}
	}
	a.emit(data, info)

	// DB/DFB/DA/DW forward references are silently back-patched once the
	// symbol is defined, with no diagnostic -- unlike an instruction operand,
	// a data directive's width is already fixed by the directive itself, so
	// there is no addressing-mode ambiguity left for a later definition to
	// disturb.
	for _, fx := range fixups {
		ref := symtab.RefLowByte
		if width == 2 {
			ref = symtab.RefWord
		}
		a.syms.Reference(fx.refSymbol, &symtab.PendingRef{Info: info, Offset: fx.offset, Ref: ref})
	}
}

// handleUSR parses the USR directive's "type,count,addr,len" operand and
// queues an RW18 output record named after the current source file's
// basename with any directory and extension stripped.
func (a *Assembler) handleUSR(operand string, pos errs.Position) {
	exprs := directive.SplitExprList(operand)
	if len(exprs) != 4 {
		a.errorf(pos, "%s", directive.USRArgCountMessage(strings.TrimSpace(operand)))
		return
	}

	values := make([]uint16, 4)
	for i, expr := range exprs {
		res, err := eval.Eval(expr, a.syms, a.buf.PC())
		if err != nil {
			a.errorf(pos, "%s", err.Error())
			return
		}
		if res.ForwardRef {
			a.errorf(pos, directive.NotAbsoluteMessage(strings.TrimSpace(expr)))
			return
		}
		values[i] = res.Value
	}

	base := filepath.Base(pos.Filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	a.buf.QueueRW18(name, byte(values[0]), byte(values[1]), values[2], values[3])
}

func (a *Assembler) handleAsc(operand string, reversed bool, pos errs.Position, info *line.Info) {
	text, highBit, rest, err := directive.ParseQuotedString(operand)
	if err != nil {
		a.errorf(pos, "%s", err.Error())
		return
	}
	data := directive.EncodeASC(text, highBit)
	if reversed {
		data = directive.ReverseBytes(data)
	}
	if strings.TrimSpace(rest) != "" {
		extra, err := directive.ParseHex(rest)
		if err == nil {
			data = append(data, extra...)
		}
	}
	a.emit(data, info)
}

func (a *Assembler) handlePut(operand string, pos errs.Position) {
	if a.stack.Depth() >= 2 {
		a.errorf(pos, directive.ErrPutNested)
		return
	}
	path := strings.Trim(strings.TrimSpace(operand), `"'`)
	file, err := source.NewTextFileFromPath(path)
	if err != nil {
		for _, dir := range a.PutDirs {
			if f, derr := source.NewTextFileFromPath(filepath.Join(dir, path)); derr == nil {
				file, err = f, nil
				break
			}
		}
	}
	if err != nil {
		a.errorf(pos, "%s", directive.PutFailedMessage(path))
		return
	}
	indent := 0
	if top := a.stack.Top(); top != nil {
		indent = top.Indent() + 1
	}
	if err := a.stack.Push(source.NewTextSource(file, indent)); err != nil {
		a.errorf(pos, "%s", err.Error())
	}
}

// emit reserves len(data) bytes at the current PC and copies data into them
// (a no-op write inside a dummy segment, where Reserve returns nil).
func (a *Assembler) emit(data []byte, info *line.Info) {
	slice, err := a.buf.Reserve(len(data))
	if err != nil {
		a.errorf(a.lastPos, "%s", err.Error())
		return
	}
	info.HasAddress = true
	info.PC = a.buf.PC() - uint16(len(data))
	info.InDummySegment = a.buf.InDummySegment()
	if slice != nil {
		copy(slice, data)
		info.MachineCode = slice
	} else {
		info.MachineCode = data
	}
}

func (a *Assembler) assembleInstruction(mnemonic, operand string, pos errs.Position, info *line.Info) {
	shape, expr, err := decodeShape(mnemonic, operand)
	if err != nil {
		a.errorf(pos, "%s", err.Error())
		return
	}

	var (
		mode            isa.Mode
		size            int
		zeroPageAllowed bool
		value           uint16
		forwardRef      bool
		refSymbol       string
		lowByte         bool
		highByte        bool
	)

	switch shape {
	case shapeImplied:
		mode, size = isa.Implied, 0

	case shapeImmediate:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		mode, size = isa.Immediate, 1
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol
		lowByte, highByte = res.LowByte, res.HighByte

	case shapeIndirectXIndexed:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		mode, size = isa.IndexedIndirectX, 1
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol

	case shapeIndirectYIndexed:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		mode, size = isa.IndirectIndexedY, 1
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol

	case shapeIndirect:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		mode, size = isa.Indirect, 2
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol

	case shapeIndirectAbsX:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		mode, size = isa.IndirectAbsX, 2
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol

	case shapeXIndexed, shapeYIndexed, shapePlain:
		res, eerr := eval.Eval(expr, a.syms, a.buf.PC())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		value, forwardRef, refSymbol = res.Value, res.ForwardRef, res.RefSymbol

		if isBranch(mnemonic) {
			mode, size = isa.Relative, 1
			break
		}

		var zp, abs isa.Mode
		switch shape {
		case shapeXIndexed:
			zp, abs = isa.ZeroPageX, isa.AbsoluteX
		case shapeYIndexed:
			zp, abs = isa.ZeroPageY, isa.AbsoluteY
		default:
			zp, abs = isa.ZeroPage, isa.Absolute
		}
		mode, size, zeroPageAllowed = sizedMode(mnemonic, zp, abs, value, forwardRef, a.c02Enabled())
	}

	opcode := isa.StubOpcode
	if a.xc != xcStub {
		code, eerr := isa.Encode(mnemonic, mode, a.c02Enabled())
		if eerr != nil {
			a.errorf(pos, "%s", eerr.Error())
			return
		}
		opcode = int(code)
	} else {
		size = 0 // the stub collapses every instruction to a single-byte RTS
	}

	total := 1 + size
	slice, rerr := a.buf.Reserve(total)
	if rerr != nil {
		a.errorf(pos, "%s", rerr.Error())
		return
	}

	info.HasAddress = true
	info.PC = a.buf.PC() - uint16(total)
	info.InDummySegment = a.buf.InDummySegment()
	info.MachineCode = slice
	if slice == nil {
		// dummy segment: PC only, no bytes to fill or patch
		return
	}
	slice[0] = byte(opcode)

	if size == 0 {
		return
	}

	if mode == isa.Relative {
		fromPC := a.buf.PC()
		if forwardRef {
			a.syms.Reference(refSymbol, &symtab.PendingRef{Info: info, Offset: 1, Ref: symtab.RefRelative, FromPC: fromPC})
			return
		}
		offset := int(value) - int(fromPC)
		if offset < -128 || offset > 127 {
			a.errorf(pos, "Relative offset of '%d' exceeds the allowed -128 to 127 range", offset)
			return
		}
		slice[1] = byte(int8(offset))
		return
	}

	if forwardRef {
		ref := symtab.RefAbsoluteOrZP
		if lowByte {
			ref = symtab.RefLowByte
		} else if highByte {
			ref = symtab.RefHighByte
		}
		a.syms.Reference(refSymbol, &symtab.PendingRef{Info: info, Offset: 1, Ref: ref, ZeroPageAllowed: zeroPageAllowed})
		return
	}

	if size == 1 {
		slice[1] = byte(value)
	} else {
		slice[1] = byte(value)
		slice[2] = byte(value >> 8)
	}
}

// Listing renders every processed line, in order, as the assembler's
// printed output.
func (a *Assembler) Listing() string {
	var sb strings.Builder
	for _, info := range a.lines.Items() {
		sb.WriteString(listing.Format(info))
	}
	return sb.String()
}

// Symbols renders the defined symbol table as a sorted dump.
func (a *Assembler) Symbols() string {
	return symtab.Dump(a.syms)
}

// Image exposes the raw 64 KiB output buffer, mainly for tests that need to
// inspect assembled bytes directly rather than through the listing.
func (a *Assembler) Image() *[binbuf.ImageSize]byte {
	return a.buf.Image()
}

// Flush writes every queued object file beneath outputDir, unless the run
// recorded any error, in which case queued files are discarded and the
// listing is the only surviving output.
func (a *Assembler) Flush(outputDir string) error {
	if a.Diags.HasErrors() {
		return nil
	}
	return a.buf.FlushAll(outputDir)
}
