// Package isa is the 6502/65C02 instruction table: a 64-mnemonic (56 6502
// instructions plus 8 65C02 additions) by 14-addressing-mode opcode matrix, encoded as a literal Go table (parsed
// once at program init, never re-parsed per instruction, matching the
// original assembler's compile-time-constant intent) with sentinel entries
// for "mode unsupported", "zero-page unavailable, silently upgrade to
// absolute", and "65C02-only opcode".
package isa

import "fmt"

// Mode indexes the 14 addressing-mode columns, in the spec's canonical order.
type Mode int

const (
	Immediate Mode = iota
	Absolute
	ZeroPage
	Implied
	IndexedIndirectX // (zp,x)
	IndirectIndexedY // (zp),y
	ZeroPageX        // zp,x
	ZeroPageY        // zp,y
	AbsoluteX        // abs,x
	AbsoluteY        // abs,y
	Relative         // branch
	Indirect         // (abs)
	IndirectAbsX     // (abs,x)
	ZeroPageIndirect // (zp), 65C02 only
	modeCount
)

// slot is one cell of the opcode matrix.
type slot struct {
	opcode  byte
	present bool
	upgrade bool // zero-page mode unavailable; opcode is the absolute encoding to use instead
	c02only bool
}

func op(code byte) slot                 { return slot{opcode: code, present: true} }
func c02(code byte) slot                { return slot{opcode: code, present: true, c02only: true} }
func upgradeToAbsolute(code byte) slot  { return slot{opcode: code, present: true, upgrade: true} }

type row [modeCount]slot

// table holds one row per mnemonic. Mnemonics are stored upper-case.
var table = map[string]row{
	"ADC": {Immediate: op(0x69), ZeroPage: op(0x65), ZeroPageX: op(0x75), Absolute: op(0x6D), AbsoluteX: op(0x7D), AbsoluteY: op(0x79), IndexedIndirectX: op(0x61), IndirectIndexedY: op(0x71), ZeroPageIndirect: c02(0x72)},
	"AND": {Immediate: op(0x29), ZeroPage: op(0x25), ZeroPageX: op(0x35), Absolute: op(0x2D), AbsoluteX: op(0x3D), AbsoluteY: op(0x39), IndexedIndirectX: op(0x21), IndirectIndexedY: op(0x31), ZeroPageIndirect: c02(0x32)},
	"ASL": {ZeroPage: op(0x06), ZeroPageX: op(0x16), Absolute: op(0x0E), AbsoluteX: op(0x1E), Implied: op(0x0A)},
	"BCC": {Relative: op(0x90)},
	"BCS": {Relative: op(0xB0)},
	"BEQ": {Relative: op(0xF0)},
	"BIT": {ZeroPage: op(0x24), Absolute: op(0x2C), Immediate: c02(0x89), ZeroPageX: c02(0x34), AbsoluteX: c02(0x3C)},
	"BMI": {Relative: op(0x30)},
	"BNE": {Relative: op(0xD0)},
	"BPL": {Relative: op(0x10)},
	"BRA": {Relative: c02(0x80)},
	"BRK": {Implied: op(0x00)},
	"BVC": {Relative: op(0x50)},
	"BVS": {Relative: op(0x70)},
	"CLC": {Implied: op(0x18)},
	"CLD": {Implied: op(0xD8)},
	"CLI": {Implied: op(0x58)},
	"CLV": {Implied: op(0xB8)},
	"CMP": {Immediate: op(0xC9), ZeroPage: op(0xC5), ZeroPageX: op(0xD5), Absolute: op(0xCD), AbsoluteX: op(0xDD), AbsoluteY: op(0xD9), IndexedIndirectX: op(0xC1), IndirectIndexedY: op(0xD1), ZeroPageIndirect: c02(0xD2)},
	"CPX": {Immediate: op(0xE0), ZeroPage: op(0xE4), Absolute: op(0xEC)},
	"CPY": {Immediate: op(0xC0), ZeroPage: op(0xC4), Absolute: op(0xCC)},
	"DEC": {ZeroPage: op(0xC6), ZeroPageX: op(0xD6), Absolute: op(0xCE), AbsoluteX: op(0xDE), Implied: c02(0x3A)},
	"DEX": {Implied: op(0xCA)},
	"DEY": {Implied: op(0x88)},
	"EOR": {Immediate: op(0x49), ZeroPage: op(0x45), ZeroPageX: op(0x55), Absolute: op(0x4D), AbsoluteX: op(0x5D), AbsoluteY: op(0x59), IndexedIndirectX: op(0x41), IndirectIndexedY: op(0x51), ZeroPageIndirect: c02(0x52)},
	"INC": {ZeroPage: op(0xE6), ZeroPageX: op(0xF6), Absolute: op(0xEE), AbsoluteX: op(0xFE), Implied: c02(0x1A)},
	"INX": {Implied: op(0xE8)},
	"INY": {Implied: op(0xC8)},
	"JMP": {Absolute: op(0x4C), ZeroPage: upgradeToAbsolute(0x4C), Indirect: op(0x6C), IndirectAbsX: c02(0x7C)},
	"JSR": {Absolute: op(0x20), ZeroPage: upgradeToAbsolute(0x20)},
	"LDA": {Immediate: op(0xA9), ZeroPage: op(0xA5), ZeroPageX: op(0xB5), Absolute: op(0xAD), AbsoluteX: op(0xBD), AbsoluteY: op(0xB9), IndexedIndirectX: op(0xA1), IndirectIndexedY: op(0xB1), ZeroPageIndirect: c02(0xB2)},
	"LDX": {Immediate: op(0xA2), ZeroPage: op(0xA6), ZeroPageY: op(0xB6), Absolute: op(0xAE), AbsoluteY: op(0xBE)},
	"LDY": {Immediate: op(0xA0), ZeroPage: op(0xA4), ZeroPageX: op(0xB4), Absolute: op(0xAC), AbsoluteX: op(0xBC)},
	"LSR": {ZeroPage: op(0x46), ZeroPageX: op(0x56), Absolute: op(0x4E), AbsoluteX: op(0x5E), Implied: op(0x4A)},
	"NOP": {Implied: op(0xEA)},
	"ORA": {Immediate: op(0x09), ZeroPage: op(0x05), ZeroPageX: op(0x15), Absolute: op(0x0D), AbsoluteX: op(0x1D), AbsoluteY: op(0x19), IndexedIndirectX: op(0x01), IndirectIndexedY: op(0x11), ZeroPageIndirect: c02(0x12)},
	"PHA": {Implied: op(0x48)},
	"PHP": {Implied: op(0x08)},
	"PHX": {Implied: c02(0xDA)},
	"PHY": {Implied: c02(0x5A)},
	"PLA": {Implied: op(0x68)},
	"PLP": {Implied: op(0x28)},
	"PLX": {Implied: c02(0xFA)},
	"PLY": {Implied: c02(0x7A)},
	"ROL": {ZeroPage: op(0x26), ZeroPageX: op(0x36), Absolute: op(0x2E), AbsoluteX: op(0x3E), Implied: op(0x2A)},
	"ROR": {ZeroPage: op(0x66), ZeroPageX: op(0x76), Absolute: op(0x6E), AbsoluteX: op(0x7E), Implied: op(0x6A)},
	"RTI": {Implied: op(0x40)},
	"RTS": {Implied: op(0x60)},
	"SBC": {Immediate: op(0xE9), ZeroPage: op(0xE5), ZeroPageX: op(0xF5), Absolute: op(0xED), AbsoluteX: op(0xFD), AbsoluteY: op(0xF9), IndexedIndirectX: op(0xE1), IndirectIndexedY: op(0xF1), ZeroPageIndirect: c02(0xF2)},
	"SEC": {Implied: op(0x38)},
	"SED": {Implied: op(0xF8)},
	"SEI": {Implied: op(0x78)},
	"STA": {ZeroPage: op(0x85), ZeroPageX: op(0x95), Absolute: op(0x8D), AbsoluteX: op(0x9D), AbsoluteY: op(0x99), IndexedIndirectX: op(0x81), IndirectIndexedY: op(0x91), ZeroPageIndirect: c02(0x92)},
	"STX": {ZeroPage: op(0x86), ZeroPageY: op(0x96), Absolute: op(0x8E)},
	"STY": {ZeroPage: op(0x84), ZeroPageX: op(0x94), Absolute: op(0x8C)},
	"STZ": {ZeroPage: c02(0x64), ZeroPageX: c02(0x74), Absolute: c02(0x9C), AbsoluteX: c02(0x9E)},
	"TAX": {Implied: op(0xAA)},
	"TAY": {Implied: op(0xA8)},
	"TRB": {ZeroPage: c02(0x14), Absolute: c02(0x1C)},
	"TSB": {ZeroPage: c02(0x04), Absolute: c02(0x0C)},
	"TSX": {Implied: op(0xBA)},
	"TXA": {Implied: op(0x8A)},
	"TXS": {Implied: op(0x9A)},
	"TYA": {Implied: op(0x98)},
}

// Lookup reports whether mnemonic names a known instruction.
func Lookup(mnemonic string) (row, bool) {
	r, ok := table[mnemonic]
	return r, ok
}

// Supported reports whether mode is a valid encoding of mnemonic, given
// whether 65C02 extensions are currently enabled.
func Supported(mnemonic string, mode Mode, c02Enabled bool) bool {
	r, ok := table[mnemonic]
	if !ok {
		return false
	}
	s := r[mode]
	if !s.present {
		return false
	}
	if s.c02only && !c02Enabled {
		return false
	}
	return true
}

// HasZeroPage reports whether mnemonic has a true (non-upgraded) zero-page
// encoding, used by mode inference to prefer the 1-byte form when it fits.
func HasZeroPage(mnemonic string) bool {
	r, ok := table[mnemonic]
	if !ok {
		return false
	}
	return r[ZeroPage].present && !r[ZeroPage].upgrade
}

// Encode returns the opcode byte for mnemonic in mode, honoring the
// zero-page-unavailable upgrade sentinel and the 65C02-only gate.
func Encode(mnemonic string, mode Mode, c02Enabled bool) (byte, error) {
	r, ok := table[mnemonic]
	if !ok {
		return 0, fmt.Errorf("'%s' is not a recognized mnemonic or macro", mnemonic)
	}
	s := r[mode]
	if !s.present {
		return 0, fmt.Errorf("addressing mode of '%s' is not supported for '%s' instruction", mnemonic, mnemonic)
	}
	if s.c02only && !c02Enabled {
		return 0, fmt.Errorf("addressing mode of '%s' is not supported for '%s' instruction", mnemonic, mnemonic)
	}
	return s.opcode, nil
}

// StubOpcode is the fixed encoding every instruction collapses to once XC
// has been toggled a second time into 65802/65816 "stub" mode.
const StubOpcode = 0x60 // RTS
