package assembler

import (
	"fmt"
	"strings"

	"github.com/beaglebone/snap6502/isa"
)

// operandShape is the syntactic form an operand takes, before its
// expression has been evaluated. Resolving a shape to a concrete isa.Mode
// needs the evaluated value (to choose zero-page vs. absolute) and, for
// branches, the instruction's own mnemonic.
type operandShape int

const (
	shapeImplied operandShape = iota
	shapeImmediate
	shapeIndirectXIndexed // (zp,X)
	shapeIndirectYIndexed // (zp),Y
	shapeIndirect         // (abs)
	shapeIndirectAbsX     // (abs,X) -- 65C02 JMP only
	shapeXIndexed         // expr,X
	shapeYIndexed         // expr,Y
	shapePlain            // expr alone
)

var branchMnemonics = map[string]bool{
	"BCC": true, "BCS": true, "BEQ": true, "BMI": true,
	"BNE": true, "BPL": true, "BVC": true, "BVS": true, "BRA": true,
}

func isBranch(mnemonic string) bool {
	return branchMnemonics[mnemonic]
}

// decodeShape classifies operand's syntax. mnemonic disambiguates the one
// case addressing mode can't: "(expr,X)" is zero-page indexed-indirect for
// most instructions but JMP's 65C02 absolute-indirect-indexed form.
func decodeShape(mnemonic, operand string) (operandShape, string, error) {
	s := strings.TrimSpace(operand)
	if s == "" || strings.EqualFold(s, "A") {
		return shapeImplied, "", nil
	}
	if strings.HasPrefix(s, "#") {
		return shapeImmediate, s[1:], nil
	}
	if strings.HasPrefix(s, "(") {
		closeIdx := strings.IndexByte(s, ')')
		if closeIdx < 0 {
			return 0, "", fmt.Errorf("unbalanced parentheses in operand '%s'", operand)
		}
		inner := s[1:closeIdx]
		tail := s[closeIdx+1:]
		switch {
		case tail == "":
			if hasSuffixFold(inner, ",X") {
				if mnemonic == "JMP" {
					return shapeIndirectAbsX, inner[:len(inner)-2], nil
				}
				return shapeIndirectXIndexed, inner[:len(inner)-2], nil
			}
			return shapeIndirect, inner, nil
		case strings.EqualFold(tail, ",Y"):
			return shapeIndirectYIndexed, inner, nil
		default:
			return 0, "", fmt.Errorf("malformed indirect operand '%s'", operand)
		}
	}
	if hasSuffixFold(s, ",X") {
		return shapeXIndexed, s[:len(s)-2], nil
	}
	if hasSuffixFold(s, ",Y") {
		return shapeYIndexed, s[:len(s)-2], nil
	}
	return shapePlain, s, nil
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// sizedMode picks between a shape's zero-page and absolute addressing modes
// given the evaluated value, preferring zero page when the instruction has a
// true (non-upgraded) zero-page encoding and the value fits in a byte. A
// forward reference can't know the eventual value yet, so it always commits
// to absolute sizing when absolute is available at all, falling back to zero
// page only when the instruction has no absolute encoding to commit to.
func sizedMode(mnemonic string, zp, abs isa.Mode, value uint16, forwardRef, c02 bool) (mode isa.Mode, size int, zeroPageAllowed bool) {
	zpOK := isa.HasZeroPage(mnemonic) && isa.Supported(mnemonic, zp, c02)
	absOK := isa.Supported(mnemonic, abs, c02)

	if forwardRef {
		if absOK {
			return abs, 2, false
		}
		if zpOK {
			return zp, 1, true
		}
		return abs, 2, false
	}

	if zpOK && value <= 0xff {
		return zp, 1, true
	}
	if absOK {
		return abs, 2, false
	}
	if zpOK {
		return zp, 1, true
	}
	return abs, 2, false
}
