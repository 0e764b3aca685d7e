// Package listing renders the assembler's printable output: one or more
// lines per processed source line, interleaving address, machine bytes,
// line number and source text, with EQU definitions shown as "=XXXX" and
// overflow bytes (from HEX/DS/ASC) wrapped onto address-only continuation
// lines.
package listing

import (
	"fmt"
	"strings"

	"github.com/beaglebone/snap6502/line"
)

const (
	addrFieldWidth  = 6 // "AAAA: " or "=XXXX "
	bytesFieldWidth = 10
	lineNumWidth    = 4
	bytesPerLine    = 3
)

// Format renders every listing line produced by info, including any
// continuation lines required to show all of its machine code.
func Format(info *line.Info) string {
	var sb strings.Builder

	sb.WriteString(addrField(info))
	first := firstChunk(info.MachineCode)
	sb.WriteString(padRight(joinHex(first), bytesFieldWidth))
	sb.WriteString(fmt.Sprintf("%*d", lineNumWidth, info.LineNumber))
	sb.WriteString("  ")
	sb.WriteString(strings.Repeat(" ", info.IndentListing))
	sb.WriteString(info.SourceText)
	sb.WriteString("\n")

	for off := bytesPerLine; off < len(info.MachineCode); off += bytesPerLine {
		end := off + bytesPerLine
		if end > len(info.MachineCode) {
			end = len(info.MachineCode)
		}
		addr := info.PC + uint16(off)
		sb.WriteString(fmt.Sprintf("%04X: %s\n", addr, joinHex(info.MachineCode[off:end])))
	}

	return sb.String()
}

func addrField(info *line.Info) string {
	switch {
	case info.IsEquate:
		return fmt.Sprintf("=%04X ", info.EquValue)
	case info.HasAddress:
		return fmt.Sprintf("%04X: ", info.PC)
	default:
		return strings.Repeat(" ", addrFieldWidth)
	}
}

func firstChunk(b []byte) []byte {
	if len(b) > bytesPerLine {
		return b[:bytesPerLine]
	}
	return b
}

func joinHex(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
