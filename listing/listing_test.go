package listing

import (
	"testing"

	"github.com/beaglebone/snap6502/line"
)

func TestFormatTwoByteInstruction(t *testing.T) {
	info := &line.Info{
		LineNumber:  1,
		PC:          0x8000,
		HasAddress:  true,
		MachineCode: []byte{0xA9, 0x00},
		SourceText:  "lda #$100",
	}
	got := Format(info)
	want := "8000: A9 00        1  lda #$100\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatThreeByteInstruction(t *testing.T) {
	info := &line.Info{
		LineNumber:  1,
		PC:          0x8000,
		HasAddress:  true,
		MachineCode: []byte{0x0E, 0x0C, 0x0A},
		SourceText:  "hex 0e0c0a",
	}
	got := Format(info)
	want := "8000: 0E 0C 0A     1  hex 0e0c0a\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatEquRendersEqualsSign(t *testing.T) {
	info := &line.Info{
		LineNumber: 1,
		IsEquate:   true,
		EquValue:   0x1234,
		SourceText: "val equ $1234",
	}
	got := Format(info)
	want := "=1234              1  val equ $1234\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatBlankPCColumnForInactiveArm(t *testing.T) {
	info := &line.Info{
		LineNumber: 2,
		HasAddress: false,
		SourceText: "hex 00",
	}
	got := Format(info)
	want := "                   2  hex 00\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatContinuationLinesForOverflow(t *testing.T) {
	info := &line.Info{
		LineNumber:  1,
		PC:          0x8000,
		HasAddress:  true,
		MachineCode: []byte{1, 2, 3, 4, 5},
		SourceText:  "hex 0102030405",
	}
	got := Format(info)
	want := "8000: 01 02 03     1  hex 0102030405\n8003: 04 05\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
