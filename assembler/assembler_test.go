package assembler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assembleSource(t *testing.T, src string) *Assembler {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.s")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("failed writing source fixture: %v", err)
	}
	a := New()
	if err := a.AssembleFile(path); err != nil {
		t.Fatalf("AssembleFile returned error: %v", err)
	}
	return a
}

func TestImmediateLoadTruncatesToByte(t *testing.T) {
	a := assembleSource(t, " lda #$100\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x8000] != 0xA9 || img[0x8001] != 0x00 {
		t.Errorf("got bytes %02X %02X, want A9 00", img[0x8000], img[0x8001])
	}
}

func TestForwardBranchPatchesRelativeOffset(t *testing.T) {
	a := assembleSource(t, " org $300\n bne skip\n nop\nskip nop\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x300] != 0xD0 {
		t.Fatalf("expected BNE opcode at $300, got %02X", img[0x300])
	}
	if img[0x301] != 0x01 {
		t.Errorf("expected relative offset 1 to skip the NOP, got %d", int8(img[0x301]))
	}
}

func TestUndefinedLabelReportsError(t *testing.T) {
	a := assembleSource(t, " org $300\n jmp nowhere\n")
	if !a.Diags.HasErrors() {
		t.Fatal("expected an undefined-label error")
	}
	found := false
	for _, d := range a.Diags.Errors() {
		if strings.Contains(d.Message, "nowhere") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected diagnostic naming 'nowhere', got: %s", a.Diags.Error())
	}
}

func TestConditionalAssemblySelectsOneArm(t *testing.T) {
	a := assembleSource(t, " org $300\n do 0\n lda #1\n else\n lda #2\n fin\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x300] != 0xA9 || img[0x301] != 0x02 {
		t.Errorf("expected the ELSE arm's lda #2, got %02X %02X", img[0x300], img[0x301])
	}
}

func TestLupExpandsBodyNTimes(t *testing.T) {
	a := assembleSource(t, " org $300\n lup 3\n inc $10\n --^\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	for i := 0; i < 3; i++ {
		base := 0x300 + i*2
		if img[base] != 0xE6 || img[base+1] != 0x10 {
			t.Errorf("iteration %d: got %02X %02X, want E6 10", i, img[base], img[base+1])
		}
	}
}

func TestXCTogglesC02AndStubsOnSecondToggle(t *testing.T) {
	a := assembleSource(t, " org $300\n xc\n bra there\n xc\n bra there\nthere nop\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x300] != 0x80 {
		t.Fatalf("expected BRA (65C02) opcode 0x80 at $300, got %02X", img[0x300])
	}
	if img[0x302] != 0x60 {
		t.Errorf("expected stub RTS opcode 0x60 after second XC toggle, got %02X", img[0x302])
	}
}

func TestDumTracksPCWithoutWritingImage(t *testing.T) {
	a := assembleSource(t, " org $300\n dum $0\nfield1 ds 2\nfield2 ds 2\n dend\n lda #1\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x300] != 0xA9 {
		t.Errorf("expected real emission to resume at $300 after DEND, got %02X", img[0x300])
	}
}

func TestHexAndAscDirectivesEmitBytes(t *testing.T) {
	a := assembleSource(t, " org $300\n hex 0a0b0c\n asc \"AB\"\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	want := []byte{0x0a, 0x0b, 0x0c, 0xC1, 0xC2}
	assert.Equal(t, want, img[0x300:0x300+len(want)])
}

func TestSymbolsDumpIncludesDefinedLabel(t *testing.T) {
	a := assembleSource(t, " org $300\nstart nop\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	if !strings.Contains(a.Symbols(), "start") {
		t.Errorf("expected symbol dump to contain 'start', got: %s", a.Symbols())
	}
}

// TestForwardReferenceOutsideZeroPageAssembles mirrors the original
// assembler's ForwardReferenceLabel fixture: a forward reference to a
// zero-page-capable instruction commits to absolute sizing, so a label that
// later resolves outside zero page assembles cleanly as a 3-byte instruction.
func TestForwardReferenceOutsideZeroPageAssembles(t *testing.T) {
	a := assembleSource(t, " org $800\n sta label\nlabel sta $2b\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	img := a.Image()
	if img[0x800] != 0x8D {
		t.Fatalf("expected absolute STA opcode 0x8D at $800, got %02X", img[0x800])
	}
	if img[0x801] != 0x03 || img[0x802] != 0x08 {
		t.Errorf("expected operand to point at label's address 0x0803, got %02X %02X", img[0x801], img[0x802])
	}
	if img[0x803] != 0x85 {
		t.Errorf("expected zero-page STA opcode 0x85 at label, got %02X", img[0x803])
	}
}

// TestForwardReferenceIntoZeroPageFails mirrors FailZeroPageForwardReference:
// once a forward reference has committed to absolute sizing, a label that
// resolves into zero page is rejected rather than silently shrunk.
func TestForwardReferenceIntoZeroPageFails(t *testing.T) {
	a := assembleSource(t, " org $0\n sta label\nlabel nop\n")
	if !a.Diags.HasErrors() {
		t.Fatal("expected an error for a forward reference resolving into zero page")
	}
	if !strings.Contains(a.Diags.Error(), "Couldn't properly infer size of a forward reference in 'label' operand.") {
		t.Errorf("unexpected error text: %s", a.Diags.Error())
	}
}

// TestDBForwardReferenceBackpatchesSilently mirrors
// DB_DirectiveWithForwardReference: a DB forward reference is back-patched
// once the label is defined, with no diagnostic.
func TestDBForwardReferenceBackpatchesSilently(t *testing.T) {
	a := assembleSource(t, " org $300\n db label\nlabel nop\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	if len(a.Diags.Warnings()) != 0 {
		t.Errorf("expected no warnings, got: %v", a.Diags.Warnings())
	}
	img := a.Image()
	if img[0x300] != 0x01 {
		t.Errorf("expected label's low byte 0x01 back-patched at $300, got %02X", img[0x300])
	}
}

// TestDAForwardReferenceBackpatchesSilently mirrors
// DA_DirectiveWithForwardReference for the 2-byte form.
func TestDAForwardReferenceBackpatchesSilently(t *testing.T) {
	a := assembleSource(t, " org $300\n da label\nlabel nop\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}
	if len(a.Diags.Warnings()) != 0 {
		t.Errorf("expected no warnings, got: %v", a.Diags.Warnings())
	}
	img := a.Image()
	if img[0x300] != 0x02 || img[0x301] != 0x03 {
		t.Errorf("expected label's address 0x0302 back-patched at $300, got %02X %02X", img[0x300], img[0x301])
	}
}

func TestUSRDirectiveQueuesRW18Record(t *testing.T) {
	a := assembleSource(t, " org $800\n usr $a9,1,$a80,*-$800\n")
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %s", a.Diags.Error())
	}

	dir := t.TempDir()
	if err := a.Flush(dir); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "in"))
	if err != nil {
		t.Fatalf("expected RW18 output file, got error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty RW18 output")
	}
}

func TestUSRDirectiveRequiresFourArguments(t *testing.T) {
	a := assembleSource(t, " org $800\n usr $a9,1,$a80\n")
	if !a.Diags.HasErrors() {
		t.Fatal("expected an error for USR with fewer than 4 arguments")
	}
	if !strings.Contains(a.Diags.Error(), "doesn't contain the 4 arguments required for USR directive") {
		t.Errorf("unexpected error text: %s", a.Diags.Error())
	}
}
