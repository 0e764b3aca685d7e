package isa

import "testing"

func TestEncodeKnownMnemonic(t *testing.T) {
	got, err := Encode("LDA", Immediate, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xA9 {
		t.Errorf("Encode(LDA, Immediate) = %02X, want A9", got)
	}
}

func TestEncodeUnknownMnemonic(t *testing.T) {
	if _, err := Encode("FOO", Implied, false); err == nil {
		t.Errorf("expected error for unknown mnemonic")
	}
}

func TestEncode65C02GatedByFlag(t *testing.T) {
	if _, err := Encode("BRA", Relative, false); err == nil {
		t.Errorf("expected BRA to be unsupported without 65C02 enabled")
	}
	got, err := Encode("BRA", Relative, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x80 {
		t.Errorf("Encode(BRA, Relative, true) = %02X, want 80", got)
	}
}

func TestJMPZeroPageUpgradesToAbsolute(t *testing.T) {
	if HasZeroPage("JMP") {
		t.Errorf("JMP has no true zero-page mode")
	}
	got, err := Encode("JMP", ZeroPage, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x4C {
		t.Errorf("Encode(JMP, ZeroPage) = %02X, want the absolute opcode 4C", got)
	}
}

func TestHasZeroPageForOrdinaryMnemonic(t *testing.T) {
	if !HasZeroPage("LDA") {
		t.Errorf("LDA should report a true zero-page encoding")
	}
}
