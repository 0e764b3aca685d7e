package binbuf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOriginAndReserve(t *testing.T) {
	b := New()
	if b.PC() != DefaultOrigin {
		t.Fatalf("PC() = %04X, want %04X", b.PC(), DefaultOrigin)
	}
	bytes, err := b.Reserve(2)
	if err != nil {
		t.Fatal(err)
	}
	bytes[0] = 0xA9
	bytes[1] = 0x00
	if b.PC() != DefaultOrigin+2 {
		t.Errorf("PC() = %04X, want %04X", b.PC(), DefaultOrigin+2)
	}
	if got := b.Slice(DefaultOrigin, 2); got[0] != 0xA9 || got[1] != 0x00 {
		t.Errorf("Slice = % X", got)
	}
}

func TestSetOriginAndCollision(t *testing.T) {
	b := New()
	if err := b.SetOrigin(0x800); err != nil {
		t.Fatal(err)
	}
	bytes, _ := b.Reserve(2)
	bytes[0], bytes[1] = 0x00, 0xff

	if err := b.SetOrigin(0x900); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Reserve(1); err != nil {
		t.Fatal(err)
	}

	if err := b.SetOrigin(0x801); err == nil {
		t.Errorf("expected collision error re-entering a closed segment")
	}
}

func TestDummySegmentAdvancesPCOnly(t *testing.T) {
	b := New()
	if err := b.SetOrigin(0x2000); err != nil {
		t.Fatal(err)
	}
	b.EnterDummy(0x300)
	if b.PC() != 0x300 {
		t.Fatalf("PC() in dummy = %04X, want 0300", b.PC())
	}
	bytes, err := b.Reserve(4)
	if err != nil {
		t.Fatal(err)
	}
	if bytes != nil {
		t.Errorf("dummy Reserve should return nil storage")
	}
	if b.PC() != 0x304 {
		t.Errorf("PC() after dummy reserve = %04X, want 0304", b.PC())
	}
	if err := b.ExitDummy(); err != nil {
		t.Fatal(err)
	}
	if b.PC() != 0x2000 {
		t.Errorf("PC() after DEND = %04X, want 2000 (restored real PC)", b.PC())
	}
}

func TestExitDummyWithoutEnterFails(t *testing.T) {
	b := New()
	if err := b.ExitDummy(); err == nil {
		t.Errorf("expected error for DEND without DUM")
	}
}

func TestFlushAllWritesSAV(t *testing.T) {
	b := New()
	if err := b.SetOrigin(0x800); err != nil {
		t.Fatal(err)
	}
	bytes, _ := b.Reserve(2)
	bytes[0], bytes[1] = 0x00, 0xff

	dir := t.TempDir()
	b.QueueSAV("out.sav", 0x800, 2)
	if err := b.FlushAll(dir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.sav"))
	require.NoError(t, err)
	want := []byte{0x00, 0x08, 0x02, 0x00, 0x00, 0xff}
	require.Equal(t, want, data)
}
