package sstr

import "testing"

func TestSplitFirstField(t *testing.T) {
	s := New("lda   #$100 ; comment")
	field, rest := s.SplitFirstField()
	if field.Raw() != "lda" {
		t.Errorf("field = %q, want %q", field.Raw(), "lda")
	}
	if rest.Raw() != "#$100 ; comment" {
		t.Errorf("rest = %q, want %q", rest.Raw(), "#$100 ; comment")
	}
}

func TestSliceIsNonOwning(t *testing.T) {
	backing := "entry lda #$60"
	s := New(backing)
	sub := s.Slice(0, 5)
	if sub.Raw() != "entry" {
		t.Errorf("sub = %q, want %q", sub.Raw(), "entry")
	}
}

func TestIndexByteAndTrim(t *testing.T) {
	s := New("  foo;bar")
	trimmed := s.TrimSpace()
	if trimmed.IndexByte(';') != 3 {
		t.Errorf("IndexByte(';') = %d, want 3", trimmed.IndexByte(';'))
	}
}
