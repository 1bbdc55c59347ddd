package klog

import "testing"

type fakeSink struct {
	buf []byte
}

func (s *fakeSink) WriteByte(c byte)    { s.buf = append(s.buf, c) }
func (s *fakeSink) WriteString(str string) { s.buf = append(s.buf, []byte(str)...) }

func TestNoSinkInstalledIsANoOp(t *testing.T) {
	Install(nil)
	if Installed() {
		t.Fatal("expected no sink installed")
	}
	Puts("hello")
	Putc('x')
	Hex64(0xDEADBEEF)
	Uint(42)
}

func TestPutsAndPutcWriteToTheInstalledSink(t *testing.T) {
	s := &fakeSink{}
	Install(s)
	defer Install(nil)

	Puts("abc")
	Putc('!')

	if string(s.buf) != "abc!" {
		t.Fatalf("expected %q, got %q", "abc!", s.buf)
	}
}

func TestHex64WritesSixteenUppercaseDigits(t *testing.T) {
	s := &fakeSink{}
	Install(s)
	defer Install(nil)

	Hex64(0x00000000DEADBEEF)

	want := "00000000DEADBEEF"
	if string(s.buf) != want {
		t.Fatalf("expected %q, got %q", want, s.buf)
	}
}

func TestUintWritesDecimalDigits(t *testing.T) {
	cases := []struct {
		n    uint64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{42, "42"},
		{4294967295, "4294967295"},
	}

	for _, c := range cases {
		s := &fakeSink{}
		Install(s)
		Uint(c.n)
		if string(s.buf) != c.want {
			t.Fatalf("Uint(%d): expected %q, got %q", c.n, c.want, s.buf)
		}
		Install(nil)
	}
}
