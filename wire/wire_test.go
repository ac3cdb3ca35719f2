package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cipher := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := WriteFrame(&buf, "example_sensor", 42, cipher); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	f, err := ReadFrame(bufio.NewReader(&buf), Hooks{})
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Name != "example_sensor" {
		t.Fatalf("Name = %q, want %q", f.Name, "example_sensor")
	}
	if f.CounterLo != 42 {
		t.Fatalf("CounterLo = %d, want 42", f.CounterLo)
	}
	if !bytes.Equal(f.Cipher, cipher) {
		t.Fatalf("Cipher = %v, want %v", f.Cipher, cipher)
	}
}

func TestReadFrameResynchronizesPastGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("garbage garbage garbage ")
	if err := WriteFrame(&buf, "s1", 1, []byte{9, 9, 9}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var garbageSeen int
	hooks := Hooks{OnGarbage: func(n int) { garbageSeen += n }}
	f, err := ReadFrame(bufio.NewReader(&buf), hooks)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Name != "s1" {
		t.Fatalf("Name = %q, want s1", f.Name)
	}
	if garbageSeen != len("garbage garbage garbage ") {
		t.Fatalf("garbageSeen = %d, want %d", garbageSeen, len("garbage garbage garbage "))
	}
}

func TestReadFrameResynchronizesPastInvalidUTF8Name(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('>')
	buf.Write([]byte{0xFF, 0xFE, 0xFD}) // not valid UTF-8
	buf.WriteByte('<')
	if err := WriteFrame(&buf, "good_name", 3, []byte{1, 2}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var invalidCalls int
	hooks := Hooks{OnInvalidName: func(raw []byte) { invalidCalls++ }}
	f, err := ReadFrame(bufio.NewReader(&buf), hooks)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if invalidCalls != 1 {
		t.Fatalf("invalidCalls = %d, want 1", invalidCalls)
	}
	if f.Name != "good_name" {
		t.Fatalf("Name = %q, want good_name", f.Name)
	}
}

func TestReadFrameCleanEOFAtSeekOpen(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(nil)), Hooks{})
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestReadFrameTruncatedMidFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(">sensor<")
	buf.Write([]byte{1, 2}) // only 2 of 5 counter bytes

	_, err := ReadFrame(bufio.NewReader(&buf), Hooks{})
	if err == nil {
		t.Fatal("expected truncation error, got nil")
	}
}

func TestNonceLayout(t *testing.T) {
	iv := [8]byte{0, 1, 2, 3, 4, 5, 6, 7}
	n := Nonce(0x0102030405, iv)
	want := [13]byte{0x05, 0x04, 0x03, 0x02, 0x01, 0, 1, 2, 3, 4, 5, 6, 7}
	if n != want {
		t.Fatalf("Nonce = %x, want %x", n, want)
	}
}

func TestEmptyNameIsAccepted(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, "", 0, []byte{1}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f, err := ReadFrame(bufio.NewReader(&buf), Hooks{})
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Name != "" {
		t.Fatalf("Name = %q, want empty", f.Name)
	}
}

func TestZeroLengthCipherIsSyntacticallyAccepted(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, "s", 0, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f, err := ReadFrame(bufio.NewReader(&buf), Hooks{})
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(f.Cipher) != 0 {
		t.Fatalf("Cipher length = %d, want 0", len(f.Cipher))
	}
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, "s1", 0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteFrame 1: %v", err)
	}
	if err := WriteFrame(&buf, "s2", 1, []byte{4, 5}); err != nil {
		t.Fatalf("WriteFrame 2: %v", err)
	}

	r := bufio.NewReader(&buf)
	f1, err := ReadFrame(r, Hooks{})
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	if f1.Name != "s1" {
		t.Fatalf("frame 1 name = %q, want s1", f1.Name)
	}

	f2, err := ReadFrame(r, Hooks{})
	if err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}
	if f2.Name != "s2" {
		t.Fatalf("frame 2 name = %q, want s2", f2.Name)
	}
}
