package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/danmuck/dgr/internal/registry"
	"github.com/danmuck/dgr/internal/testutil/testlog"
)

func TestRoundTripEncodeDecode(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	src := registry.New(registry.DefaultLimits())
	for i := 0; i < 40; i++ {
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		if err := src.Set(fmt.Sprintf("var.%d", i), data); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := src.Set("empty", nil); err != nil {
		t.Fatalf("set empty: %v", err)
	}

	packet, err := Marshal(src)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dst := registry.New(registry.DefaultLimits())
	if err := DecodeInto(dst, packet); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if dst.Len() != src.Len() {
		t.Fatalf("record count mismatch: got=%d want=%d", dst.Len(), src.Len())
	}
	for name, want := range src.All() {
		got := make([]byte, len(want))
		n, err := dst.Get(name, got)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if n != len(want) || !bytes.Equal(got, want) {
			t.Fatalf("value mismatch for %s", name)
		}
	}

	again, err := Marshal(dst)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(packet, again) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestEncodeScoreExample(t *testing.T) {
	testlog.Start(t)
	reg := registry.New(registry.DefaultLimits())
	value := make([]byte, 4)
	binary.NativeEndian.PutUint32(value, 10)
	if err := reg.Set("score", value); err != nil {
		t.Fatalf("set: %v", err)
	}

	packet, err := Marshal(reg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := []byte("score\x00")
	want = binary.NativeEndian.AppendUint32(want, 4)
	want = binary.NativeEndian.AppendUint32(want, 10)
	if len(packet) != 14 {
		t.Fatalf("expected 14 bytes, got %d", len(packet))
	}
	if !bytes.Equal(packet, want) {
		t.Fatalf("packet mismatch: got=%x want=%x", packet, want)
	}

	slave := registry.New(registry.DefaultLimits())
	if err := DecodeInto(slave, packet); err != nil {
		t.Fatalf("decode: %v", err)
	}
	buf := make([]byte, 4)
	n, err := slave.Get("score", buf)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n != 4 || binary.NativeEndian.Uint32(buf) != 10 {
		t.Fatalf("unexpected score n=%d buf=%x", n, buf)
	}
}

func TestEncodeEmptyRegistry(t *testing.T) {
	testlog.Start(t)
	packet, err := Marshal(registry.New(registry.DefaultLimits()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(packet) != 0 {
		t.Fatalf("expected empty packet, got %d bytes", len(packet))
	}
	records, err := Decode(packet, registry.DefaultLimits())
	if err != nil || len(records) != 0 {
		t.Fatalf("decode empty: records=%d err=%v", len(records), err)
	}
}

func TestEncodeWritesSinglePacket(t *testing.T) {
	testlog.Start(t)
	reg := registry.New(registry.DefaultLimits())
	_ = reg.Set("a", []byte("1"))
	_ = reg.Set("b", []byte("22"))

	w := &countingWriter{}
	if err := Encode(w, reg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if w.writes != 1 {
		t.Fatalf("expected one write, got %d", w.writes)
	}
	n, _ := EncodedLen(reg)
	if w.buf.Len() != n {
		t.Fatalf("encoded len mismatch: wrote=%d want=%d", w.buf.Len(), n)
	}
}

func TestDecodeSizeBeyondInput(t *testing.T) {
	testlog.Start(t)
	packet := []byte("x\x00")
	packet = binary.NativeEndian.AppendUint32(packet, 1000)
	packet = append(packet, 1, 2, 3)

	_, err := Decode(packet, registry.DefaultLimits())
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket wrapper, got %v", err)
	}
}

func TestDecodeNegativeSize(t *testing.T) {
	testlog.Start(t)
	packet := []byte("x\x00")
	packet = binary.NativeEndian.AppendUint32(packet, 0xffffffff)
	_, err := Decode(packet, registry.DefaultLimits())
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	testlog.Start(t)
	cases := map[string][]byte{
		"no terminator":    []byte("name"),
		"short size field": []byte("name\x00\x01\x00"),
	}
	for label, packet := range cases {
		if _, err := Decode(packet, registry.DefaultLimits()); !errors.Is(err, ErrTruncated) {
			t.Fatalf("%s: expected ErrTruncated, got %v", label, err)
		}
	}
}

func TestDecodeEmptyAndLongNames(t *testing.T) {
	testlog.Start(t)
	packet := binary.NativeEndian.AppendUint32([]byte{0}, 0)
	if _, err := Decode(packet, registry.DefaultLimits()); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	long := append(bytes.Repeat([]byte("n"), 8), 0)
	long = binary.NativeEndian.AppendUint32(long, 0)
	if _, err := Decode(long, registry.Limits{MaxNameBytes: 8}); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}

func TestDecodeIntoMalformedLeavesRegistry(t *testing.T) {
	testlog.Start(t)
	reg := registry.New(registry.DefaultLimits())
	_ = reg.Set("a", []byte{1})

	packet := AppendRecord(nil, "a", []byte{2})
	packet = append(packet, "b\x00\x09"...)
	if err := DecodeInto(reg, packet); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
	buf := make([]byte, 1)
	if _, err := reg.Get("a", buf); err != nil || buf[0] != 1 {
		t.Fatalf("partial apply detected: %v err=%v", buf, err)
	}
}

type countingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}
