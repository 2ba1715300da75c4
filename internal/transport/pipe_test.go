package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/dgr/internal/testutil/testlog"
)

func TestPipeFIFOAndNonBlockingReceive(t *testing.T) {
	testlog.Start(t)
	p := NewPipe()
	if _, ok, err := p.Receive(0); ok || err != nil {
		t.Fatalf("empty pipe: ok=%v err=%v", ok, err)
	}

	src := []byte("one")
	if _, err := p.Send(src); err != nil {
		t.Fatalf("send: %v", err)
	}
	src[0] = 'X'
	_, _ = p.Send([]byte("two"))

	got, ok, err := p.Receive(0)
	if err != nil || !ok || string(got) != "one" {
		t.Fatalf("first receive: %q ok=%v err=%v", got, ok, err)
	}
	got, ok, err = p.Receive(0)
	if err != nil || !ok || string(got) != "two" {
		t.Fatalf("second receive: %q ok=%v err=%v", got, ok, err)
	}
}

func TestPipeBlockingReceiveTimesOut(t *testing.T) {
	testlog.Start(t)
	p := NewPipe()
	start := time.Now()
	_, ok, err := p.Receive(30 * time.Millisecond)
	if ok || err != nil {
		t.Fatalf("expected timeout, ok=%v err=%v", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestPipeBlockingReceiveWakesOnSend(t *testing.T) {
	testlog.Start(t)
	p := NewPipe()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = p.Send([]byte("late"))
	}()
	got, ok, err := p.Receive(5 * time.Second)
	if err != nil || !ok || string(got) != "late" {
		t.Fatalf("receive: %q ok=%v err=%v", got, ok, err)
	}
}

func TestPipeClosed(t *testing.T) {
	testlog.Start(t)
	p := NewPipe()
	_ = p.Close()
	if _, err := p.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}
	if _, _, err := p.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on receive, got %v", err)
	}
}

func TestPipeRejectsOversizedDatagram(t *testing.T) {
	testlog.Start(t)
	p := NewPipe()
	if _, err := p.Send(make([]byte, MaxDatagramBytes+1)); !errors.Is(err, ErrDatagramTooLarge) {
		t.Fatalf("expected ErrDatagramTooLarge, got %v", err)
	}
}
