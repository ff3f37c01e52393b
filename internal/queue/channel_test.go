package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChannelFIFO(t *testing.T) {
	t.Parallel()
	ch := NewChannel()
	want := []Control{Suspend(time.Second), Suspend(2 * time.Second), Terminate()}
	for _, m := range want {
		if err := ch.Send(m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if ch.Len() != 3 {
		t.Fatalf("Len = %d", ch.Len())
	}
	for i, w := range want {
		got, ok := ch.TryRecv()
		if !ok || got != w {
			t.Fatalf("msg %d = %v (%v), want %v", i, got, ok, w)
		}
	}
	if _, ok := ch.TryRecv(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestChannelRecvBlocksUntilSend(t *testing.T) {
	t.Parallel()
	ch := NewChannel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = ch.Send(Terminate())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := ch.Recv(ctx)
	if err != nil || m.Kind() != ControlTerminate {
		t.Fatalf("Recv = %v, %v", m, err)
	}
}

func TestChannelClosed(t *testing.T) {
	t.Parallel()
	ch := NewChannel()
	_ = ch.Send(Suspend(time.Second))
	ch.Close()
	if err := ch.Send(Terminate()); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send after close = %v", err)
	}
	if _, err := ch.Recv(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Recv after close = %v", err)
	}
}

func TestChannelRecvCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewChannel().Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Recv = %v", err)
	}
}

func TestControlFromMillis(t *testing.T) {
	t.Parallel()
	c, err := ControlFromMillis(0)
	if err != nil || c.Kind() != ControlTerminate {
		t.Fatalf("0 = %v, %v", c, err)
	}
	c, err = ControlFromMillis(1500)
	if err != nil || c.Kind() != ControlSuspend || c.Duration() != 1500*time.Millisecond {
		t.Fatalf("1500 = %v, %v", c, err)
	}
	if _, err := ControlFromMillis(-1); !errors.Is(err, ErrInvalidSuspend) {
		t.Fatalf("-1 = %v", err)
	}
}

func TestParseExecType(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "once", false},
		{"once", "once", false},
		{"FOREVER", "forever", false},
		{"multiple:3", "multiple:3", false},
		{"5", "multiple:5", false},
		{"multiple:0", "", true},
		{"multiple:-2", "", true},
		{"sometimes", "", true},
	}
	for _, tc := range cases {
		got, err := ParseExecType(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidExecType) {
				t.Fatalf("ParseExecType(%q) err = %v", tc.in, err)
			}
			continue
		}
		if err != nil || got.String() != tc.want {
			t.Fatalf("ParseExecType(%q) = %v, %v; want %s", tc.in, got, err, tc.want)
		}
	}
	if err := (ExecType{}).Validate(); !errors.Is(err, ErrInvalidExecType) {
		t.Fatalf("zero ExecType valid: %v", err)
	}
}
