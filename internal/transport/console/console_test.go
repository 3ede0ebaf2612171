package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"todox/internal/transport"
)

func fixedNow() time.Time { return time.Date(2024, 6, 1, 8, 45, 0, 0, time.UTC) }

func TestShowAndDismiss(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	s := New(Config{Out: &out, Now: fixedNow})
	ctx := context.Background()

	ref, err := s.Show(ctx, transport.Message{Tag: "task-1-15min", Title: "Task Reminder", Body: "Task due soon (15min): Pay rent"})
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := out.String(); got != "08:45:00  Task Reminder: Task due soon (15min): Pay rent\n" {
		t.Fatalf("output = %q", got)
	}
	if open := s.Open(); len(open) != 1 || open[0] != "task-1-15min" {
		t.Fatalf("open = %v", open)
	}
	if err := s.Dismiss(ctx, ref); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if len(s.Open()) != 0 {
		t.Fatalf("dismissed notification still open")
	}
}

func TestRequestPermissionPromptsOnce(t *testing.T) {
	t.Parallel()
	tests := []struct {
		answer string
		want   transport.Permission
	}{
		{"y\n", transport.PermissionGranted},
		{"YES\n", transport.PermissionGranted},
		{"n\n", transport.PermissionDenied},
		{"\n", transport.PermissionDenied},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		// a trailing "y" must never be consumed by a second request
		s := New(Config{Permission: transport.PermissionDefault, Out: &out, In: strings.NewReader(tt.answer + "y\n")})
		got, err := s.RequestPermission(context.Background())
		if err != nil {
			t.Fatalf("%q: %v", tt.answer, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %s want %s", tt.answer, got, tt.want)
		}
		again, _ := s.RequestPermission(context.Background())
		if again != got {
			t.Fatalf("%q: second request changed permission to %s", tt.answer, again)
		}
		if strings.Count(out.String(), "[y/N]") != 1 {
			t.Fatalf("%q: prompt shown %d times", tt.answer, strings.Count(out.String(), "[y/N]"))
		}
	}
}

func TestRequestPermissionWithoutInput(t *testing.T) {
	t.Parallel()
	s := New(Config{Permission: transport.PermissionDefault})
	got, err := s.RequestPermission(context.Background())
	if err != nil || got != transport.PermissionDenied {
		t.Fatalf("got %s, %v", got, err)
	}

	granted := New(Config{})
	if p, _ := granted.RequestPermission(context.Background()); p != transport.PermissionGranted {
		t.Fatalf("default permission should be granted, got %s", p)
	}
}
