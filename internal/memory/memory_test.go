package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestImageReadWrite(t *testing.T) {
	ctx := context.Background()
	img := NewImage()
	if err := img.Map(0x20000000, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	got, err := img.ReadMemory(ctx, 0x20000001, 2)
	if err != nil {
		t.Fatalf("ReadMemory() error = %v", err)
	}
	if diff := cmp.Diff([]byte{2, 3}, got); diff != "" {
		t.Errorf("ReadMemory() mismatch (-want +got):\n%s", diff)
	}

	if err := img.WriteMemory(ctx, 0x20000002, []byte{9, 9}); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}
	got, _ = img.ReadMemory(ctx, 0x20000000, 4)
	if diff := cmp.Diff([]byte{1, 2, 9, 9}, got); diff != "" {
		t.Errorf("after write mismatch (-want +got):\n%s", diff)
	}
}

func TestImageReadReturnsCopy(t *testing.T) {
	img := NewImage()
	_ = img.Map(0x100, []byte{7})
	got, _ := img.ReadMemory(context.Background(), 0x100, 1)
	got[0] = 0
	again, _ := img.ReadMemory(context.Background(), 0x100, 1)
	if again[0] != 7 {
		t.Error("mutating a read result changed the image")
	}
}

func TestImageUnmapped(t *testing.T) {
	img := NewImage()
	_ = img.MapZero(0x1000, 16)

	tests := []struct {
		name   string
		addr   uint64
		length int
	}{
		{"before region", 0xff0, 4},
		{"straddles end", 0x100e, 4},
		{"after region", 0x2000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := img.ReadMemory(context.Background(), tt.addr, tt.length)
			var ue *UnmappedError
			if !errors.As(err, &ue) {
				t.Fatalf("ReadMemory() error = %v, want *UnmappedError", err)
			}
			if ue.Address != tt.addr {
				t.Errorf("UnmappedError.Address = 0x%x, want 0x%x", ue.Address, tt.addr)
			}
		})
	}
}

func TestImageMapOverlap(t *testing.T) {
	img := NewImage()
	_ = img.MapZero(0x1000, 0x100)
	if err := img.MapZero(0x10f0, 0x20); err == nil {
		t.Error("expected overlap error")
	}
	if err := img.MapZero(0x1100, 0x20); err != nil {
		t.Errorf("adjacent region rejected: %v", err)
	}
}

func TestImageCanceledContext(t *testing.T) {
	img := NewImage()
	_ = img.MapZero(0, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := img.ReadMemory(ctx, 0, 4); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadMemory() error = %v, want context.Canceled", err)
	}
}
