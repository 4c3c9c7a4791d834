package rtt

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAttachScan(t *testing.T) {
	tr, _ := attached(t, 64, 16, ModeNoBlockTrim)

	if got := tr.ControlBlockAddress(); got != cbAddr {
		t.Errorf("ControlBlockAddress() = 0x%x, want 0x%x", got, uint64(cbAddr))
	}

	got, err := tr.ListChannels()
	if err != nil {
		t.Fatalf("ListChannels() error = %v", err)
	}
	want := []Channel{
		{Index: 0, Direction: Up, Name: "Terminal", Size: 64, Mode: ModeNoBlockSkip, BufferAddress: upBuf, DescriptorAddress: upDesc},
		{Index: 0, Direction: Down, Name: "Terminal", Size: 16, Mode: ModeNoBlockTrim, BufferAddress: downBuf, DescriptorAddress: downDesc},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListChannels() mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachHint(t *testing.T) {
	tests := []struct {
		name string
		hint uint64
	}{
		{"exact hint", cbAddr},
		{"stale hint falls back to scan", cbAddr + 0x40},
		{"unmapped hint falls back to scan", 0x10000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newImage(t)
			writeControlBlock(t, img, cbAddr, 32, 32, ModeNoBlockSkip)
			tr := New(img, testOptions(), nil)
			if err := tr.Attach(context.Background(), tt.hint); err != nil {
				t.Fatalf("Attach() error = %v", err)
			}
			if got := tr.ControlBlockAddress(); got != cbAddr {
				t.Errorf("ControlBlockAddress() = 0x%x, want 0x%x", got, uint64(cbAddr))
			}
		})
	}
}

func TestAttachMagicAcrossChunkBoundary(t *testing.T) {
	img := newImage(t)
	// Chunk 0 covers [0,64); the ID starts 8 bytes before its end.
	at := uint64(ramBase + 56)
	writeControlBlock(t, img, at, 32, 32, ModeNoBlockSkip)

	opts := testOptions()
	opts.ScanChunkSize = 64
	tr := New(img, opts, nil)
	if err := tr.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if got := tr.ControlBlockAddress(); got != at {
		t.Errorf("ControlBlockAddress() = 0x%x, want 0x%x", got, at)
	}
}

func TestAttachNotFound(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *faultyMemory
	}{
		{
			name: "empty ram",
			setup: func(t *testing.T) *faultyMemory {
				img := newImage(t)
				return &faultyMemory{Interface: img}
			},
		},
		{
			name: "uninitialised counts",
			setup: func(t *testing.T) *faultyMemory {
				img := newImage(t)
				writeControlBlock(t, img, cbAddr, 32, 32, ModeNoBlockSkip)
				putWord(t, img, cbAddr+16, 0xffffffff)
				return &faultyMemory{Interface: img}
			},
		},
		{
			name: "probe always failing",
			setup: func(t *testing.T) *faultyMemory {
				img := newImage(t)
				writeControlBlock(t, img, cbAddr, 32, 32, ModeNoBlockSkip)
				return &faultyMemory{
					Interface: img,
					readFail:  func(int, uint64, int) bool { return true },
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.setup(t), testOptions(), nil)
			err := tr.Attach(context.Background(), 0)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Attach() error = %v, want ErrNotFound", err)
			}
			if _, err := tr.ListChannels(); !errors.Is(err, ErrNotAttached) {
				t.Errorf("ListChannels() after failed attach error = %v, want ErrNotAttached", err)
			}
		})
	}
}

func TestAttachRetriesTransientFaults(t *testing.T) {
	img := newImage(t)
	writeControlBlock(t, img, cbAddr, 32, 32, ModeNoBlockSkip)
	mem := &faultyMemory{
		Interface: img,
		readFail:  func(n int, _ uint64, _ int) bool { return n <= 2 },
	}

	tr := New(mem, testOptions(), nil)
	if err := tr.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
}

func TestAttachCanceled(t *testing.T) {
	tr := New(newImage(t), testOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Attach(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Attach() error = %v, want context.Canceled", err)
	}
}

func TestNotAttached(t *testing.T) {
	tr := New(newImage(t), testOptions(), nil)
	ctx := context.Background()

	if _, err := tr.Read(ctx, 0, 16); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Read() error = %v, want ErrNotAttached", err)
	}
	if _, err := tr.Write(ctx, 0, []byte("x")); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Write() error = %v, want ErrNotAttached", err)
	}
	if _, err := tr.ListChannels(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("ListChannels() error = %v, want ErrNotAttached", err)
	}
}

func TestDetach(t *testing.T) {
	tr, _ := attached(t, 32, 32, ModeNoBlockSkip)
	tr.Detach()
	if _, err := tr.Read(context.Background(), 0, 1); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Read() after Detach error = %v, want ErrNotAttached", err)
	}
	if got := tr.ControlBlockAddress(); got != 0 {
		t.Errorf("ControlBlockAddress() after Detach = 0x%x, want 0", got)
	}
}

func TestChannelNotFound(t *testing.T) {
	tr, _ := attached(t, 32, 32, ModeNoBlockSkip)
	ctx := context.Background()

	if _, err := tr.Read(ctx, 3, 1); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("Read(3) error = %v, want ErrChannelNotFound", err)
	}
	if _, err := tr.Write(ctx, -1, []byte("x")); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("Write(-1) error = %v, want ErrChannelNotFound", err)
	}
}

func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		size     uint32
		rd, wr   uint32
		fill     map[uint64][]byte
		maxBytes int
		want     []byte
		wantRd   uint32
	}{
		{
			name: "empty",
			size: 16, rd: 5, wr: 5,
			maxBytes: 16,
			want:     []byte{},
			wantRd:   5,
		},
		{
			name: "linear",
			size: 16, rd: 0, wr: 5,
			fill:     map[uint64][]byte{upBuf: []byte("hello")},
			maxBytes: 16,
			want:     []byte("hello"),
			wantRd:   5,
		},
		{
			name: "bounded by maxBytes",
			size: 16, rd: 0, wr: 5,
			fill:     map[uint64][]byte{upBuf: []byte("hello")},
			maxBytes: 3,
			want:     []byte("hel"),
			wantRd:   3,
		},
		{
			name: "wraps around",
			size: 16, rd: 12, wr: 4,
			fill: map[uint64][]byte{
				upBuf + 12: []byte("abcd"),
				upBuf:      []byte("efgh"),
			},
			maxBytes: 0,
			want:     []byte("abcdefgh"),
			wantRd:   4,
		},
		{
			name: "ends exactly at buffer end",
			size: 16, rd: 12, wr: 0,
			fill:     map[uint64][]byte{upBuf + 12: []byte("wxyz")},
			maxBytes: 64,
			want:     []byte("wxyz"),
			wantRd:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, img := attached(t, tt.size, 16, ModeNoBlockSkip)
			for addr, data := range tt.fill {
				putBytes(t, img, addr, data)
			}
			putWord(t, img, upDesc+offWrOff, tt.wr)
			putWord(t, img, upDesc+offRdOff, tt.rd)

			got, err := tr.Read(context.Background(), 0, tt.maxBytes)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got == nil {
				t.Fatal("Read() returned nil slice")
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Read() = %q, want %q", got, tt.want)
			}
			if rd := getWord(t, img, upDesc+offRdOff); rd != tt.wantRd {
				t.Errorf("RdOff = %d, want %d", rd, tt.wantRd)
			}
			if wr := getWord(t, img, upDesc+offWrOff); wr != tt.wr {
				t.Errorf("WrOff changed to %d, want %d", wr, tt.wr)
			}
		})
	}
}

func TestReadCorruptDescriptor(t *testing.T) {
	tr, img := attached(t, 16, 16, ModeNoBlockSkip)
	putWord(t, img, upDesc+offWrOff, 16)

	_, err := tr.Read(context.Background(), 0, 0)
	if !errors.Is(err, ErrCorruptDescriptor) {
		t.Fatalf("Read() error = %v, want ErrCorruptDescriptor", err)
	}
	var cde *CorruptDescriptorError
	if !errors.As(err, &cde) || cde.WrOff != 16 {
		t.Errorf("CorruptDescriptorError = %+v, want WrOff 16", cde)
	}
}

func TestReadNeverExceedsAvailable(t *testing.T) {
	const size = 32
	tr, img := attached(t, size, 16, ModeNoBlockSkip)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		wr := uint32(rng.Intn(size))
		rd := uint32(rng.Intn(size))
		maxBytes := rng.Intn(size + 8)
		putWord(t, img, upDesc+offWrOff, wr)
		putWord(t, img, upDesc+offRdOff, rd)

		got, err := tr.Read(context.Background(), 0, maxBytes)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		avail := available(wr, rd, size)
		if uint32(len(got)) > avail {
			t.Fatalf("wr=%d rd=%d: read %d bytes, only %d available", wr, rd, len(got), avail)
		}
		if maxBytes > 0 && len(got) > maxBytes {
			t.Fatalf("wr=%d rd=%d: read %d bytes, max %d", wr, rd, len(got), maxBytes)
		}
		wantRd := (rd + uint32(len(got))) % size
		if newRd := getWord(t, img, upDesc+offRdOff); newRd != wantRd {
			t.Fatalf("wr=%d rd=%d n=%d: RdOff = %d, want %d", wr, rd, len(got), newRd, wantRd)
		}
	}
}

func TestReadProbeFailureLeavesIndex(t *testing.T) {
	img := newImage(t)
	writeControlBlock(t, img, cbAddr, 16, 16, ModeNoBlockSkip)
	putWord(t, img, upDesc+offWrOff, 8)
	mem := &faultyMemory{Interface: img}
	tr := New(mem, testOptions(), nil)
	if err := tr.Attach(context.Background(), cbAddr); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	mem.readFail = func(_ int, addr uint64, _ int) bool { return addr == upBuf }
	_, err := tr.Read(context.Background(), 0, 0)
	if !errors.Is(err, ErrProbeIO) {
		t.Fatalf("Read() error = %v, want ErrProbeIO", err)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("Read() error does not wrap the probe cause: %v", err)
	}
	var pe *ProbeIOError
	if errors.As(err, &pe) && pe.Address != upBuf {
		t.Errorf("ProbeIOError.Address = 0x%x, want 0x%x", pe.Address, uint64(upBuf))
	}
	if rd := getWord(t, img, upDesc+offRdOff); rd != 0 {
		t.Errorf("RdOff = %d after failed read, want 0", rd)
	}
}

func TestReadLargeMaxBytes(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs 64-bit int")
	}
	tr, img := attached(t, 16, 16, ModeNoBlockSkip)
	putBytes(t, img, upBuf, []byte("hello"))
	putWord(t, img, upDesc+offWrOff, 5)

	// Truncating to 32 bits would leave a limit of 3.
	var limit uint64 = 1<<32 + 3
	got, err := tr.Read(context.Background(), 0, int(limit))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read() = %q, want %q", got, "hello")
	}
}

func TestConcurrentReads(t *testing.T) {
	const (
		size    = 64
		readers = 8
		chunk   = 3
	)
	tr, img := attached(t, size, 16, ModeNoBlockSkip)
	payload := make([]byte, size-2)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	putBytes(t, img, upBuf, payload)
	putWord(t, img, upDesc+offWrOff, uint32(len(payload)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[byte]int)
		errs []error
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := tr.Read(context.Background(), 0, chunk)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				}
				for _, b := range got {
					seen[b]++
				}
				mu.Unlock()
				if err != nil || len(got) == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Read() errors = %v", errs)
	}
	for _, b := range payload {
		if seen[b] != 1 {
			t.Errorf("byte %d read %d times, want 1", b, seen[b])
		}
	}
	if len(seen) != len(payload) {
		t.Errorf("read %d distinct bytes, want %d", len(seen), len(payload))
	}
	if rd := getWord(t, img, upDesc+offRdOff); rd != uint32(len(payload)) {
		t.Errorf("RdOff = %d, want %d", rd, len(payload))
	}
}

func TestConcurrentWrites(t *testing.T) {
	const writers = 4
	tr, img := attached(t, 16, 32, ModeNoBlockSkip)

	var wg sync.WaitGroup
	counts := make([]int, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := byte('a' + i)
			counts[i], errs[i] = tr.Write(context.Background(), 0, []byte{b, b, b})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Write() #%d error = %v", i, err)
		}
		if counts[i] != 3 {
			t.Errorf("Write() #%d = %d, want 3", i, counts[i])
		}
	}
	if wr := getWord(t, img, downDesc+offWrOff); wr != writers*3 {
		t.Fatalf("WrOff = %d, want %d", wr, writers*3)
	}

	// Each write lands as one contiguous run.
	buf, _ := img.ReadMemory(context.Background(), downBuf, writers*3)
	runs := make(map[byte]int)
	for i := 0; i < len(buf); i += 3 {
		if buf[i] != buf[i+1] || buf[i] != buf[i+2] {
			t.Fatalf("down buffer = %q, writes interleaved", buf)
		}
		runs[buf[i]]++
	}
	for i := 0; i < writers; i++ {
		if runs[byte('a'+i)] != 1 {
			t.Errorf("down buffer = %q, want one run of %q", buf, 'a'+i)
		}
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		rd, wr  uint32
		data    string
		want    int
		wantWr  uint32
		wantBuf map[uint64]string
	}{
		{
			name: "fits",
			mode: ModeNoBlockSkip,
			data: "hello", want: 5, wantWr: 5,
			wantBuf: map[uint64]string{downBuf: "hello"},
		},
		{
			name: "skip mode partial",
			mode: ModeNoBlockSkip,
			rd:   0, wr: 10,
			data: "12345678", want: 5, wantWr: 15,
			wantBuf: map[uint64]string{downBuf + 10: "12345"},
		},
		{
			name: "trim mode partial",
			mode: ModeNoBlockTrim,
			rd:   0, wr: 10,
			data: "12345678", want: 5, wantWr: 15,
			wantBuf: map[uint64]string{downBuf + 10: "12345"},
		},
		{
			name: "block mode returns partial count",
			mode: ModeBlockIfFull,
			rd:   4, wr: 0,
			data: "abcdef", want: 3, wantWr: 3,
			wantBuf: map[uint64]string{downBuf: "abc"},
		},
		{
			name: "wraps around",
			mode: ModeNoBlockSkip,
			rd:   10, wr: 14,
			data: "uvwxyz", want: 6, wantWr: 4,
			wantBuf: map[uint64]string{downBuf + 14: "uv", downBuf: "wxyz"},
		},
		{
			name: "full",
			mode: ModeNoBlockSkip,
			rd:   3, wr: 2,
			data: "zz", want: 0, wantWr: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, img := attached(t, 16, 16, tt.mode)
			putWord(t, img, downDesc+offWrOff, tt.wr)
			putWord(t, img, downDesc+offRdOff, tt.rd)

			n, err := tr.Write(context.Background(), 0, []byte(tt.data))
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if n != tt.want {
				t.Errorf("Write() = %d, want %d", n, tt.want)
			}
			if wr := getWord(t, img, downDesc+offWrOff); wr != tt.wantWr {
				t.Errorf("WrOff = %d, want %d", wr, tt.wantWr)
			}
			if rd := getWord(t, img, downDesc+offRdOff); rd != tt.rd {
				t.Errorf("RdOff changed to %d, want %d", rd, tt.rd)
			}
			for addr, want := range tt.wantBuf {
				got, _ := img.ReadMemory(context.Background(), addr, len(want))
				if string(got) != want {
					t.Errorf("buffer at 0x%x = %q, want %q", addr, got, want)
				}
			}
		})
	}
}

func TestWriteProbeFailureLeavesIndex(t *testing.T) {
	img := newImage(t)
	writeControlBlock(t, img, cbAddr, 16, 16, ModeNoBlockSkip)
	putWord(t, img, downDesc+offWrOff, 14)
	putWord(t, img, downDesc+offRdOff, 10)
	mem := &faultyMemory{Interface: img}
	tr := New(mem, testOptions(), nil)
	if err := tr.Attach(context.Background(), cbAddr); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	// Fail the second half of a wrapped write.
	mem.writeFail = func(addr uint64, _ []byte) bool { return addr == downBuf }
	_, err := tr.Write(context.Background(), 0, []byte("uvwxyz"))
	if !errors.Is(err, ErrProbeIO) {
		t.Fatalf("Write() error = %v, want ErrProbeIO", err)
	}
	if wr := getWord(t, img, downDesc+offWrOff); wr != 14 {
		t.Errorf("WrOff = %d after failed write, want 14", wr)
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeNoBlockSkip, "no-block-skip"},
		{ModeNoBlockTrim, "no-block-trim"},
		{ModeBlockIfFull, "block-if-full"},
		{Mode(3), "mode(3)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", uint32(tt.mode), got, tt.want)
		}
	}
}

func TestAvailableAndFree(t *testing.T) {
	tests := []struct {
		wr, rd, size    uint32
		wantAvail, free uint32
	}{
		{0, 0, 16, 0, 15},
		{5, 0, 16, 5, 10},
		{4, 12, 16, 8, 7},
		{15, 0, 16, 15, 0},
		{2, 3, 16, 15, 0},
	}
	for _, tt := range tests {
		if got := available(tt.wr, tt.rd, tt.size); got != tt.wantAvail {
			t.Errorf("available(%d,%d,%d) = %d, want %d", tt.wr, tt.rd, tt.size, got, tt.wantAvail)
		}
		if got := free(tt.wr, tt.rd, tt.size); got != tt.free {
			t.Errorf("free(%d,%d,%d) = %d, want %d", tt.wr, tt.rd, tt.size, got, tt.free)
		}
	}
}
