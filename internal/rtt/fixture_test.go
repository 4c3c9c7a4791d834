package rtt

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/muurk/crashprobe/internal/memory"
)

const (
	ramBase  = 0x20000000
	ramSize  = 0x10000
	cbAddr   = 0x20000100
	upDesc   = cbAddr + headerSize
	downDesc = upDesc + descriptorSize
	nameAddr = 0x20000f00
	upBuf    = 0x20001000
	downBuf  = 0x20002000
)

var errInjected = errors.New("injected probe fault")

// faultyMemory lets tests fail selected transfers.
type faultyMemory struct {
	memory.Interface

	mu        sync.Mutex
	reads     int
	readFail  func(n int, addr uint64, length int) bool
	writeFail func(addr uint64, data []byte) bool
}

func (f *faultyMemory) ReadMemory(ctx context.Context, addr uint64, length int) ([]byte, error) {
	f.mu.Lock()
	f.reads++
	n := f.reads
	fail := f.readFail != nil && f.readFail(n, addr, length)
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Interface.ReadMemory(ctx, addr, length)
}

func (f *faultyMemory) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	f.mu.Lock()
	fail := f.writeFail != nil && f.writeFail(addr, data)
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Interface.WriteMemory(ctx, addr, data)
}

func putWord(t *testing.T, img *memory.Image, addr uint64, v uint32) {
	t.Helper()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if err := img.WriteMemory(context.Background(), addr, b[:]); err != nil {
		t.Fatalf("putWord(0x%x) error = %v", addr, err)
	}
}

func getWord(t *testing.T, img *memory.Image, addr uint64) uint32 {
	t.Helper()
	b, err := img.ReadMemory(context.Background(), addr, 4)
	if err != nil {
		t.Fatalf("getWord(0x%x) error = %v", addr, err)
	}
	return binary.LittleEndian.Uint32(b)
}

func putBytes(t *testing.T, img *memory.Image, addr uint64, data []byte) {
	t.Helper()
	if err := img.WriteMemory(context.Background(), addr, data); err != nil {
		t.Fatalf("putBytes(0x%x) error = %v", addr, err)
	}
}

// writeControlBlock lays out a control block with one up and one down channel.
func writeControlBlock(t *testing.T, img *memory.Image, at uint64, upSize, downSize uint32, mode Mode) {
	t.Helper()
	putBytes(t, img, at, Magic)
	putWord(t, img, at+16, 1)
	putWord(t, img, at+20, 1)

	up := at + headerSize
	putWord(t, img, up+offName, nameAddr)
	putWord(t, img, up+offBuffer, upBuf)
	putWord(t, img, up+offSize, upSize)

	down := up + descriptorSize
	putWord(t, img, down+offName, nameAddr)
	putWord(t, img, down+offBuffer, downBuf)
	putWord(t, img, down+offSize, downSize)
	putWord(t, img, down+offFlags, uint32(mode))
}

func newImage(t *testing.T) *memory.Image {
	t.Helper()
	img := memory.NewImage()
	if err := img.MapZero(ramBase, ramSize); err != nil {
		t.Fatalf("MapZero() error = %v", err)
	}
	putBytes(t, img, nameAddr, []byte("Terminal\x00"))
	return img
}

func testOptions() Options {
	return Options{
		ScanRanges:        []ScanRange{{Start: ramBase, Size: ramSize}},
		ScanChunkSize:     256,
		AttachAttempts:    3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
}

// attached returns a transport attached to a standard fixture.
func attached(t *testing.T, upSize, downSize uint32, mode Mode) (*Transport, *memory.Image) {
	t.Helper()
	img := newImage(t)
	writeControlBlock(t, img, cbAddr, upSize, downSize, mode)
	tr := New(img, testOptions(), nil)
	if err := tr.Attach(context.Background(), 0); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return tr, img
}
