package rtt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/muurk/crashprobe/internal/logging"
	"github.com/muurk/crashprobe/internal/memory"
)

// ScanRange is a region of target RAM searched for the control block.
type ScanRange struct {
	Start uint64
	Size  uint64
}

// Options tunes control block discovery.
type Options struct {
	// ScanRanges are searched in order when no hint is given or the hint
	// does not hold the control block ID.
	// Default: 64 KiB at 0x20000000
	ScanRanges []ScanRange

	// ScanChunkSize is the size of each scan read.
	// Default: 1024
	ScanChunkSize int

	// MaxChannels bounds MaxNumUpBuffers and MaxNumDownBuffers. Larger
	// counts mean the block is not initialised yet.
	// Default: 16
	MaxChannels int

	// MaxNameLength bounds channel name reads.
	// Default: 32
	MaxNameLength int

	// AttachAttempts is the total number of attach attempts.
	// Default: 8
	AttachAttempts int

	// InitialBackoff is the delay after the first failed attempt.
	// Default: 250ms
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	// Default: 2s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	// Default: 1.5
	BackoffMultiplier float64
}

// DefaultOptions returns the default discovery settings.
func DefaultOptions() Options {
	return Options{
		ScanRanges:        []ScanRange{{Start: 0x20000000, Size: 0x10000}},
		ScanChunkSize:     1024,
		MaxChannels:       16,
		MaxNameLength:     32,
		AttachAttempts:    8,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.ScanRanges) == 0 {
		o.ScanRanges = d.ScanRanges
	}
	if o.ScanChunkSize <= len(Magic) {
		o.ScanChunkSize = d.ScanChunkSize
	}
	if o.MaxChannels <= 0 {
		o.MaxChannels = d.MaxChannels
	}
	if o.MaxNameLength <= 0 {
		o.MaxNameLength = d.MaxNameLength
	}
	if o.AttachAttempts <= 0 {
		o.AttachAttempts = d.AttachAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = d.BackoffMultiplier
	}
	return o
}

// errNoControlBlock is the per-attempt failure that attach retries on.
var errNoControlBlock = errors.New("no initialised control block in scan ranges")

type controlBlock struct {
	address uint64
	up      []Channel
	down    []Channel
}

// Transport is an RTT session over one memory interface.
type Transport struct {
	mu     sync.Mutex
	mem    memory.Interface
	opts   Options
	logger *zap.Logger
	cb     *controlBlock
}

// New creates a detached transport. A nil logger disables logging.
func New(mem memory.Interface, opts Options, logger *zap.Logger) *Transport {
	return &Transport{
		mem:    mem,
		opts:   opts.withDefaults(),
		logger: logging.OrNop(logger),
	}
}

// Attach locates the control block and caches its channel descriptors.
//
// A nonzero hint is tried first (usually the _SEGGER_RTT symbol address);
// when it does not hold the control block ID the scan ranges are searched.
// Failed attempts, including probe errors while the target is mid-reset, are
// retried with exponential backoff. When attempts run out the error matches
// ErrNotFound and wraps the last cause.
func (t *Transport) Attach(ctx context.Context, hint uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cb = nil

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.InitialBackoff
	b.MaxInterval = t.opts.MaxBackoff
	b.Multiplier = t.opts.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(t.opts.AttachAttempts-1)),
		ctx,
	)

	attempt := 0
	var cb *controlBlock
	operation := func() error {
		attempt++
		found, err := t.attachOnce(ctx, hint)
		if err != nil {
			return err
		}
		cb = found
		return nil
	}
	notify := func(err error, next time.Duration) {
		t.logger.Warn("RTT attach attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.opts.AttachAttempts),
			zap.Duration("next", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rtt attach canceled after %d attempts: %w", attempt, ctxErr)
		}
		return fmt.Errorf("%w after %d attempts: %w", ErrNotFound, attempt, err)
	}

	t.cb = cb
	t.logger.Info("RTT attached",
		zap.String("control_block", fmt.Sprintf("0x%08x", cb.address)),
		zap.Int("up_channels", len(cb.up)),
		zap.Int("down_channels", len(cb.down)),
		zap.Int("attempts", attempt))
	return nil
}

func (t *Transport) attachOnce(ctx context.Context, hint uint64) (*controlBlock, error) {
	addr, err := t.locate(ctx, hint)
	if err != nil {
		return nil, err
	}
	return t.readControlBlock(ctx, addr)
}

func (t *Transport) locate(ctx context.Context, hint uint64) (uint64, error) {
	if hint != 0 {
		id, err := t.read(ctx, hint, idSize)
		if err == nil && bytes.Equal(id, Magic) {
			return hint, nil
		}
		t.logger.Warn("RTT control block not at hinted address, scanning",
			zap.String("hint", fmt.Sprintf("0x%08x", hint)),
			zap.Error(err))
	}

	for _, r := range t.opts.ScanRanges {
		addr, ok, err := t.scan(ctx, r)
		if err != nil {
			return 0, err
		}
		if ok {
			return addr, nil
		}
	}
	return 0, errNoControlBlock
}

// scan searches one range in chunks. Consecutive chunks overlap by
// len(Magic)-1 bytes so an ID straddling a chunk boundary is still seen.
func (t *Transport) scan(ctx context.Context, r ScanRange) (uint64, bool, error) {
	overlap := uint64(len(Magic) - 1)
	step := uint64(t.opts.ScanChunkSize) - overlap
	end := r.Start + r.Size

	for pos := r.Start; pos < end; pos += step {
		n := uint64(t.opts.ScanChunkSize)
		if pos+n > end {
			n = end - pos
		}
		if n < uint64(len(Magic)) {
			break
		}
		chunk, err := t.read(ctx, pos, int(n))
		if err != nil {
			return 0, false, err
		}
		if i := bytes.Index(chunk, Magic); i >= 0 {
			return pos + uint64(i), true, nil
		}
		if pos+n >= end {
			break
		}
	}
	return 0, false, nil
}

func (t *Transport) readControlBlock(ctx context.Context, addr uint64) (*controlBlock, error) {
	hdr, err := t.read(ctx, addr+idSize, 8)
	if err != nil {
		return nil, err
	}
	numUp := int32(binary.LittleEndian.Uint32(hdr[0:]))
	numDown := int32(binary.LittleEndian.Uint32(hdr[4:]))
	limit := int32(t.opts.MaxChannels)
	if numUp < 0 || numUp > limit || numDown < 0 || numDown > limit {
		return nil, fmt.Errorf("%w: control block at 0x%08x has %d up / %d down buffers",
			errNoControlBlock, addr, numUp, numDown)
	}

	total := int(numUp + numDown)
	cb := &controlBlock{address: addr}
	if total == 0 {
		return cb, nil
	}

	descBase := addr + headerSize
	raw, err := t.read(ctx, descBase, total*descriptorSize)
	if err != nil {
		return nil, err
	}

	for i := 0; i < total; i++ {
		d := decodeDescriptor(raw[i*descriptorSize:])
		ch := Channel{
			Direction:         Up,
			Index:             i,
			Size:              d.size,
			Mode:              Mode(d.flags & modeMask),
			BufferAddress:     uint64(d.buffer),
			DescriptorAddress: descBase + uint64(i*descriptorSize),
		}
		if i >= int(numUp) {
			ch.Direction = Down
			ch.Index = i - int(numUp)
		}
		if d.namePtr != 0 {
			name, err := t.read(ctx, uint64(d.namePtr), t.opts.MaxNameLength)
			if err != nil {
				return nil, err
			}
			ch.Name = cString(name)
		}
		if ch.Direction == Up {
			cb.up = append(cb.up, ch)
		} else {
			cb.down = append(cb.down, ch)
		}
	}
	return cb, nil
}

// ListChannels returns a snapshot of the configured channels found at
// attach time, up channels first. It does not touch the target.
func (t *Transport) ListChannels() ([]Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cb == nil {
		return nil, ErrNotAttached
	}

	out := make([]Channel, 0, len(t.cb.up)+len(t.cb.down))
	for _, ch := range t.cb.up {
		if ch.Configured() {
			out = append(out, ch)
		}
	}
	for _, ch := range t.cb.down {
		if ch.Configured() {
			out = append(out, ch)
		}
	}
	return out, nil
}

// ControlBlockAddress returns the attached control block address, or 0.
func (t *Transport) ControlBlockAddress() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb == nil {
		return 0
	}
	return t.cb.address
}

// Detach drops the cached descriptors. The target is not touched.
func (t *Transport) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb != nil {
		t.logger.Debug("RTT detached", zap.String("control_block", fmt.Sprintf("0x%08x", t.cb.address)))
	}
	t.cb = nil
}

func (t *Transport) channel(dir Direction, index int) (Channel, error) {
	if t.cb == nil {
		return Channel{}, ErrNotAttached
	}
	list := t.cb.up
	if dir == Down {
		list = t.cb.down
	}
	if index < 0 || index >= len(list) || !list[index].Configured() {
		return Channel{}, fmt.Errorf("%w: %s channel %d", ErrChannelNotFound, dir, index)
	}
	return list[index], nil
}

// offsets reads WrOff and RdOff in one transfer and validates them.
func (t *Transport) offsets(ctx context.Context, ch Channel) (wr, rd uint32, err error) {
	raw, err := t.read(ctx, ch.DescriptorAddress+offWrOff, 8)
	if err != nil {
		return 0, 0, err
	}
	wr = binary.LittleEndian.Uint32(raw[0:])
	rd = binary.LittleEndian.Uint32(raw[4:])
	if wr >= ch.Size || rd >= ch.Size {
		return 0, 0, &CorruptDescriptorError{
			Channel:   ch.Index,
			Direction: ch.Direction,
			Size:      ch.Size,
			WrOff:     wr,
			RdOff:     rd,
		}
	}
	return wr, rd, nil
}

// Read drains min(available, maxBytes) bytes from an up channel. A
// maxBytes of zero or less reads everything available. An empty result
// with a nil error means no data.
func (t *Transport) Read(ctx context.Context, channel int, maxBytes int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.channel(Up, channel)
	if err != nil {
		return nil, err
	}
	wr, rd, err := t.offsets(ctx, ch)
	if err != nil {
		return nil, err
	}

	n := available(wr, rd, ch.Size)
	if maxBytes > 0 && int64(maxBytes) < int64(n) {
		n = uint32(maxBytes)
	}
	if n == 0 {
		return []byte{}, nil
	}

	first := n
	if tail := ch.Size - rd; first > tail {
		first = tail
	}
	out, err := t.read(ctx, ch.BufferAddress+uint64(rd), int(first))
	if err != nil {
		return nil, err
	}
	if first < n {
		rest, err := t.read(ctx, ch.BufferAddress, int(n-first))
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}

	newRd := (rd + n) % ch.Size
	if err := t.writeWord(ctx, ch.DescriptorAddress+offRdOff, newRd); err != nil {
		return nil, err
	}
	return out, nil
}

// Write queues data on a down channel and returns how many bytes were
// accepted. When the buffer lacks room the excess is dropped regardless of
// mode; with ModeBlockIfFull the caller is expected to retry the remainder.
// Write never waits for the target.
func (t *Transport) Write(ctx context.Context, channel int, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.channel(Down, channel)
	if err != nil {
		return 0, err
	}
	wr, rd, err := t.offsets(ctx, ch)
	if err != nil {
		return 0, err
	}

	room := free(wr, rd, ch.Size)
	n := room
	if int64(len(data)) <= int64(room) {
		n = uint32(len(data))
	} else {
		t.logger.Warn("RTT down buffer full, dropping bytes",
			zap.Int("channel", channel),
			zap.Stringer("mode", ch.Mode),
			zap.Uint32("accepted", room),
			zap.Int("dropped", len(data)-int(room)))
	}
	if n == 0 {
		return 0, nil
	}

	first := n
	if tail := ch.Size - wr; first > tail {
		first = tail
	}
	if err := t.write(ctx, ch.BufferAddress+uint64(wr), data[:first]); err != nil {
		return 0, err
	}
	if first < n {
		if err := t.write(ctx, ch.BufferAddress, data[first:n]); err != nil {
			return 0, err
		}
	}

	newWr := (wr + n) % ch.Size
	if err := t.writeWord(ctx, ch.DescriptorAddress+offWrOff, newWr); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *Transport) read(ctx context.Context, addr uint64, length int) ([]byte, error) {
	data, err := t.mem.ReadMemory(ctx, addr, length)
	if err != nil {
		return nil, &ProbeIOError{Op: "read", Address: addr, Length: length, Err: err}
	}
	if len(data) != length {
		return nil, &ProbeIOError{
			Op: "read", Address: addr, Length: length,
			Err: fmt.Errorf("short read: got %d bytes", len(data)),
		}
	}
	logging.MemoryAccess(t.logger, "read", addr, data)
	return data, nil
}

func (t *Transport) write(ctx context.Context, addr uint64, data []byte) error {
	if err := t.mem.WriteMemory(ctx, addr, data); err != nil {
		return &ProbeIOError{Op: "write", Address: addr, Length: len(data), Err: err}
	}
	logging.MemoryAccess(t.logger, "write", addr, data)
	return nil
}

func (t *Transport) writeWord(ctx context.Context, addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return t.write(ctx, addr, b[:])
}
