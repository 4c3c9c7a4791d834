package coredump

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the log held no complete BEGIN/END pair.
	ErrNoData = errors.New("no coredump found in log")
	// ErrBadHex means a dump line was not valid hex.
	ErrBadHex = errors.New("coredump contains invalid hex")
	// ErrBadMagic means the record does not start with "ZE".
	ErrBadMagic = errors.New("coredump has bad magic")
	// ErrUnsupportedVersion covers header versions, target codes, pointer
	// sizes and architecture schemas this package does not know.
	ErrUnsupportedVersion = errors.New("coredump format not supported")
	// ErrUnknownBlock means a block tag was not 'A', 'M' or 'T'.
	ErrUnknownBlock = errors.New("coredump has unknown block")
	// ErrTruncated means the record ended inside a header or block.
	ErrTruncated = errors.New("coredump truncated")
	// ErrDuplicateBlock means a second architecture block was found.
	ErrDuplicateBlock = errors.New("coredump has duplicate block")
)

// ParseError records where decoding failed.
type ParseError struct {
	// Stage is "extract", "header", "arch", "memory", "threads" or "block"
	Stage string
	// Offset is the byte offset in the record (or in the hex text for the
	// extract stage) where the failing element starts
	Offset int
	// Detail adds context such as the offending value
	Detail string
	// Err is one of the package sentinels
	Err error
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("coredump %s at offset %d: %v: %s", e.Stage, e.Offset, e.Err, e.Detail)
	}
	return fmt.Sprintf("coredump %s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(stage string, offset int, err error, detail string, args ...any) *ParseError {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &ParseError{Stage: stage, Offset: offset, Err: err, Detail: detail}
}
