package coredump

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Default dump markers.
const (
	DefaultLineMarker  = "#CD:"
	DefaultBeginMarker = "#CD:BEGIN#"
	DefaultEndMarker   = "#CD:END#"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// DefaultPrefixPatterns are the log decorations stripped before a line is
// checked for the dump marker.
var DefaultPrefixPatterns = []string{
	`^\s+`,                               // indentation
	`^\[\d+:\d{2}:\d{2}\.\d{3},\d{3}\]`,  // Zephyr uptime [00:00:01.234,567]
	`^\[\d+\]`,                           // cycle counter [00012345]
	`^\d{2}> `,                           // J-Link RTT terminal 00>
	`^<(err|wrn|inf|dbg)>`,               // Zephyr level tag
	`^[A-Za-z_][A-Za-z0-9_.\-]*: `,       // module tag
}

// ExtractOptions configures dump extraction.
type ExtractOptions struct {
	// LineMarker starts every dump line.
	LineMarker string
	// BeginMarker opens a dump.
	BeginMarker string
	// EndMarker closes a dump.
	EndMarker string
	// Prefixes are stripped repeatedly from the start of each line. They
	// should be anchored with ^.
	Prefixes []*regexp.Regexp
}

// DefaultExtractOptions returns the Zephyr log defaults.
func DefaultExtractOptions() ExtractOptions {
	prefixes, _ := CompilePrefixes(DefaultPrefixPatterns)
	return ExtractOptions{
		LineMarker:  DefaultLineMarker,
		BeginMarker: DefaultBeginMarker,
		EndMarker:   DefaultEndMarker,
		Prefixes:    prefixes,
	}
}

// CompilePrefixes compiles prefix patterns for ExtractOptions.
func CompilePrefixes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	d := DefaultExtractOptions()
	if o.LineMarker == "" {
		o.LineMarker = d.LineMarker
	}
	if o.BeginMarker == "" {
		o.BeginMarker = d.BeginMarker
	}
	if o.EndMarker == "" {
		o.EndMarker = d.EndMarker
	}
	if o.Prefixes == nil {
		o.Prefixes = d.Prefixes
	}
	return o
}

// StripLine removes colour escapes and known log prefixes from one line.
func (o ExtractOptions) StripLine(line string) string {
	line = ansiEscape.ReplaceAllString(line, "")
	for {
		before := line
		for _, re := range o.Prefixes {
			if loc := re.FindStringIndex(line); loc != nil && loc[0] == 0 && loc[1] > 0 {
				line = line[loc[1]:]
			}
		}
		if line == before {
			break
		}
	}
	return strings.TrimRightFunc(line, unicode.IsSpace)
}

// Extract pulls the binary coredump out of log text. Lines that do not
// carry the marker after stripping are ignored, so the dump may be
// interleaved with unrelated output. When several complete dumps are
// present the last one is returned.
func Extract(logText string, opts ExtractOptions) ([]byte, error) {
	opts = opts.withDefaults()

	var (
		current  strings.Builder
		complete string
		found    bool
		inDump   bool
	)
	for _, line := range strings.Split(logText, "\n") {
		line = opts.StripLine(line)
		if !strings.HasPrefix(line, opts.LineMarker) {
			continue
		}
		switch {
		case line == opts.BeginMarker:
			inDump = true
			current.Reset()
		case line == opts.EndMarker:
			if inDump {
				complete = current.String()
				found = true
				inDump = false
			}
		case inDump:
			chunk := strings.TrimPrefix(line, opts.LineMarker)
			current.WriteString(strings.TrimSpace(chunk))
		}
	}

	if !found {
		return nil, parseErr("extract", 0, ErrNoData, "no %s ... %s pair", opts.BeginMarker, opts.EndMarker)
	}
	if complete == "" {
		return nil, parseErr("extract", 0, ErrNoData, "dump is empty")
	}

	data, err := hex.DecodeString(complete)
	if err != nil {
		offset := len(complete)
		var ibe hex.InvalidByteError
		if errors.As(err, &ibe) {
			offset = strings.IndexByte(complete, byte(ibe))
		}
		return nil, parseErr("extract", offset, ErrBadHex, "%v", err)
	}
	return data, nil
}

// ParseLog extracts and parses the last coredump in logText.
func ParseLog(logText string, opts ExtractOptions) (*Record, error) {
	data, err := Extract(logText, opts)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
