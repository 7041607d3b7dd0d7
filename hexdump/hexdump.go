// Package hexdump renders byte ranges for the inspector, with optional
// highlighting of bytes that differ from an expected pattern.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"enginehook/coloransi"
	"enginehook/process"
)

// Options controls hexdump output.
type Options struct {
	BytesPerLine int
	StartOffset  uint64
	OffsetWidth  int
	ShowASCII    bool

	// Color disables all escape sequences when false.
	Color bool

	// Expected, when set, marks bytes that do not match it. Wildcard
	// positions in the pattern never mismatch.
	Expected *process.AOB

	OffsetColor   coloransi.ColorCode
	HexColor      coloransi.ColorCode
	ZeroColor     coloransi.ColorCode
	MismatchColor coloransi.ColorCode
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:  16,
		OffsetWidth:   8,
		ShowASCII:     true,
		Color:         true,
		OffsetColor:   coloransi.Cyan,
		HexColor:      coloransi.Green,
		ZeroColor:     coloransi.BrightBlack,
		MismatchColor: coloransi.BrightRed,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpWithOffset dumps data with the offset column starting at addr.
func DumpWithOffset(data []byte, addr uint64) string {
	options := DefaultOptions()
	options.StartOffset = addr
	options.OffsetWidth = 16
	return Dump(data, options)
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(w io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		formatLine(w, data[offset:end], offset, options)
	}
}

func formatLine(w io.Writer, line []byte, base int, options Options) {
	paint := func(c coloransi.ColorCode, s string) string {
		if !options.Color {
			return s
		}
		return coloransi.Foreground(c, s)
	}

	fmt.Fprint(w, paint(options.OffsetColor, fmt.Sprintf("%0*x", options.OffsetWidth, options.StartOffset+uint64(base))), "  ")

	parts := make([]string, 0, len(line))
	for i, b := range line {
		color := options.HexColor
		if b == 0 {
			color = options.ZeroColor
		}
		if Mismatch(options.Expected, base+i, b) {
			color = options.MismatchColor
			if !options.Color {
				parts = append(parts, fmt.Sprintf("%02X", b))
				continue
			}
		}
		parts = append(parts, paint(color, fmt.Sprintf("%02x", b)))
	}
	fmt.Fprint(w, strings.Join(parts, " "))

	if options.ShowASCII {
		// keep the ASCII column aligned on short lines
		if missing := options.BytesPerLine - len(line); missing > 0 {
			fmt.Fprint(w, strings.Repeat(" ", missing*3))
		}
		fmt.Fprint(w, "  |")
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				fmt.Fprint(w, string(rune(b)))
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprint(w, "|")
	}

	fmt.Fprintln(w)
}

// Mismatch reports whether byte b at index i differs from the expected
// pattern. Positions past the pattern or masked out never mismatch.
func Mismatch(expected *process.AOB, i int, b byte) bool {
	if expected == nil || i >= len(expected.Pattern) {
		return false
	}
	if len(expected.Mask) > i && expected.Mask[i] == 0 {
		return false
	}
	return expected.Pattern[i] != b
}
