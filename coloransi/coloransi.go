// Package coloransi renders ANSI colored fragments for log prefixes and
// hex dumps.
package coloransi

import (
	"fmt"
	"strings"
)

// ColorCode holds either a basic ANSI color in the low byte or an RGB
// triple in the upper 24 bits.
type ColorCode uint32

// ANSI color codes
const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	// For bright colors, add 60
	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	BackgroundOffset ColorCode = 10

	RGBMask ColorCode = 0xFFFFFF00
)

// RGB creates a ColorCode from RGB values
func RGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = RGB(255, 140, 0)
	ColorPurple    = RGB(128, 0, 128)
	ColorTeal      = RGB(0, 128, 128)
	ColorLimeGreen = RGB(50, 205, 50)
	ColorIndigo    = RGB(75, 0, 130)
	ColorWhite     = RGB(255, 255, 255)
)

// IsRGB checks if the ColorCode represents an RGB color
func (c ColorCode) IsRGB() bool {
	return c&RGBMask != 0
}

func (c ColorCode) rgb() (uint32, uint32, uint32) {
	return uint32(c>>24) & 0xFF, uint32(c>>16) & 0xFF, uint32(c>>8) & 0xFF
}

// ColorFrom picks a stable basic color for an identifier so related log
// lines share a color.
func ColorFrom(item uint64) ColorCode {
	colors := []ColorCode{
		Red, Green, Yellow, Blue, Magenta, Cyan,
		BrightRed, BrightGreen, BrightYellow, BrightBlue, BrightMagenta, BrightCyan,
	}
	return colors[item%uint64(len(colors))]
}

// ColorFromString hashes s with FNV-1a and defers to ColorFrom.
func ColorFromString(s string) ColorCode {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return ColorFrom(h)
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + OneBackground(bg) + join(v) + Reset()
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...interface{}) string {
	return OneForeground(fg) + join(v) + Reset()
}

// OneForeground returns the ANSI escape sequence for the given color code.
func OneForeground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code)
}

// OneBackground returns the ANSI escape sequence for the given background color code.
func OneBackground(code ColorCode) string {
	if code.IsRGB() {
		r, g, b := code.rgb()
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", code+BackgroundOffset)
}

// Reset returns the ANSI escape sequence to reset the text color.
func Reset() string {
	return "\033[0m"
}

func join(v []interface{}) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}
