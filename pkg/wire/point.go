// Package wire implements the EtherDream binary protocol: the fixed-size
// frames exchanged over the TCP control channel and the UDP broadcast, and
// the point representations that get converted into wire form.
package wire

import "math"

// Wire-format limits for a Point's signed coordinate axes and unsigned
// color/intensity channels.
const (
	ColorMax = 65535
	ColorMin = 0
	XMin     = -32768
	XMax     = 32767
	YMin     = -32768
	YMax     = 32767
)

// Point is a single 18-byte sample as the DAC consumes it: control word,
// signed x/y galvo position, and four unsigned color/intensity channels
// plus two unused auxiliary channels. Field order on the wire is exactly
// Control, X, Y, R, G, B, I, U1, U2 — the vendor's published documentation
// lists R/G/B and I in a different order than the bytes actually appear.
type Point struct {
	Control uint16
	X       int16
	Y       int16
	R       uint16
	G       uint16
	B       uint16
	I       uint16
	U1      uint16
	U2      uint16
}

// XYRGB builds a Point with explicit color channels and zeroed control/aux
// words.
func XYRGB(x, y int16, r, g, b uint16) Point {
	return Point{X: x, Y: y, R: r, G: g, B: b}
}

// XYLuma builds a grayscale Point: the luma value is copied into R, G, B,
// and I.
func XYLuma(x, y int16, l uint16) Point {
	return Point{X: x, Y: y, R: l, G: l, B: l, I: l}
}

// XYBlank builds a transit Point with all color channels zeroed, used to
// move the beam without drawing.
func XYBlank(x, y int16) Point {
	return Point{X: x, Y: y}
}

// XYBinary builds a Point that is either fully on (all color channels at
// ColorMax) or fully off (all zero).
func XYBinary(x, y int16, on bool) Point {
	if !on {
		return Point{X: x, Y: y}
	}
	return Point{X: x, Y: y, R: ColorMax, G: ColorMax, B: ColorMax}
}

// SimplePoint is a compact, integer user-facing point: signed 16-bit
// coordinates and 8-bit-per-channel color.
type SimplePoint struct {
	X int16
	Y int16
	R uint8
	G uint8
	B uint8
}

// ToPoint expands an 8-bit color channel to the wire's 16-bit range by
// multiplying by 257, so 0x00 maps to 0x0000 and 0xFF maps to 0xFFFF.
// Intensity is the max of the three color channels, expanded the same way.
func (p SimplePoint) ToPoint() Point {
	r := uint16(p.R) * 257
	g := uint16(p.G) * 257
	b := uint16(p.B) * 257
	maxRGB := p.R
	if p.G > maxRGB {
		maxRGB = p.G
	}
	if p.B > maxRGB {
		maxRGB = p.B
	}
	return Point{
		X: p.X, Y: p.Y,
		R: r, G: g, B: b,
		I: uint16(maxRGB) * 257,
	}
}

// PipelinePoint is a floating-point user-facing point suited to composable
// DSP-style pipelines. Coordinates are in the wire's native i16 range;
// color channels are normalized to [0, 1].
type PipelinePoint struct {
	X, Y    float32
	R, G, B float32
	Blank   bool
}

// ToPoint clamps coordinates into the wire's signed range and rounds to
// the nearest integer; color channels are clamped to [0, 1], scaled to
// the full uint16 range, and rounded. A blanked point carries zeroed
// color channels regardless of the source values.
func (p PipelinePoint) ToPoint() Point {
	x := clampRoundCoord(p.X, XMin, XMax)
	y := clampRoundCoord(p.Y, YMin, YMax)
	if p.Blank {
		return Point{X: x, Y: y}
	}
	return Point{
		X: x, Y: y,
		R: clampRoundColor(p.R),
		G: clampRoundColor(p.G),
		B: clampRoundColor(p.B),
	}
}

func clampRoundCoord(v float32, lo, hi int) int16 {
	f := math.Round(float64(v))
	if f < float64(lo) {
		f = float64(lo)
	}
	if f > float64(hi) {
		f = float64(hi)
	}
	return int16(f)
}

func clampRoundColor(v float32) uint16 {
	c := float64(v)
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return uint16(math.Round(c * ColorMax))
}
