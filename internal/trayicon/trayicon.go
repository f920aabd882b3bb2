// Package trayicon renders the small PNG icons the system tray shows
// for each pipeline state, since the binary carries no bundled icon
// asset of its own.
package trayicon

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

const size = 22

// Idle is a neutral gray dot, shown while the pipeline is not
// recording.
func Idle() []byte { return dot(color.RGBA{R: 0x61, G: 0x61, B: 0x66, A: 0xFF}) }

// Recording is a red dot, shown while a session is actively capturing
// or processing speech.
func Recording() []byte { return dot(color.RGBA{R: 0xE0, G: 0x33, B: 0x33, A: 0xFF}) }

// Error is an amber dot, shown while the session is in StateError.
func Error() []byte { return dot(color.RGBA{R: 0xE0, G: 0x9A, B: 0x1A, A: 0xFF}) }

func dot(c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center := float64(size) / 2
	radius := center - 2

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - center
			dy := float64(y) + 0.5 - center
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding a freshly allocated RGBA image never fails; this
		// guards the unreachable branch for an exhaustive return type.
		return fallbackPNG()
	}
	return buf.Bytes()
}

func fallbackPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
