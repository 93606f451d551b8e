// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Default colour for pixels without coverage in preview images
var DefaultUncoveredColor = colorful.Color{R: 0, G: 0, B: 0}

// Parses a hex colour like #ff00ff for uncovered pixels. Empty string yields the default
func ParseUncoveredColor(hex string) (colorful.Color, error) {
	if hex == "" {
		return DefaultUncoveredColor, nil
	}
	return colorful.Hex(hex)
}

// Maps a pixel value to the unit interval using the given min, max and inverse gamma.
// Returns false for uncovered pixels
func toneMap(v float32, min, scale float32, gammaInv float64) (float64, bool) {
	if math.IsNaN(float64(v)) {
		return 0, false
	}
	g := float64((v - min) * scale)
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	if gammaInv != 1.0 {
		g = math.Pow(g, gammaInv)
	}
	return g, true
}

// Returns min and max of the covered pixels, for automatic preview scaling
func (f *Image) previewRange() (min, max float32) {
	s := f.Stats
	if s == nil {
		s = f.CalcStats()
	}
	if s.Covered == 0 || s.Max <= s.Min {
		return s.Min, s.Min + 1
	}
	return s.Min, s.Max
}

// Write a grayscale FITS image to JPG, using the given min, max and gamma. If min and max are equal,
// the range of covered pixels is used. Uncovered pixels are painted in the given colour.
func (f *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float32, quality int, uncovered colorful.Color) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteMonoJPG(writer, min, max, gamma, quality, uncovered); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a grayscale FITS image to JPG, using the given min, max and gamma. If min and max are equal,
// the range of covered pixels is used. Uncovered pixels are painted in the given colour.
func (f *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int, uncovered colorful.Color) error {
	if min == max {
		min, max = f.previewRange()
	}
	// convert pixels into Golang Image
	width, height := f.Dims()
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	ur, ug, ub := uncovered.Clamped().RGB255()
	oob := color.RGBA{ur, ug, ub, 255}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray, ok := toneMap(f.Data[yoffset+x], min, scale, gammaInv)
			if !ok {
				img.SetRGBA(x, y, oob)
				continue
			}
			v := uint8(gray*255 + 0.5)
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
