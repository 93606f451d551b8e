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
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/tiff"
)

// Write a grayscale FITS image to 16-bit TIFF, using the given min, max and gamma. If min and max are equal,
// the range of covered pixels is used. Uncovered pixels are painted in the given colour.
func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32, uncovered colorful.Color) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteMonoTIFF16(writer, min, max, gamma, uncovered); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a grayscale FITS image to 16-bit TIFF, using the given min, max and gamma. If min and max are equal,
// the range of covered pixels is used. Uncovered pixels are painted in the given colour.
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32, uncovered colorful.Color) error {
	if min == max {
		min, max = f.previewRange()
	}
	// convert pixels into Golang Image
	width, height := f.Dims()
	img := image.NewRGBA64(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	ur, ug, ub, _ := uncovered.Clamped().RGBA()
	oob := color.RGBA64{uint16(ur), uint16(ug), uint16(ub), 65535}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray, ok := toneMap(f.Data[yoffset+x], min, scale, gammaInv)
			if !ok {
				img.SetRGBA64(x, y, oob)
				continue
			}
			v := uint16(gray*65535 + 0.5)
			img.SetRGBA64(x, y, color.RGBA64{v, v, v, 65535})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Read a color or grayscale TIFF image into a single-plane FITS image. Colour is reduced to luminance.
func (f *Image) ReadTIFF(reader io.Reader) error {
	// decode TIFF file into golang image
	t, err := tiff.Decode(reader)
	if err != nil {
		return fmt.Errorf("%d: %w", f.ID, err)
	}

	// determine width, height and color depth
	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	bitpix := colorModelToBitpix(t.ColorModel())
	if bitpix == 0 {
		return fmt.Errorf("%d: unsupported TIFF color model", f.ID)
	}

	// set FITS metadata
	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height)}
	if f.Pixels, err = PixelCount(f.Naxisn); err != nil {
		return fmt.Errorf("%d: %w", f.ID, err)
	}
	f.Bzero, f.Bscale = 0, 1
	f.Header.SetInt("NAXIS1", f.Naxisn[0])
	f.Header.SetInt("NAXIS2", f.Naxisn[1])

	// read and convert pixels
	f.Data = make([]float32, f.Pixels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Gray16Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			f.Data[y*width+x] = float32(c.Y)
		}
	}
	return nil
}

func colorModelToBitpix(m color.Model) int32 {
	switch m {
	case color.RGBAModel, color.NRGBAModel, color.AlphaModel, color.GrayModel:
		return 8
	case color.RGBA64Model, color.NRGBA64Model, color.Alpha16Model, color.Gray16Model:
		return 16
	default:
		return 0
	}
}
