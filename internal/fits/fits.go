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
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/reproject/internal/reproject"
	"github.com/mlnoga/reproject/internal/stats"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0
	FileName string // Original file name, if any, for log output.
	HDU      int    // Header and data unit to read from file. 0=primary, n=nth extension

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	// Helps implement unsigned values with signed data types.
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int     // Number of pixels in the image. Product of Naxisn[], at most MaxPixels

	Data []float32 // The image data. NaN marks missing or uncovered pixels

	Exposure float32 // Image exposure in seconds

	Stats *stats.Stats // Basic image statistics, calculated on demand
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied.
// Panics if the dimensions are invalid as per PixelCount
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels, err := PixelCount(naxisn)
	if err != nil {
		panic(err)
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bzero:  0,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Largest number of pixels in an image
const MaxPixels = math.MaxInt32

// Returns the number of pixels for the given axis dimensions, which is 0 without axes.
// Fails for negative dimensions or more than MaxPixels pixels
func PixelCount(naxisn []int32) (int, error) {
	if len(naxisn) == 0 {
		return 0, nil
	}
	n := 1
	for i, naxis := range naxisn {
		if naxis < 0 {
			return 0, fmt.Errorf("negative NAXIS%d=%d", i+1, naxis)
		}
		if naxis > 0 && n > MaxPixels/int(naxis) {
			return 0, fmt.Errorf("image dimensions %v exceed %d pixels", naxisn, MaxPixels)
		}
		n *= int(naxis)
	}
	return n, nil
}

// Creates a FITS image with the metadata of the given image and the given data and axis dimensions.
// The header is deep copied
func NewImageFromImage(img *Image, naxisn []int32, data []float32) *Image {
	res := NewImageFromNaxisn(naxisn, data)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure
	res.Header = img.Header.Clone()
	return res
}

// Returns image width and height
func (f *Image) Dims() (width, height int) {
	if len(f.Naxisn) < 2 {
		if len(f.Naxisn) == 1 {
			return int(f.Naxisn[0]), 1
		}
		return 0, 0
	}
	return int(f.Naxisn[0]), int(f.Naxisn[1])
}

// Returns true if the image has two axes, which is what reprojection can handle
func (f *Image) IsPlanar() bool {
	return len(f.Naxisn) == 2 || (len(f.Naxisn) == 3 && f.Naxisn[2] == 1)
}

// Returns a read-only view of the image data for resampling. Shares the data array
func (f *Image) Raster() reproject.Image {
	width, height := f.Dims()
	return reproject.Image{Data: f.Data, Width: width, Height: height}
}

// Calculates statistics and stores them in f.Stats
func (f *Image) CalcStats() *stats.Stats {
	f.Stats = stats.NewStats(f.Data)
	return f.Stats
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header
