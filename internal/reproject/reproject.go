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

// Package reproject resamples an image defined on one celestial coordinate grid
// onto another one. It returns the resampled values together with a footprint,
// which marks the output pixels that received a valid sample.
package reproject

import (
	"errors"
)

var (
	// Input or output coordinate system lacks a celestial component. Fatal, reported before any work
	ErrUnsupportedCoordinateSystem = errors.New("coordinate system has no celestial component")

	// Per-pixel conditions. Absorbed into the footprint, never returned by Reproject
	ErrUndefinedMapping = errors.New("undefined coordinate mapping")
	ErrOutOfBounds      = errors.New("sample coordinate out of bounds")
	ErrInvalidSample    = errors.New("interpolation support contains invalid sample")

	// A band of output rows could not be computed. Fatal for the whole call
	ErrSchedulerFailure = errors.New("reprojection band failed")

	// Call-level misconfiguration: bad shape, bad order, inconsistent data length
	ErrInvalidArgument = errors.New("invalid argument")
)

// A read-only 2-dimensional image. Row-major, Data[y*Width+x]. NaN marks missing data
type Image struct {
	Data   []float32
	Width  int
	Height int
}

// Returns the sample at the given integer pixel position
func (img Image) At(x, y int) float32 {
	return img.Data[y*img.Width+x]
}

// A celestial coordinate transform. Pixel coordinates are 0-based with pixel centers
// at integer positions. Sky coordinates are longitude and latitude in degrees, in
// one common reference frame shared by all transforms, so that any two transforms
// can be composed. Implementations must be safe for concurrent use.
type Transform interface {
	HasCelestial() bool
	PixelToSky(x, y float64) (lon, lat float64, ok bool)
	SkyToPixel(lon, lat float64) (x, y float64, ok bool)
}

// The result of a reprojection. Data is NaN wherever Footprint is 0, and Footprint is 1 elsewhere
type Result struct {
	Data      []float32
	Footprint []float32
	Width     int
	Height    int
}

// Returns the number of covered output pixels
func (r *Result) Covered() (n int) {
	for _, f := range r.Footprint {
		if f != 0 {
			n++
		}
	}
	return n
}

// Execution options for a reprojection
type Options struct {
	Order    Order `json:"order"`
	Parallel bool  `json:"parallel"`
	Bands    int   `json:"bands"` // number of row bands when Parallel is set. 0=one per available CPU
}

// Returns the number of bytes Reproject allocates for an output of the given shape
func OutputBytes(width, height int) int64 {
	return 2 * 4 * int64(width) * int64(height)
}
