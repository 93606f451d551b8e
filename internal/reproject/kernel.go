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

package reproject

import (
	"math"
)

// Samples the image at the given fractional pixel position with the given interpolation order.
//
// The valid domain on each axis is [-0.5, n-0.5), i.e. the area covered by the pixels themselves.
// Positions outside of it yield ErrOutOfBounds. Within the domain, support pixels beyond the
// edge are replaced by the nearest edge pixel. If any support pixel is NaN, the result is
// ErrInvalidSample. Orders 1..3 evaluate the separable Lagrange polynomial through the
// order+1 support pixels per axis, first along x, then along y.
func Sample(img Image, x, y float64, order Order) (float64, error) {
	if !inDomain(x, img.Width) || !inDomain(y, img.Height) {
		return math.NaN(), ErrOutOfBounds
	}
	switch order {
	case Nearest:
		v := img.At(clampIndex(int(math.Floor(x+0.5)), img.Width), clampIndex(int(math.Floor(y+0.5)), img.Height))
		if v != v {
			return math.NaN(), ErrInvalidSample
		}
		return float64(v), nil
	case Bilinear, Biquadratic, Bicubic:
		return samplePolynomial(img, x, y, order)
	}
	return math.NaN(), ErrInvalidArgument
}

// Evaluates the separable interpolating polynomial. Support is at most 4x4, kept on the stack
func samplePolynomial(img Image, x, y float64, order Order) (float64, error) {
	n := order.Support()
	sx, sy := supportStart(x, order), supportStart(y, order)

	var wx, wy [4]float64
	Weights(x-float64(sx), order, wx[:n])
	Weights(y-float64(sy), order, wy[:n])

	var xs [4]int
	for i := 0; i < n; i++ {
		xs[i] = clampIndex(sx+i, img.Width)
	}

	sum := 0.0
	for j := 0; j < n; j++ {
		rowStart := clampIndex(sy+j, img.Height) * img.Width
		row := img.Data[rowStart : rowStart+img.Width]
		r := 0.0
		for i := 0; i < n; i++ {
			v := row[xs[i]]
			if v != v {
				return math.NaN(), ErrInvalidSample
			}
			r += wx[i] * float64(v)
		}
		sum += wy[j] * r
	}
	return sum, nil
}

// Computes Lagrange basis weights for nodes 0..order at position t, into w[0..order].
// Weights sum to one and reproduce polynomials up to the given degree exactly
func Weights(t float64, order Order, w []float64) {
	n := int(order)
	for k := 0; k <= n; k++ {
		p := 1.0
		for m := 0; m <= n; m++ {
			if m != k {
				p *= (t - float64(m)) / float64(k-m)
			}
		}
		w[k] = p
	}
}

// First support index along an axis. Odd orders straddle the coordinate evenly,
// even orders center on the nearest pixel
func supportStart(c float64, order Order) int {
	if order&1 == 1 {
		return int(math.Floor(c)) - (int(order)-1)/2
	}
	return int(math.Floor(c+0.5)) - int(order)/2
}

// Returns true if the coordinate lies within the area covered by n pixels. False for NaN and Inf
func inDomain(c float64, n int) bool {
	return c >= -0.5 && c < float64(n)-0.5
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
