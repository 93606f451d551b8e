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
	"errors"
	"math"
	"testing"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats/scalar"
)

// Creates a width x height image with uniformly random values in [0,1)
func randomImage(rng *fastrand.RNG, width, height int) Image {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(rng.Uint32n(1<<20)) / (1 << 20)
	}
	return Image{Data: data, Width: width, Height: height}
}

// Returns a uniformly random float in [lo, hi)
func randomIn(rng *fastrand.RNG, lo, hi float64) float64 {
	return lo + (hi-lo)*float64(rng.Uint32n(1<<30))/(1<<30)
}

func TestNearestBounds(t *testing.T) {
	img := Image{Data: []float32{1, 2, 3, 4, 5, 6}, Width: 3, Height: 2}
	cases := []struct {
		x, y float64
		want float64
		err  error
	}{
		{0, 0, 1, nil},
		{2, 1, 6, nil},
		{-0.5, -0.5, 1, nil},
		{0.49, 0.51, 4, nil},
		{0.5, 0, 2, nil},
		{2.4999, 1.4999, 6, nil},
		{2.5, 0, math.NaN(), ErrOutOfBounds},
		{0, 1.5, math.NaN(), ErrOutOfBounds},
		{-0.5000001, 0, math.NaN(), ErrOutOfBounds},
		{math.NaN(), 0, math.NaN(), ErrOutOfBounds},
		{0, math.Inf(1), math.NaN(), ErrOutOfBounds},
	}
	for _, c := range cases {
		got, err := Sample(img, c.x, c.y, Nearest)
		if !errors.Is(err, c.err) {
			t.Errorf("Sample(%g,%g) err=%v; want %v", c.x, c.y, err, c.err)
			continue
		}
		if c.err == nil && got != c.want {
			t.Errorf("Sample(%g,%g)=%f; want %f", c.x, c.y, got, c.want)
		}
	}
}

func TestNearestBoundsAllOrders(t *testing.T) {
	img := Image{Data: []float32{1, 2, 3, 4}, Width: 2, Height: 2}
	for o := Nearest; o <= Bicubic; o++ {
		for _, p := range [][2]float64{{-0.5, 0}, {0, -0.5}, {1.4999, 1.4999}} {
			if _, err := Sample(img, p[0], p[1], o); err != nil {
				t.Errorf("order %v at (%g,%g) err=%v; want nil", o, p[0], p[1], err)
			}
		}
		for _, p := range [][2]float64{{-0.51, 0}, {0, -0.51}, {1.5, 0}, {0, 1.5}} {
			if _, err := Sample(img, p[0], p[1], o); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("order %v at (%g,%g) err=%v; want %v", o, p[0], p[1], err, ErrOutOfBounds)
			}
		}
	}
}

func TestBilinearClosedForm(t *testing.T) {
	rng := fastrand.RNG{}
	img := randomImage(&rng, 7, 5)
	for i := 0; i < 1000; i++ {
		x, y := randomIn(&rng, 0, 6), randomIn(&rng, 0, 4)
		x0, y0 := int(math.Floor(x)), int(math.Floor(y))
		fx, fy := x-float64(x0), y-float64(y0)
		x1, y1 := clampIndex(x0+1, img.Width), clampIndex(y0+1, img.Height)
		want := (1-fx)*(1-fy)*float64(img.At(x0, y0)) +
			fx*(1-fy)*float64(img.At(x1, y0)) +
			(1-fx)*fy*float64(img.At(x0, y1)) +
			fx*fy*float64(img.At(x1, y1))
		got, err := Sample(img, x, y, Bilinear)
		if err != nil {
			t.Fatalf("Sample(%f,%f) err=%v", x, y, err)
		}
		if !scalar.EqualWithinAbsOrRel(got, want, 1e-12, 1e-6) {
			t.Errorf("Sample(%f,%f)=%f; want %f", x, y, got, want)
		}
	}
}

// Interpolates values at nodes 0..n-1 at position t with Neville's algorithm
func neville(values []float64, t float64) float64 {
	p := append([]float64(nil), values...)
	n := len(p)
	for k := 1; k < n; k++ {
		for i := 0; i < n-k; i++ {
			p[i] = ((t-float64(i+k))*p[i] + (float64(i)-t)*p[i+1]) / (float64(i) - float64(i+k))
		}
	}
	return p[0]
}

// Reference sampler evaluating the separable polynomial with Neville's algorithm, nearest pixel
// on the border. Support spans order+1 pixels around the coordinate.
func referenceSample(img Image, x, y float64, order Order) float64 {
	n := order.Support()
	start := func(c float64) int {
		if n%2 == 0 {
			return int(math.Floor(c)) - (n/2 - 1)
		}
		return int(math.Floor(c+0.5)) - n/2
	}
	sx, sy := start(x), start(y)
	cols := make([]float64, n)
	row := make([]float64, n)
	for j := 0; j < n; j++ {
		yy := sy + j
		if yy < 0 {
			yy = 0
		} else if yy >= img.Height {
			yy = img.Height - 1
		}
		for i := 0; i < n; i++ {
			xx := sx + i
			if xx < 0 {
				xx = 0
			} else if xx >= img.Width {
				xx = img.Width - 1
			}
			row[i] = float64(img.At(xx, yy))
		}
		cols[j] = neville(row, x-float64(sx))
	}
	return neville(cols, y-float64(sy))
}

func TestSampleMatchesNeville(t *testing.T) {
	rng := fastrand.RNG{}
	img := randomImage(&rng, 9, 6)
	for o := Bilinear; o <= Bicubic; o++ {
		for i := 0; i < 500; i++ {
			x, y := randomIn(&rng, -0.5, 8.5), randomIn(&rng, -0.5, 5.5)
			want := referenceSample(img, x, y, o)
			got, err := Sample(img, x, y, o)
			if err != nil {
				t.Fatalf("order %v Sample(%f,%f) err=%v", o, x, y, err)
			}
			if !scalar.EqualWithinAbsOrRel(got, want, 1e-9, 1e-6) {
				t.Errorf("order %v Sample(%f,%f)=%.9f; want %.9f", o, x, y, got, want)
			}
		}
	}
}

// Polynomials of degree up to the order in each axis must be reproduced exactly away from the border
func TestPolynomialReproduction(t *testing.T) {
	const size = 8
	rng := fastrand.RNG{}
	for o := Nearest; o <= Bicubic; o++ {
		n := int(o)
		poly := func(x, y float64) float64 {
			sum := 0.0
			for i := 0; i <= n; i++ {
				for j := 0; j <= n; j++ {
					sum += math.Pow(x, float64(i)) * math.Pow(y, float64(j))
				}
			}
			return sum
		}
		data := make([]float32, size*size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				data[y*size+x] = float32(poly(float64(x), float64(y)))
			}
		}
		img := Image{Data: data, Width: size, Height: size}

		for i := 0; i < 200; i++ {
			x, y := randomIn(&rng, 2, 5.4), randomIn(&rng, 2, 5.4)
			if o == Nearest {
				x, y = math.Round(x), math.Round(y)
			}
			got, err := Sample(img, x, y, o)
			if err != nil {
				t.Fatalf("order %v Sample(%f,%f) err=%v", o, x, y, err)
			}
			if want := poly(x, y); !scalar.EqualWithinRel(got, want, 1e-9) {
				t.Errorf("order %v Sample(%f,%f)=%f; want %f", o, x, y, got, want)
			}
		}
	}
}

func TestWeights(t *testing.T) {
	rng := fastrand.RNG{}
	w := make([]float64, 4)
	for o := Nearest; o <= Bicubic; o++ {
		// interpolating: weight one at each node, zero at the others
		for k := 0; k <= int(o); k++ {
			Weights(float64(k), o, w)
			for m := 0; m <= int(o); m++ {
				want := 0.0
				if m == k {
					want = 1
				}
				if w[m] != want {
					t.Errorf("order %v t=%d w[%d]=%f; want %f", o, k, m, w[m], want)
				}
			}
		}
		// partition of unity
		for i := 0; i < 100; i++ {
			tt := randomIn(&rng, 0, float64(o)+0.5)
			Weights(tt, o, w)
			sum := 0.0
			for m := 0; m <= int(o); m++ {
				sum += w[m]
			}
			if math.Abs(sum-1) > 1e-12 {
				t.Errorf("order %v t=%f sum of weights=%.15f; want 1", o, tt, sum)
			}
		}
	}
}

func TestEdgeExtension(t *testing.T) {
	img := Image{Data: []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, Width: 3, Height: 3}
	cases := []struct {
		x, y float64
		want float64
	}{
		{-0.25, 0, 1},
		{0, -0.4, 1},
		{2.25, 2, 9},
		{-0.5, 1, 4},
		{1, 2.49, 8},
	}
	for _, c := range cases {
		got, err := Sample(img, c.x, c.y, Bilinear)
		if err != nil {
			t.Errorf("Sample(%g,%g) err=%v", c.x, c.y, err)
			continue
		}
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("Sample(%g,%g)=%f; want %f", c.x, c.y, got, c.want)
		}
	}
}

func TestInvalidSamples(t *testing.T) {
	nan := float32(math.NaN())
	img := Image{Data: []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, nan,
	}, Width: 4, Height: 4}
	cases := []struct {
		x, y  float64
		order Order
		err   error
	}{
		{0.5, 0.5, Bilinear, nil},
		{2.5, 2.5, Bilinear, ErrInvalidSample},
		{2.5, 1.5, Bilinear, nil},
		{3, 3, Nearest, ErrInvalidSample},
		{2.4, 2.4, Nearest, nil},
		{1.5, 1.5, Bicubic, ErrInvalidSample},
		{0.5, 0.5, Bicubic, nil},
		{1.4, 1.4, Biquadratic, nil},
		{1.6, 1.6, Biquadratic, ErrInvalidSample},
	}
	for _, c := range cases {
		got, err := Sample(img, c.x, c.y, c.order)
		if !errors.Is(err, c.err) {
			t.Errorf("order %v Sample(%g,%g) err=%v; want %v", c.order, c.x, c.y, err, c.err)
			continue
		}
		if c.err != nil && !math.IsNaN(got) {
			t.Errorf("order %v Sample(%g,%g)=%f; want NaN", c.order, c.x, c.y, got)
		}
		if c.err == nil && math.IsNaN(got) {
			t.Errorf("order %v Sample(%g,%g)=NaN; want a value", c.order, c.x, c.y)
		}
	}
}

func TestSampleRejectsUnknownOrder(t *testing.T) {
	img := Image{Data: []float32{1}, Width: 1, Height: 1}
	if _, err := Sample(img, 0, 0, Order(4)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Sample order 4 err=%v; want %v", err, ErrInvalidArgument)
	}
}
