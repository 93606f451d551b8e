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
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/mlnoga/reproject/internal/reproject"
	"github.com/mlnoga/reproject/internal/wcs"
	"gonum.org/v1/gonum/floats/scalar"
)

const galacticCARHeader = `SIMPLE  = T
BITPIX  = -64
NAXIS   = 2
NAXIS1  = 2
NAXIS2  = 2
CTYPE1  = 'GLON-CAR'
CTYPE2  = 'GLAT-CAR'
CRPIX1  = 299.628
CRPIX2  = 299.394
CDELT1  = -0.001666666
CDELT2  = 0.001666666
CRVAL1  = 0.0
CRVAL2  = 0.0
LONPOLE = 0.0
LATPOLE = 90.0
END
`

const equatorialTANHeader = `NAXIS   = 2
NAXIS1  = 4
NAXIS2  = 4
CTYPE1  = 'RA---TAN'
CTYPE2  = 'DEC--TAN'
CRPIX1  = 2.5
CRPIX2  = 2.5
CDELT1  = -0.0015
CDELT2  = 0.0015
CRVAL1  = 267.183880241
CRVAL2  = -28.768527143
LONPOLE = 180.0
LATPOLE = -28.768527143
EQUINOX = 2000.0
END
`

func mustParse(t *testing.T, text string) *Header {
	t.Helper()
	h, err := ParseHeader(text, io.Discard)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return h
}

// A 2x2 image [[1,2],[3,4]] in galactic plate carree
func galacticImage(t *testing.T) *Image {
	img := NewImageFromNaxisn([]int32{2, 2}, []float32{1, 2, 3, 4})
	img.Header = *mustParse(t, galacticCARHeader)
	return img
}

// Expected interior values of the 4x4 output per order, [row][col] for rows and cols 1 and 2.
// The outer ring of the output maps outside the input and stays uncovered
var scenario = []struct {
	order    reproject.Order
	interior [2][2]float64
}{
	{reproject.Nearest, [2][2]float64{{2, 4}, {1, 3}}},
	{reproject.Bilinear, [2][2]float64{{1.628074248, 3.221179116}, {1.606537346, 3.320741821}}},
	{reproject.Biquadratic, [2][2]float64{{1.610039470, 3.500716255}, {1.333900089, 3.280754831}}},
	{reproject.Bicubic, [2][2]float64{{1.555377758, 3.265272992}, {1.540858851, 3.351975807}}},
}

// Flux-conserving reference values for the bilinear case, NaN where undefined
var montage = [4][4]float64{
	{math.NaN(), 2, 2, math.NaN()},
	{1, 1.6768244, 3.35364754, 4},
	{1, 1.6461656, 3.32308315, 4},
	{math.NaN(), 3, 3, math.NaN()},
}

func TestReprojectGalacticToEquatorial(t *testing.T) {
	target := mustParse(t, equatorialTANHeader)
	for _, c := range scenario {
		res, fp, err := galacticImage(t).Reproject(context.Background(), target, 0, 0, reproject.Options{Order: c.order})
		if err != nil {
			t.Fatalf("order %v: Reproject: %v", c.order, err)
		}
		if res.DimensionsToString() != "4x4" || fp.DimensionsToString() != "4x4" {
			t.Fatalf("order %v: dims=%s,%s; want 4x4", c.order, res.DimensionsToString(), fp.DimensionsToString())
		}
		for row := 0; row < 4; row++ {
			for col := 0; col < 4; col++ {
				v, f := float64(res.Data[row*4+col]), fp.Data[row*4+col]
				if row == 0 || row == 3 || col == 0 || col == 3 {
					// The flux-conserving reference has partially valid edges. Point sampling maps every
					// outer pixel centre outside the input pixel domain, so the whole ring stays uncovered
					if !math.IsNaN(v) || f != 0 {
						t.Errorf("order %v: (%d,%d)=%g,%g; want NaN,0", c.order, row, col, v, f)
					}
					continue
				}
				want := c.interior[row-1][col-1]
				if f != 1 || !scalar.EqualWithinRel(v, want, 1e-5) {
					t.Errorf("order %v: (%d,%d)=%.9f,%g; want %.9f,1", c.order, row, col, v, f, want)
				}
				if c.order == reproject.Bilinear && math.Abs(v-montage[row][col]) > 0.09*montage[row][col] {
					t.Errorf("bilinear (%d,%d)=%.6f; want within 9%% of %.6f", row, col, v, montage[row][col])
				}
			}
		}
	}
}

func TestReprojectParallelMatchesSerial(t *testing.T) {
	target := mustParse(t, equatorialTANHeader)
	serial, _, err := galacticImage(t).Reproject(context.Background(), target, 0, 0, reproject.Options{Order: reproject.Bilinear})
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	for _, bands := range []int{0, 2, 4} {
		par, _, err := galacticImage(t).Reproject(context.Background(), target, 0, 0,
			reproject.Options{Order: reproject.Bilinear, Parallel: true, Bands: bands})
		if err != nil {
			t.Fatalf("parallel %d: %v", bands, err)
		}
		for i := range serial.Data {
			s, p := float64(serial.Data[i]), float64(par.Data[i])
			if math.IsNaN(s) != math.IsNaN(p) || (!math.IsNaN(s) && !scalar.EqualWithinRel(s, p, 1e-6)) {
				t.Errorf("bands %d: Data[%d]=%g; want %g", bands, i, p, s)
			}
		}
	}
}

func TestReprojectCarriesTargetWCS(t *testing.T) {
	target := mustParse(t, equatorialTANHeader)
	img := galacticImage(t)
	img.Header.SetString("OBJECT", "Sgr A*")
	res, fp, err := img.Reproject(context.Background(), target, 6, 5, reproject.Options{Order: reproject.Bilinear})
	if err != nil {
		t.Fatalf("Reproject: %v", err)
	}
	if w, h := res.Dims(); w != 6 || h != 5 {
		t.Errorf("Dims=%d,%d; want 6,5", w, h)
	}
	for _, h := range []*Header{&res.Header, &fp.Header} {
		if v, _ := h.String("CTYPE1"); v != "RA---TAN" {
			t.Errorf("CTYPE1=%s; want RA---TAN", v)
		}
		if v, _ := h.Float("CRVAL2"); v != -28.768527143 {
			t.Errorf("CRVAL2=%g; want -28.768527143", v)
		}
		if v, _ := h.Int("NAXIS1"); v != 6 {
			t.Errorf("NAXIS1=%d; want 6", v)
		}
	}
	if v, _ := res.Header.String("OBJECT"); v != "Sgr A*" {
		t.Errorf("OBJECT=%s; want Sgr A*", v)
	}
	if v, _ := img.Header.String("CTYPE1"); v != "GLON-CAR" {
		t.Errorf("input CTYPE1=%s; want GLON-CAR unchanged", v)
	}
	if len(res.Header.History) == 0 {
		t.Errorf("History empty; want reprojection entry")
	}

	w, err := res.WCS()
	if err != nil || !w.HasCelestial() {
		t.Fatalf("WCS=%v,%v; want celestial", w, err)
	}
}

func TestReprojectErrors(t *testing.T) {
	target := mustParse(t, equatorialTANHeader)
	flat := mustParse(t, "NAXIS1  = 4\nNAXIS2  = 4\nCTYPE1  = 'LINEAR'\nCTYPE2  = 'LINEAR'\n")
	noShape := mustParse(t, equatorialTANHeader)
	noShape.Delete("NAXIS1")
	noShape.Delete("NAXIS2")
	badProj := mustParse(t, equatorialTANHeader)
	badProj.SetString("CTYPE1", "RA---XYZ")
	badProj.SetString("CTYPE2", "DEC--XYZ")

	cube := NewImageFromNaxisn([]int32{2, 2, 3}, nil)
	cube.Header = *mustParse(t, galacticCARHeader)
	flatImage := NewImageFromNaxisn([]int32{2, 2}, nil)

	cases := []struct {
		name   string
		img    *Image
		target *Header
		want   error
	}{
		{"non-celestial target", galacticImage(t), flat, reproject.ErrUnsupportedCoordinateSystem},
		{"non-celestial input", flatImage, target, reproject.ErrUnsupportedCoordinateSystem},
		{"missing shape", galacticImage(t), noShape, reproject.ErrInvalidArgument},
		{"cube", cube, target, reproject.ErrInvalidArgument},
		{"unknown projection", galacticImage(t), badProj, nil},
	}
	for _, c := range cases {
		_, _, err := c.img.Reproject(context.Background(), c.target, 0, 0, reproject.Options{Order: reproject.Bilinear})
		if err == nil {
			t.Errorf("%s: err=nil; want error", c.name)
		} else if c.want != nil && !errors.Is(err, c.want) {
			t.Errorf("%s: err=%v; want %v", c.name, err, c.want)
		}
	}
}

func TestOutputShapeLimit(t *testing.T) {
	target, err := wcs.New(mustParse(t, equatorialTANHeader))
	if err != nil {
		t.Fatalf("WCS: %v", err)
	}
	if w, h, err := OutputShape(target, 0, 0); err != nil || w != 4 || h != 4 {
		t.Errorf("OutputShape from header = %d,%d,%v; want 4,4,nil", w, h, err)
	}
	for _, shape := range [][2]int{{65536, 65536}, {MaxPixels, 2}, {1 << 20, 1 << 20}} {
		if _, _, err := OutputShape(target, shape[0], shape[1]); !errors.Is(err, reproject.ErrInvalidArgument) {
			t.Errorf("OutputShape(%dx%d) = %v; want ErrInvalidArgument", shape[0], shape[1], err)
		}
	}
}
