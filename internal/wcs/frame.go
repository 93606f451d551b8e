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

package wcs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// A celestial reference system
type System int

const (
	ICRS     System = iota // International Celestial Reference System
	FK5                    // mean equator and equinox, IAU 1976 precession
	Galactic               // IAU 1958 galactic coordinates
	Ecliptic               // mean ecliptic and equinox
)

func (s System) String() string {
	switch s {
	case ICRS:
		return "ICRS"
	case FK5:
		return "FK5"
	case Galactic:
		return "galactic"
	case Ecliptic:
		return "ecliptic"
	}
	return fmt.Sprintf("system(%d)", int(s))
}

// A celestial reference frame. Equinox is a Julian epoch, used by FK5 and ecliptic frames only
type Frame struct {
	System  System
	Equinox float64
}

func (f Frame) String() string {
	switch f.System {
	case FK5, Ecliptic:
		return fmt.Sprintf("%v J%g", f.System, f.Equinox)
	}
	return f.System.String()
}

// The common sky frame all transforms exchange coordinates in
var SkyFrame = Frame{System: FK5, Equinox: 2000}

const (
	arcsec = math.Pi / (180 * 3600)
	deg    = math.Pi / 180

	// North galactic pole and galactic longitude of the north celestial pole, FK5 J2000
	galacticPoleRA  = 192.85948 * deg
	galacticPoleDec = 27.12825 * deg
	galacticNCPLong = 122.93192 * deg
	obliquityJ2000  = 84381.448 * arcsec // mean obliquity of the ecliptic
	frameBiasXi0    = -0.0166170 * arcsec
	frameBiasEta0   = -0.0068192 * arcsec
	frameBiasAlpha0 = -0.01460 * arcsec
)

// Rotation matrices for right-handed frames. Positive angles rotate the coordinate axes
func rotX(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

func rotY(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{c, 0, -s, 0, 1, 0, s, 0, c})
}

func rotZ(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// IAU 1976 precession from FK5 J2000 to the mean equator and equinox of the given Julian epoch
func precession(epoch float64) *mat.Dense {
	t := (epoch - 2000) / 100
	zeta := (2306.2181*t + 0.30188*t*t + 0.017998*t*t*t) * arcsec
	z := (2306.2181*t + 1.09468*t*t + 0.018203*t*t*t) * arcsec
	theta := (2004.3109*t - 0.42665*t*t - 0.041833*t*t*t) * arcsec
	var p mat.Dense
	p.Product(rotZ(-z), rotY(theta), rotZ(-zeta))
	return &p
}

// Mean obliquity of the ecliptic at the given Julian epoch, IAU 1976
func obliquity(epoch float64) float64 {
	t := (epoch - 2000) / 100
	return obliquityJ2000 + (-46.8150*t-0.00059*t*t+0.001813*t*t*t)*arcsec
}

// Returns the rotation from FK5 J2000 equatorial coordinates into this frame
func (f Frame) Rotation() *mat.Dense {
	switch f.System {
	case FK5:
		return precession(f.Equinox)
	case ICRS:
		// frame bias B maps ICRS to FK5 J2000, so the transpose maps back
		var b mat.Dense
		b.Product(rotX(-frameBiasEta0), rotY(frameBiasXi0), rotZ(frameBiasAlpha0))
		return mat.DenseCopyOf(b.T())
	case Galactic:
		var g mat.Dense
		g.Product(rotZ(math.Pi/2-galacticNCPLong), rotX(math.Pi/2-galacticPoleDec), rotZ(galacticPoleRA+math.Pi/2))
		return &g
	case Ecliptic:
		var e mat.Dense
		e.Mul(rotX(obliquity(f.Equinox)), precession(f.Equinox))
		return &e
	}
	panic(fmt.Sprintf("unknown celestial system %d", int(f.System)))
}

// A 3x3 rotation, cached as a plain array for the per-pixel path
type rotation [3][3]float64

func newRotation(m mat.Matrix) (r rotation) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r
}

// Rotates the given spherical coordinates in degrees
func (r *rotation) apply(lon, lat float64) (float64, float64) {
	sl, cl := math.Sincos(lon * deg)
	sb, cb := math.Sincos(lat * deg)
	x, y, z := cb*cl, cb*sl, sb
	u := r[0][0]*x + r[0][1]*y + r[0][2]*z
	v := r[1][0]*x + r[1][1]*y + r[1][2]*z
	w := r[2][0]*x + r[2][1]*y + r[2][2]*z
	return normalizeLon(math.Atan2(v, u) / deg), math.Asin(clamp(w, -1, 1)) / deg
}

// Returns the rotation from frame a into frame b
func between(a, b Frame) rotation {
	var m mat.Dense
	m.Mul(b.Rotation(), a.Rotation().T())
	return newRotation(&m)
}

// Normalizes a longitude in degrees into [0,360)
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		lon = 0
	}
	return lon
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
