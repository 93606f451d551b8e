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
)

// Radius of the generating sphere in degrees
const r0 = 180 / math.Pi

// A spherical map projection, identified by its FITS three-letter code.
// Zenithal projections have their reference point at the native pole,
// cylindrical ones and AIT on the native equator.
type Projection string

const (
	TAN Projection = "TAN" // gnomonic
	SIN Projection = "SIN" // orthographic
	ARC Projection = "ARC" // zenithal equidistant
	STG Projection = "STG" // stereographic
	ZEA Projection = "ZEA" // zenithal equal area
	CAR Projection = "CAR" // plate carree
	MER Projection = "MER" // Mercator
	CEA Projection = "CEA" // cylindrical equal area
	AIT Projection = "AIT" // Hammer-Aitoff
)

// Parses a projection code
func ParseProjection(code string) (Projection, error) {
	switch p := Projection(code); p {
	case TAN, SIN, ARC, STG, ZEA, CAR, MER, CEA, AIT:
		return p, nil
	}
	return "", fmt.Errorf("unsupported projection '%s'", code)
}

// Returns true for projections with the reference point at the native pole
func (p Projection) zenithal() bool {
	switch p {
	case TAN, SIN, ARC, STG, ZEA:
		return true
	}
	return false
}

// Native latitude of the reference point
func (p Projection) theta0() float64 {
	if p.zenithal() {
		return 90
	}
	return 0
}

// Deprojects intermediate world coordinates (x,y) in degrees into native spherical coordinates (phi,theta).
// lambda is the CEA scaling parameter
func (p Projection) native(x, y, lambda float64) (phi, theta float64, ok bool) {
	if p.zenithal() {
		r := math.Hypot(x, y)
		if r != 0 {
			phi = math.Atan2(x, -y) / deg
		}
		switch p {
		case TAN:
			theta = math.Atan2(r0, r) / deg
		case SIN:
			if r > r0 {
				return 0, 0, false
			}
			theta = math.Acos(r/r0) / deg
		case ARC:
			if r > 180 {
				return 0, 0, false
			}
			theta = 90 - r
		case STG:
			theta = 90 - 2*math.Atan(r/(2*r0))/deg
		case ZEA:
			if r > 2*r0 {
				return 0, 0, false
			}
			theta = 90 - 2*math.Asin(r/(2*r0))/deg
		}
		return phi, theta, true
	}

	switch p {
	case CAR:
		phi, theta = x, y
	case MER:
		phi, theta = x, 2*math.Atan(math.Exp(y/r0))/deg-90
	case CEA:
		s := lambda * y / r0
		if math.Abs(s) > 1 {
			return 0, 0, false
		}
		phi, theta = x, math.Asin(s)/deg
	case AIT:
		u, v := x/(4*r0), y/(2*r0)
		z2 := 1 - u*u - v*v
		if z2 < 0.5 {
			return 0, 0, false
		}
		z := math.Sqrt(z2)
		phi = 2 * math.Atan2(z*x/(2*r0), 2*z2-1) / deg
		theta = math.Asin(clamp(y*z/r0, -1, 1)) / deg
	default:
		return 0, 0, false
	}
	if phi < -180 || phi > 180 || theta < -90 || theta > 90 {
		return 0, 0, false
	}
	return phi, theta, true
}

// Projects native spherical coordinates (phi,theta) in degrees into intermediate world coordinates (x,y)
func (p Projection) project(phi, theta, lambda float64) (x, y float64, ok bool) {
	if p.zenithal() {
		var r float64
		switch p {
		case TAN:
			if theta <= 0 {
				return 0, 0, false
			}
			r = r0 / math.Tan(theta*deg)
		case SIN:
			if theta < 0 {
				return 0, 0, false
			}
			r = r0 * math.Cos(theta*deg)
		case ARC:
			r = 90 - theta
		case STG:
			if theta <= -90 {
				return 0, 0, false
			}
			r = 2 * r0 * math.Tan((90-theta)*deg/2)
		case ZEA:
			r = 2 * r0 * math.Sin((90-theta)*deg/2)
		}
		s, c := math.Sincos(phi * deg)
		return r * s, -r * c, true
	}

	phi = wrapLon(phi)
	switch p {
	case CAR:
		return phi, theta, true
	case MER:
		if theta <= -90 || theta >= 90 {
			return 0, 0, false
		}
		return phi, r0 * math.Log(math.Tan((90+theta)*deg/2)), true
	case CEA:
		return phi, r0 * math.Sin(theta*deg) / lambda, true
	case AIT:
		st, ct := math.Sincos(theta * deg)
		sp, cp := math.Sincos(phi * deg / 2)
		gamma := r0 * math.Sqrt(2/(1+ct*cp))
		return 2 * gamma * ct * sp, gamma * st, true
	}
	return 0, 0, false
}

// Wraps a longitude in degrees into [-180,180)
func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
