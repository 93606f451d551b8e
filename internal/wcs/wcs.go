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

// Package wcs implements the celestial part of the FITS World Coordinate System:
// the linear pixel transformation, spherical projections, the native spherical
// rotation and conversions between celestial reference frames.
// See Greisen & Calabretta 2002 (paper I) and Calabretta & Greisen 2002 (paper II).
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnsupportedFrame = errors.New("unsupported celestial reference system")
	ErrMalformed        = errors.New("malformed world coordinate system")
)

// Source of FITS header keyword values
type Keywords interface {
	Float(key string) (float64, bool)
	String(key string) (string, bool)
}

// A celestial world coordinate system for a 2-dimensional image.
// Pixel coordinates are 0-based, so FITS pixel 1 is at 0. World coordinates are in degrees.
// Safe for concurrent use once created.
type WCS struct {
	width, height int // image shape from NAXIS1/NAXIS2, 0 if not given

	celestial bool
	lonAxis   int // index of the longitude axis, 0 or 1
	proj      Projection
	frame     Frame
	lambda    float64 // CEA parameter

	crpix [2]float64
	crval [2]float64
	cd    [2][2]float64 // linear transformation from pixel offsets to intermediate world coordinates
	icd   [2][2]float64 // and its inverse

	alphaP, deltaP, phiP float64 // celestial coordinates of the native pole, native longitude of the celestial pole

	toSky   rotation // from this frame into the common sky frame
	fromSky rotation
}

// Creates a world coordinate system from the given header keywords.
//
// Headers without a celestial axis pair yield a WCS which reports HasCelestial() false.
// Unknown projections, inconsistent axis pairs, singular transformation matrices and
// unsupported reference systems are errors.
func New(kw Keywords) (*WCS, error) {
	w := &WCS{lambda: 1}
	if v, ok := kw.Float("NAXIS1"); ok {
		w.width = int(v)
	}
	if v, ok := kw.Float("NAXIS2"); ok {
		w.height = int(v)
	}

	t1, _ := kw.String("CTYPE1")
	t2, _ := kw.String("CTYPE2")
	k1, p1, ok1 := splitCtype(t1)
	k2, p2, ok2 := splitCtype(t2)
	if !ok1 || !ok2 {
		return w, nil // no celestial axes
	}
	lon, lat := k1, k2
	if isLatitude(k1) {
		w.lonAxis = 1
		lon, lat = k2, k1
	}
	if !isLongitude(lon) || !isLatitude(lat) || pairOf(lon) != lat {
		return nil, fmt.Errorf("%w: axis types '%s' and '%s' do not form a celestial pair", ErrMalformed, t1, t2)
	}
	if p1 != p2 {
		return nil, fmt.Errorf("%w: projections '%s' and '%s' differ", ErrMalformed, p1, p2)
	}
	proj, err := ParseProjection(p1)
	if err != nil {
		return nil, err
	}
	w.proj = proj
	w.celestial = true

	if w.frame, err = frameOf(kw, lon); err != nil {
		return nil, err
	}
	if err := w.readLinear(kw); err != nil {
		return nil, err
	}
	if proj == CEA {
		if v, ok := kw.Float(fmt.Sprintf("PV%d_1", 2-w.lonAxis)); ok {
			if v <= 0 || v > 1 {
				return nil, fmt.Errorf("%w: CEA parameter lambda=%g outside (0,1]", ErrMalformed, v)
			}
			w.lambda = v
		}
	}
	if err := w.computeNativePole(kw); err != nil {
		return nil, err
	}
	w.toSky = between(w.frame, SkyFrame)
	w.fromSky = between(SkyFrame, w.frame)
	return w, nil
}

// Splits a CTYPE value like "RA---TAN" into the axis kind "RA" and projection code "TAN"
func splitCtype(ctype string) (kind, code string, ok bool) {
	ctype = strings.TrimSpace(ctype)
	if len(ctype) < 8 || ctype[4] != '-' {
		return "", "", false
	}
	kind = strings.TrimRight(ctype[:4], "-")
	code = strings.TrimRight(ctype[5:], " ")
	if !isLongitude(kind) && !isLatitude(kind) {
		return "", "", false
	}
	return kind, code, true
}

func isLongitude(kind string) bool { return kind == "RA" || kind == "GLON" || kind == "ELON" }
func isLatitude(kind string) bool  { return kind == "DEC" || kind == "GLAT" || kind == "ELAT" }

func pairOf(lon string) string {
	switch lon {
	case "RA":
		return "DEC"
	case "GLON":
		return "GLAT"
	case "ELON":
		return "ELAT"
	}
	return ""
}

// Determines the celestial reference frame from the axis kind, RADESYS and EQUINOX
func frameOf(kw Keywords, lon string) (Frame, error) {
	equinox, hasEquinox := kw.Float("EQUINOX")
	if !hasEquinox {
		equinox, hasEquinox = kw.Float("EPOCH")
	}
	switch lon {
	case "GLON":
		return Frame{System: Galactic}, nil
	case "ELON":
		if !hasEquinox {
			equinox = 2000
		}
		return Frame{System: Ecliptic, Equinox: equinox}, nil
	}

	radesys, _ := kw.String("RADESYS")
	if radesys == "" {
		radesys, _ = kw.String("RADECSYS")
	}
	radesys = strings.ToUpper(strings.TrimSpace(radesys))
	if radesys == "" {
		switch {
		case !hasEquinox:
			radesys = "ICRS"
		case equinox >= 1984:
			radesys = "FK5"
		default:
			radesys = "FK4"
		}
	}
	switch radesys {
	case "ICRS":
		return Frame{System: ICRS}, nil
	case "FK5":
		if !hasEquinox {
			equinox = 2000
		}
		return Frame{System: FK5, Equinox: equinox}, nil
	}
	return Frame{}, fmt.Errorf("%w: RADESYS '%s'", ErrUnsupportedFrame, radesys)
}

// Reads reference pixel, reference value and the linear transformation matrix.
// CDi_j takes precedence over PCi_j with CDELTi, which takes precedence over CROTA2.
func (w *WCS) readLinear(kw Keywords) error {
	var scale [2]float64 // CUNITi in degrees
	for i := 0; i < 2; i++ {
		w.crpix[i], _ = kw.Float(fmt.Sprintf("CRPIX%d", i+1))
		w.crval[i], _ = kw.Float(fmt.Sprintf("CRVAL%d", i+1))
		unit, _ := kw.String(fmt.Sprintf("CUNIT%d", i+1))
		var err error
		if scale[i], err = unitScale(unit); err != nil {
			return err
		}
		w.crval[i] *= scale[i]
	}

	// CDi_j is given in units of CUNITi per pixel
	cd := mat.NewDense(2, 2, nil)
	hasCD := false
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if v, ok := kw.Float(fmt.Sprintf("CD%d_%d", i+1, j+1)); ok {
				cd.Set(i, j, v*scale[i])
				hasCD = true
			}
		}
	}
	if !hasCD {
		pc := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
		hasPC := false
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				if v, ok := kw.Float(fmt.Sprintf("PC%d_%d", i+1, j+1)); ok {
					pc.Set(i, j, v)
					hasPC = true
				}
			}
		}
		cdelt := [2]float64{1, 1}
		for i := 0; i < 2; i++ {
			if v, ok := kw.Float(fmt.Sprintf("CDELT%d", i+1)); ok {
				cdelt[i] = v
			}
			cdelt[i] *= scale[i]
		}
		if rho, ok := kw.Float("CROTA2"); ok && !hasPC && rho != 0 {
			s, c := math.Sincos(rho * deg)
			pc.Set(0, 0, c)
			pc.Set(0, 1, -s*cdelt[1]/cdelt[0])
			pc.Set(1, 0, s*cdelt[0]/cdelt[1])
			pc.Set(1, 1, c)
		}
		cd.Mul(mat.NewDiagDense(2, cdelt[:]), pc)
	}

	var icd mat.Dense
	if err := icd.Inverse(cd); err != nil {
		return fmt.Errorf("%w: linear transformation is singular: %v", ErrMalformed, err)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			w.cd[i][j], w.icd[i][j] = cd.At(i, j), icd.At(i, j)
		}
	}
	return nil
}

// Returns the factor converting the given angular unit into degrees
func unitScale(unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "deg":
		return 1, nil
	case "arcmin":
		return 1.0 / 60, nil
	case "arcsec":
		return 1.0 / 3600, nil
	case "rad":
		return 180 / math.Pi, nil
	}
	return 0, fmt.Errorf("%w: unsupported angular unit '%s'", ErrMalformed, unit)
}

// Computes the celestial coordinates of the native pole from the reference point, LONPOLE and LATPOLE
func (w *WCS) computeNativePole(kw Keywords) error {
	alpha0, delta0 := w.crval[w.lonAxis], w.crval[1-w.lonAxis]
	phi0, theta0 := 0.0, w.proj.theta0()

	phiP, ok := kw.Float("LONPOLE")
	if !ok {
		phiP = 0
		if delta0 < theta0 {
			phiP = 180
		}
	}
	thetaP, ok := kw.Float("LATPOLE")
	if !ok {
		thetaP = 90
	}
	w.phiP = phiP

	if theta0 == 90 {
		w.alphaP, w.deltaP = alpha0, delta0
		return nil
	}

	sd0, cd0 := math.Sincos(delta0 * deg)
	st0, ct0 := math.Sincos(theta0 * deg)
	sdp, cdp := math.Sincos((phiP - phi0) * deg)
	first := math.Atan2(st0, ct0*cdp) / deg
	den := math.Sqrt(1 - ct0*ct0*sdp*sdp)
	if den == 0 || math.Abs(sd0/den) > 1 {
		return fmt.Errorf("%w: no native pole for CRVAL %g,%g and LONPOLE %g", ErrMalformed, alpha0, delta0, phiP)
	}
	second := math.Acos(sd0/den) / deg

	const eps = 1e-10
	found := false
	for _, cand := range []float64{first + second, first - second} {
		if cand < -90-eps || cand > 90+eps {
			continue
		}
		cand = clamp(cand, -90, 90)
		if !found || math.Abs(cand-thetaP) < math.Abs(w.deltaP-thetaP) {
			w.deltaP, found = cand, true
		}
	}
	if !found {
		return fmt.Errorf("%w: no native pole for CRVAL %g,%g and LONPOLE %g", ErrMalformed, alpha0, delta0, phiP)
	}

	switch {
	case math.Abs(w.deltaP-90) < eps:
		w.alphaP = alpha0 + phiP - phi0 - 180
	case math.Abs(w.deltaP+90) < eps:
		w.alphaP = alpha0 - phiP + phi0
	case math.Abs(cd0) < eps:
		w.alphaP = alpha0
	default:
		sdelP, cdelP := math.Sincos(w.deltaP * deg)
		w.alphaP = alpha0 - math.Atan2(sdp*ct0/cd0, (st0-sdelP*sd0)/(cdelP*cd0))/deg
	}
	return nil
}

// Returns true if the coordinate system has a celestial axis pair
func (w *WCS) HasCelestial() bool { return w.celestial }

// Returns the image shape given by NAXIS1 and NAXIS2, or zeros if absent
func (w *WCS) Shape() (width, height int) { return w.width, w.height }

func (w *WCS) Frame() Frame { return w.frame }

func (w *WCS) Projection() Projection { return w.proj }

// Converts 0-based pixel coordinates into world coordinates of this system's frame
func (w *WCS) PixelToWorld(x, y float64) (lon, lat float64, ok bool) {
	if !w.celestial {
		return math.NaN(), math.NaN(), false
	}
	dx, dy := x+1-w.crpix[0], y+1-w.crpix[1]
	i0 := w.cd[0][0]*dx + w.cd[0][1]*dy
	i1 := w.cd[1][0]*dx + w.cd[1][1]*dy
	ix, iy := i0, i1
	if w.lonAxis == 1 {
		ix, iy = i1, i0
	}
	phi, theta, ok := w.proj.native(ix, iy, w.lambda)
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	lon, lat = w.nativeToCelestial(phi, theta)
	return lon, lat, true
}

// Converts world coordinates of this system's frame into 0-based pixel coordinates
func (w *WCS) WorldToPixel(lon, lat float64) (x, y float64, ok bool) {
	if !w.celestial || lat < -90 || lat > 90 {
		return math.NaN(), math.NaN(), false
	}
	phi, theta := w.celestialToNative(lon, lat)
	ix, iy, ok := w.proj.project(phi, theta, w.lambda)
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	i0, i1 := ix, iy
	if w.lonAxis == 1 {
		i0, i1 = iy, ix
	}
	x = w.icd[0][0]*i0 + w.icd[0][1]*i1 + w.crpix[0] - 1
	y = w.icd[1][0]*i0 + w.icd[1][1]*i1 + w.crpix[1] - 1
	return x, y, true
}

// Converts 0-based pixel coordinates into FK5 J2000 equatorial coordinates
func (w *WCS) PixelToSky(x, y float64) (lon, lat float64, ok bool) {
	lon, lat, ok = w.PixelToWorld(x, y)
	if !ok {
		return lon, lat, false
	}
	lon, lat = w.toSky.apply(lon, lat)
	return lon, lat, true
}

// Converts FK5 J2000 equatorial coordinates into 0-based pixel coordinates
func (w *WCS) SkyToPixel(lon, lat float64) (x, y float64, ok bool) {
	if !w.celestial {
		return math.NaN(), math.NaN(), false
	}
	lon, lat = w.fromSky.apply(lon, lat)
	return w.WorldToPixel(lon, lat)
}

// Rotates native spherical coordinates into celestial coordinates, paper II eq. 2
func (w *WCS) nativeToCelestial(phi, theta float64) (alpha, delta float64) {
	st, ct := math.Sincos(theta * deg)
	sdp, cdp := math.Sincos(w.deltaP * deg)
	sd, cd := math.Sincos((phi - w.phiP) * deg)
	alpha = w.alphaP + math.Atan2(-ct*sd, st*cdp-ct*sdp*cd)/deg
	delta = math.Asin(clamp(st*sdp+ct*cdp*cd, -1, 1)) / deg
	return normalizeLon(alpha), delta
}

// Rotates celestial coordinates into native spherical coordinates, paper II eq. 5
func (w *WCS) celestialToNative(alpha, delta float64) (phi, theta float64) {
	sd, cd := math.Sincos(delta * deg)
	sdp, cdp := math.Sincos(w.deltaP * deg)
	sa, ca := math.Sincos((alpha - w.alphaP) * deg)
	phi = w.phiP + math.Atan2(-cd*sa, sd*cdp-cd*sdp*ca)/deg
	theta = math.Asin(clamp(sd*sdp+cd*cdp*ca, -1, 1)) / deg
	return phi, theta
}

func (w *WCS) String() string {
	if !w.celestial {
		return "no celestial axes"
	}
	return fmt.Sprintf("%v %s, reference pixel (%g,%g) at (%g,%g), %dx%d pixels",
		w.frame, w.proj, w.crpix[0], w.crpix[1], w.crval[0], w.crval[1], w.width, w.height)
}
