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

// Maps output pixel coordinates to input pixel coordinates, going through the sky.
// There are no shortcuts for particular pairs of coordinate systems.
type Mapper struct {
	from Transform // input coordinate system
	to   Transform // output coordinate system
}

func NewMapper(from, to Transform) *Mapper {
	return &Mapper{from: from, to: to}
}

// Returns the input pixel coordinate seen by the given output pixel, or ErrUndefinedMapping
func (m *Mapper) Map(xOut, yOut float64) (xIn, yIn float64, err error) {
	lon, lat, ok := m.to.PixelToSky(xOut, yOut)
	if !ok || !isFinite(lon) || !isFinite(lat) {
		return math.NaN(), math.NaN(), ErrUndefinedMapping
	}
	xIn, yIn, ok = m.from.SkyToPixel(lon, lat)
	if !ok || !isFinite(xIn) || !isFinite(yIn) {
		return math.NaN(), math.NaN(), ErrUndefinedMapping
	}
	return xIn, yIn, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
