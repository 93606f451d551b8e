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

// World and sky coordinates of a pixel position
type Position struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Lon     float64 `json:"lon"`     // longitude in the frame of the coordinate system
	Lat     float64 `json:"lat"`     // latitude in the frame of the coordinate system
	RA      float64 `json:"ra"`      // FK5 J2000 right ascension
	Dec     float64 `json:"dec"`     // FK5 J2000 declination
	Defined bool    `json:"defined"` // false if the projection is undefined at this pixel
}

// Overview of a coordinate system, for display
type Summary struct {
	Celestial  bool       `json:"celestial"`
	Frame      string     `json:"frame,omitempty"`
	Projection string     `json:"projection,omitempty"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Center     *Position  `json:"center,omitempty"`
	Corners    []Position `json:"corners,omitempty"` // pixel centers of the corners, counterclockwise from (0,0)
}

// Returns the position of the given pixel
func (w *WCS) Position(x, y float64) Position {
	p := Position{X: x, Y: y}
	lon, lat, ok := w.PixelToWorld(x, y)
	if !ok {
		return p
	}
	p.Lon, p.Lat, p.Defined = lon, lat, true
	p.RA, p.Dec = w.toSky.apply(lon, lat)
	return p
}

// Summarizes the coordinate system. Center and corners require a known image shape
func (w *WCS) Summarize() Summary {
	s := Summary{Celestial: w.celestial, Width: w.width, Height: w.height}
	if !w.celestial {
		return s
	}
	s.Frame, s.Projection = w.frame.String(), string(w.proj)
	if w.width <= 0 || w.height <= 0 {
		return s
	}
	xMax, yMax := float64(w.width-1), float64(w.height-1)
	c := w.Position(xMax/2, yMax/2)
	s.Center = &c
	for _, xy := range [][2]float64{{0, 0}, {xMax, 0}, {xMax, yMax}, {0, yMax}} {
		s.Corners = append(s.Corners, w.Position(xy[0], xy[1]))
	}
	return s
}
