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
	"context"
	"math"
)

// Resamples output rows [from, to) into data and footprint, which hold exactly those rows.
// Pixels without a valid sample get NaN and footprint 0. Checks for cancellation once per row
func resampleRows(ctx context.Context, img Image, m *Mapper, order Order, width, from, to int, data, footprint []float32) error {
	nan := float32(math.NaN())
	for row := from; row < to; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := (row - from) * width
		for col := 0; col < width; col++ {
			v, err := resamplePixel(img, m, order, col, row)
			if err != nil {
				data[offset+col], footprint[offset+col] = nan, 0
				continue
			}
			data[offset+col], footprint[offset+col] = float32(v), 1
		}
	}
	return nil
}

// Resamples a single output pixel
func resamplePixel(img Image, m *Mapper, order Order, col, row int) (float64, error) {
	x, y, err := m.Map(float64(col), float64(row))
	if err != nil {
		return math.NaN(), err
	}
	return Sample(img, x, y, order)
}
