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
	"encoding/json"
	"fmt"
	"strconv"
)

// Interpolation order, i.e. the polynomial degree used for resampling.
// The set of orders is closed.
type Order int

const (
	Nearest     Order = 0 // nearest neighbor, 1x1 support
	Bilinear    Order = 1 // 2x2 support
	Biquadratic Order = 2 // 3x3 support
	Bicubic     Order = 3 // 4x4 support
)

// Canonical order names. Built once, never modified.
var orderNames = map[string]Order{
	"nearest-neighbor": Nearest,
	"bilinear":         Bilinear,
	"biquadratic":      Biquadratic,
	"bicubic":          Bicubic,
}

// Parses an interpolation order from its canonical name or from an integer 0..3
func ParseOrder(s string) (Order, error) {
	if o, ok := orderNames[s]; ok {
		return o, nil
	}
	if i, err := strconv.Atoi(s); err == nil && Order(i).Valid() {
		return Order(i), nil
	}
	return 0, fmt.Errorf("%w: unknown interpolation order '%s'", ErrInvalidArgument, s)
}

// Returns true if the order is one of the four supported orders
func (o Order) Valid() bool {
	return o >= Nearest && o <= Bicubic
}

// Number of support pixels per axis
func (o Order) Support() int {
	return int(o) + 1
}

func (o Order) String() string {
	switch o {
	case Nearest:
		return "nearest-neighbor"
	case Bilinear:
		return "bilinear"
	case Biquadratic:
		return "biquadratic"
	case Bicubic:
		return "bicubic"
	}
	return fmt.Sprintf("order(%d)", int(o))
}

// Orders serialize to JSON by name
func (o Order) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: cannot marshal %v", ErrInvalidArgument, o)
	}
	return json.Marshal(o.String())
}

// Orders deserialize from JSON either by name or as a bare integer
func (o *Order) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		parsed, err := ParseOrder(name)
		if err != nil {
			return err
		}
		*o = parsed
		return nil
	}
	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return fmt.Errorf("%w: order must be a name or an integer, got %s", ErrInvalidArgument, string(b))
	}
	if !Order(i).Valid() {
		return fmt.Errorf("%w: order %d out of range 0..3", ErrInvalidArgument, i)
	}
	*o = Order(i)
	return nil
}
