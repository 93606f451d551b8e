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
	"sort"
	"strings"
)

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float64),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

// Returns a deep copy of the header
func (h *Header) Clone() Header {
	c := NewHeader()
	for k, v := range h.Bools {
		c.Bools[k] = v
	}
	for k, v := range h.Ints {
		c.Ints[k] = v
	}
	for k, v := range h.Floats {
		c.Floats[k] = v
	}
	for k, v := range h.Strings {
		c.Strings[k] = v
	}
	for k, v := range h.Dates {
		c.Dates[k] = v
	}
	c.Comments = append(c.Comments, h.Comments...)
	c.History = append(c.History, h.History...)
	c.End, c.Length = h.End, h.Length
	return c
}

// Returns a numeric value for the given key, converting integers as needed
func (h *Header) Float(key string) (float64, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

// Returns an integer value for the given key
func (h *Header) Int(key string) (int32, bool) {
	v, ok := h.Ints[key]
	return v, ok
}

// Returns a string value for the given key. Dates are returned as strings
func (h *Header) String(key string) (string, bool) {
	if v, ok := h.Strings[key]; ok {
		return v, true
	}
	if v, ok := h.Dates[key]; ok {
		return v, true
	}
	return "", false
}

// Removes the given key from all value maps
func (h *Header) Delete(key string) {
	delete(h.Bools, key)
	delete(h.Ints, key)
	delete(h.Floats, key)
	delete(h.Strings, key)
	delete(h.Dates, key)
}

func (h *Header) SetFloat(key string, v float64) {
	h.Delete(key)
	h.Floats[key] = v
}

func (h *Header) SetInt(key string, v int32) {
	h.Delete(key)
	h.Ints[key] = v
}

func (h *Header) SetString(key string, v string) {
	h.Delete(key)
	h.Strings[key] = v
}

// Returns true if the key names a world coordinate system keyword for the first two axes
func IsWCSKey(key string) bool {
	switch key {
	case "CROTA2", "LONPOLE", "LATPOLE", "RADESYS", "RADECSYS", "EQUINOX", "EPOCH":
		return true
	}
	for _, prefix := range []string{"CTYPE", "CRPIX", "CRVAL", "CDELT", "CUNIT"} {
		if key == prefix+"1" || key == prefix+"2" {
			return true
		}
	}
	for _, prefix := range []string{"CD", "PC", "PV"} {
		if len(key) == len(prefix)+3 && strings.HasPrefix(key, prefix) && key[len(prefix)+1] == '_' &&
			(key[len(prefix)] == '1' || key[len(prefix)] == '2') {
			return true
		}
	}
	return false
}

// Replaces the world coordinate system keywords of this header with those of the given header
func (h *Header) CopyWCS(from *Header) {
	for _, k := range h.keys() {
		if IsWCSKey(k) {
			h.Delete(k)
		}
	}
	for k, v := range from.Bools {
		if IsWCSKey(k) {
			h.Bools[k] = v
		}
	}
	for k, v := range from.Ints {
		if IsWCSKey(k) {
			h.Ints[k] = v
		}
	}
	for k, v := range from.Floats {
		if IsWCSKey(k) {
			h.Floats[k] = v
		}
	}
	for k, v := range from.Strings {
		if IsWCSKey(k) {
			h.Strings[k] = v
		}
	}
}

// Returns all value keys in sorted order
func (h *Header) keys() []string {
	keys := make([]string, 0, len(h.Bools)+len(h.Ints)+len(h.Floats)+len(h.Strings)+len(h.Dates))
	for k := range h.Bools {
		keys = append(keys, k)
	}
	for k := range h.Ints {
		keys = append(keys, k)
	}
	for k := range h.Floats {
		keys = append(keys, k)
	}
	for k := range h.Strings {
		keys = append(keys, k)
	}
	for k := range h.Dates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
