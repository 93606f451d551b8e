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
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"golang.org/x/image/tiff"
)

// Returns a 16x16 image whose left half is uncovered and whose right half holds the given value
func halfCovered(value float32) *Image {
	img := NewImageFromNaxisn([]int32{16, 16}, nil)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				img.Data[y*16+x] = float32(math.NaN())
			} else {
				img.Data[y*16+x] = value
			}
		}
	}
	return img
}

func TestParseUncoveredColor(t *testing.T) {
	c, err := ParseUncoveredColor("")
	if err != nil || c != DefaultUncoveredColor {
		t.Errorf("ParseUncoveredColor('')=%v,%v; want default", c, err)
	}
	c, err = ParseUncoveredColor("#ff0000")
	if err != nil {
		t.Fatalf("ParseUncoveredColor: %v", err)
	}
	if r, g, b := c.RGB255(); r != 255 || g != 0 || b != 0 {
		t.Errorf("RGB255=%d,%d,%d; want 255,0,0", r, g, b)
	}
	if _, err := ParseUncoveredColor("red"); err == nil {
		t.Errorf("err=nil; want error for malformed color")
	}
}

func TestWriteMonoTIFF16(t *testing.T) {
	red, _ := ParseUncoveredColor("#ff0000")
	buf := bytes.Buffer{}
	if err := halfCovered(0.5).WriteMonoTIFF16(&buf, 0, 1, 1, red); err != nil {
		t.Fatalf("WriteMonoTIFF16: %v", err)
	}
	img, err := tiff.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Fatalf("bounds=%v; want 16x16", img.Bounds())
	}
	if r, g, b, _ := img.At(3, 3).RGBA(); r != 65535 || g != 0 || b != 0 {
		t.Errorf("uncovered=%d,%d,%d; want 65535,0,0", r, g, b)
	}
	if r, g, b, _ := img.At(12, 3).RGBA(); r != 32768 || g != 32768 || b != 32768 {
		t.Errorf("covered=%d,%d,%d; want 32768 gray", r, g, b)
	}
}

func TestWriteMonoJPG(t *testing.T) {
	red, _ := ParseUncoveredColor("#ff0000")
	buf := bytes.Buffer{}
	if err := halfCovered(1).WriteMonoJPG(&buf, 0, 1, 1, 95, red); err != nil {
		t.Fatalf("WriteMonoJPG: %v", err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r, g, b, _ := img.At(3, 8).RGBA(); r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("uncovered=%d,%d,%d; want red", r>>8, g>>8, b>>8)
	}
	if r, g, b, _ := img.At(12, 8).RGBA(); r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
		t.Errorf("covered=%d,%d,%d; want white", r>>8, g>>8, b>>8)
	}
}

func TestReadTIFF(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 3, 2))
	for i := 0; i < 6; i++ {
		src.SetGray16(i%3, i/3, color.Gray16{Y: uint16(i * 1000)})
	}
	buf := bytes.Buffer{}
	if err := tiff.Encode(&buf, src, nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	img := NewImage()
	if err := img.ReadTIFF(&buf); err != nil {
		t.Fatalf("ReadTIFF: %v", err)
	}
	if img.DimensionsToString() != "3x2" || img.Bitpix != 16 {
		t.Errorf("dims,bitpix=%s,%d; want 3x2,16", img.DimensionsToString(), img.Bitpix)
	}
	for i, v := range img.Data {
		if v != float32(i*1000) {
			t.Errorf("Data[%d]=%g; want %d", i, v, i*1000)
		}
	}
}
