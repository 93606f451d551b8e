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
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testImage() *Image {
	data := []float32{1, 2.5, float32(math.NaN()), -4, 5e-7, 6e7}
	img := NewImageFromNaxisn([]int32{3, 2}, data)
	img.Exposure = 120
	h, _ := ParseHeader(`CTYPE1  = 'RA---TAN'
CTYPE2  = 'DEC--TAN'
CRPIX1  = 2.5
CRPIX2  = 2.5
CRVAL1  = 267.183880241
CRVAL2  = -28.768527143
CDELT1  = -0.0015
CDELT2  = 1.5E-3
LONPOLE = 180
EQUINOX = 2000.0
OBJECT  = 'Galactic center'
HISTORY written by test
`, io.Discard)
	img.Header = *h
	return img
}

func TestWriteRead(t *testing.T) {
	img := testImage()
	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("len=%d; want multiple of %d", buf.Len(), fitsBlockSize)
	}
	if !strings.HasPrefix(buf.String(), "SIMPLE  =                    T") {
		t.Errorf("header starts with '%s'; want SIMPLE card", buf.String()[:HeaderLineSize])
	}

	res := NewImage()
	if err := res.Read(&buf, true, io.Discard); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Bitpix != -32 {
		t.Errorf("Bitpix=%d; want -32", res.Bitpix)
	}
	if res.DimensionsToString() != "3x2" {
		t.Errorf("dims=%s; want 3x2", res.DimensionsToString())
	}
	if res.Exposure != 120 {
		t.Errorf("Exposure=%g; want 120", res.Exposure)
	}
	for i, want := range img.Data {
		got := res.Data[i]
		if math.IsNaN(float64(want)) {
			if !math.IsNaN(float64(got)) {
				t.Errorf("Data[%d]=%g; want NaN", i, got)
			}
		} else if got != want {
			t.Errorf("Data[%d]=%g; want %g", i, got, want)
		}
	}
	for _, k := range []string{"CRPIX1", "CRVAL1", "CRVAL2", "CDELT1", "CDELT2", "LONPOLE", "EQUINOX"} {
		want, _ := img.Header.Float(k)
		if got, ok := res.Header.Float(k); !ok || got != want {
			t.Errorf("%s=%g,%v; want %g", k, got, ok, want)
		}
	}
	for _, k := range []string{"CTYPE1", "CTYPE2", "OBJECT"} {
		want, _ := img.Header.String(k)
		if got, _ := res.Header.String(k); got != want {
			t.Errorf("%s='%s'; want '%s'", k, got, want)
		}
	}
	if len(res.Header.History) != 1 || res.Header.History[0] != "written by test" {
		t.Errorf("History=%v; want [written by test]", res.Header.History)
	}
	if w, h := res.Dims(); w != 3 || h != 2 {
		t.Errorf("Dims=%d,%d; want 3,2", w, h)
	}
	if v, ok := res.Header.Int("NAXIS1"); !ok || v != 3 {
		t.Errorf("NAXIS1=%d,%v; want 3", v, ok)
	}
}

func TestWriteCardLayout(t *testing.T) {
	buf := bytes.Buffer{}
	if err := testImage().Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s := buf.String()
	end := strings.Index(s, "END     ")
	if end < 0 || end%HeaderLineSize != 0 {
		t.Fatalf("END card at %d; want aligned to %d", end, HeaderLineSize)
	}
	cards := []string{}
	for i := 0; i < end; i += HeaderLineSize {
		cards = append(cards, strings.TrimRight(s[i:i+HeaderLineSize], " "))
	}
	want := []string{"SIMPLE", "BITPIX", "NAXIS", "NAXIS1", "NAXIS2", "CTYPE1", "CTYPE2", "CRPIX1", "CRPIX2", "CRVAL1", "CRVAL2"}
	for i, k := range want {
		if !strings.HasPrefix(cards[i], k+strings.Repeat(" ", 8-len(k))+"=") {
			t.Errorf("card %d='%s'; want key %s", i, cards[i], k)
		}
	}
}

// Writes a minimal 16-bit integer FITS file with BZERO and BLANK
func int16FITS(values []int16) []byte {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "")
	writeInt(&sb, "BITPIX", 16, "")
	writeInt(&sb, "NAXIS", 1, "")
	writeInt(&sb, "NAXIS1", len(values), "")
	writeFloat(&sb, "BZERO", 32768, "")
	writeFloat(&sb, "BSCALE", 1, "")
	writeInt(&sb, "BLANK", -32768, "")
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()%fitsBlockSize))

	buf := bytes.NewBufferString(sb.String())
	binary.Write(buf, binary.BigEndian, values)
	buf.Write(make([]byte, fitsBlockSize-buf.Len()%fitsBlockSize))
	return buf.Bytes()
}

func TestReadInt16(t *testing.T) {
	img := NewImage()
	if err := img.Read(bytes.NewReader(int16FITS([]int16{-32767, 0, 32767, -32768})), true, io.Discard); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []float32{1, 32768, 65535}
	for i, w := range want {
		if img.Data[i] != w {
			t.Errorf("Data[%d]=%g; want %g", i, img.Data[i], w)
		}
	}
	if !math.IsNaN(float64(img.Data[3])) {
		t.Errorf("Data[3]=%g; want NaN for BLANK", img.Data[3])
	}
	if img.Bzero != 0 || img.Bscale != 1 {
		t.Errorf("Bzero,Bscale=%g,%g; want 0,1", img.Bzero, img.Bscale)
	}
}

func TestReadTruncated(t *testing.T) {
	b := int16FITS([]int16{1, 2, 3, 4})
	img := NewImage()
	if err := img.Read(bytes.NewReader(b[:fitsBlockSize+2]), true, io.Discard); err == nil {
		t.Errorf("err=nil; want error for truncated data")
	}
	if err := NewImage().Read(strings.NewReader("garbage"), false, io.Discard); err == nil {
		t.Errorf("err=nil; want error for truncated header")
	}
}

func TestReadNotSimple(t *testing.T) {
	sb := strings.Builder{}
	writeInt(&sb, "BITPIX", 16, "")
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()))
	if err := NewImage().Read(strings.NewReader(sb.String()), false, io.Discard); err == nil {
		t.Errorf("err=nil; want error for missing SIMPLE")
	}
}

func TestReadFileGzip(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "image.fits.gz")
	f, err := os.Create(fileName)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if err := testImage().Write(gz); err != nil {
		t.Fatalf("Write: %v", err)
	}
	gz.Close()
	f.Close()

	img, err := NewImageFromFile(fileName, 7, io.Discard)
	if err != nil {
		t.Fatalf("NewImageFromFile: %v", err)
	}
	if img.ID != 7 || img.FileName != fileName {
		t.Errorf("ID,FileName=%d,%s; want 7,%s", img.ID, img.FileName, fileName)
	}
	if img.Data[0] != 1 || img.Data[5] != 6e7 {
		t.Errorf("Data=%v; want [1 ... 6e7]", img.Data)
	}
}

func TestReadHeaderFile(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "target.hdr")
	if err := os.WriteFile(hdr, []byte(textHeader), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeaderFile(hdr, io.Discard)
	if err != nil {
		t.Fatalf("ReadHeaderFile: %v", err)
	}
	if v, _ := h.String("CTYPE2"); v != "DEC--TAN" {
		t.Errorf("CTYPE2=%s; want DEC--TAN", v)
	}

	fitsName := filepath.Join(dir, "image.fits")
	if err := testImage().WriteFile(fitsName); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h, err = ReadHeaderFile(fitsName, io.Discard)
	if err != nil {
		t.Fatalf("ReadHeaderFile: %v", err)
	}
	if v, _ := h.Float("CRVAL1"); v != 267.183880241 {
		t.Errorf("CRVAL1=%g; want 267.183880241", v)
	}
	if v, _ := h.Int("NAXIS2"); v != 2 {
		t.Errorf("NAXIS2=%d; want 2", v)
	}
}

// Builds a FITS file with an empty primary HDU, a 16-bit image extension, a binary table
// and a float image extension with world coordinates
func multiHDUFITS() []byte {
	buf := bytes.Buffer{}
	block := func(sb *strings.Builder) {
		writeEnd(sb)
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()%fitsBlockSize))
		buf.WriteString(sb.String())
	}
	pad := func() {
		if rest := buf.Len() % fitsBlockSize; rest != 0 {
			buf.Write(make([]byte, fitsBlockSize-rest))
		}
	}

	primary := strings.Builder{}
	writeBool(&primary, "SIMPLE", true, "")
	writeInt(&primary, "BITPIX", 8, "")
	writeInt(&primary, "NAXIS", 0, "")
	writeBool(&primary, "EXTEND", true, "")
	block(&primary)

	ext1 := strings.Builder{}
	writeString(&ext1, "XTENSION", "IMAGE", "")
	writeInt(&ext1, "BITPIX", 16, "")
	writeInt(&ext1, "NAXIS", 1, "")
	writeInt(&ext1, "NAXIS1", 3, "")
	writeInt(&ext1, "PCOUNT", 0, "")
	writeInt(&ext1, "GCOUNT", 1, "")
	block(&ext1)
	binary.Write(&buf, binary.BigEndian, []int16{7, 8, 9})
	pad()

	ext2 := strings.Builder{}
	writeString(&ext2, "XTENSION", "BINTABLE", "")
	writeInt(&ext2, "BITPIX", 8, "")
	writeInt(&ext2, "NAXIS", 2, "")
	writeInt(&ext2, "NAXIS1", 4, "")
	writeInt(&ext2, "NAXIS2", 1000, "")
	writeInt(&ext2, "PCOUNT", 10, "")
	writeInt(&ext2, "GCOUNT", 1, "")
	block(&ext2)
	buf.Write(make([]byte, 4010))
	pad()

	ext3 := strings.Builder{}
	writeString(&ext3, "XTENSION", "IMAGE", "")
	writeInt(&ext3, "BITPIX", -32, "")
	writeInt(&ext3, "NAXIS", 2, "")
	writeInt(&ext3, "NAXIS1", 2, "")
	writeInt(&ext3, "NAXIS2", 2, "")
	writeInt(&ext3, "PCOUNT", 0, "")
	writeInt(&ext3, "GCOUNT", 1, "")
	writeString(&ext3, "CTYPE1", "GLON-CAR", "")
	writeString(&ext3, "CTYPE2", "GLAT-CAR", "")
	block(&ext3)
	binary.Write(&buf, binary.BigEndian, []float32{1, 2, 3, 4})
	pad()
	return buf.Bytes()
}

func TestReadHDU(t *testing.T) {
	b := multiHDUFITS()

	primary := NewImage()
	if err := primary.Read(bytes.NewReader(b), true, io.Discard); err != nil {
		t.Fatalf("Read primary: %v", err)
	}
	if len(primary.Naxisn) != 0 || len(primary.Data) != 0 || primary.IsPlanar() {
		t.Errorf("primary has dimensions %v and %d values; want empty", primary.Naxisn, len(primary.Data))
	}

	ext := NewImage()
	ext.HDU = 3
	if err := ext.Read(bytes.NewReader(b), true, io.Discard); err != nil {
		t.Fatalf("Read HDU 3: %v", err)
	}
	if !ext.IsPlanar() || ext.Pixels != 4 {
		t.Fatalf("HDU 3 has dimensions %v; want 2x2", ext.Naxisn)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if ext.Data[i] != want {
			t.Errorf("HDU 3 Data[%d]=%g; want %g", i, ext.Data[i], want)
		}
	}
	if s, _ := ext.Header.String("CTYPE1"); s != "GLON-CAR" {
		t.Errorf("HDU 3 CTYPE1=%q; want GLON-CAR", s)
	}
	for _, k := range []string{"XTENSION", "PCOUNT", "GCOUNT"} {
		if _, ok := ext.Header.Strings[k]; ok {
			t.Errorf("HDU 3 header keeps %s; want it removed", k)
		}
		if _, ok := ext.Header.Ints[k]; ok {
			t.Errorf("HDU 3 header keeps %s; want it removed", k)
		}
	}

	small := NewImage()
	small.HDU = 1
	if err := small.Read(bytes.NewReader(b), true, io.Discard); err != nil {
		t.Fatalf("Read HDU 1: %v", err)
	}
	if len(small.Data) != 3 || small.Data[2] != 9 {
		t.Errorf("HDU 1 data %v; want [7 8 9]", small.Data)
	}

	for _, hdu := range []int{2, 4, -1} {
		img := NewImage()
		img.HDU = hdu
		if err := img.Read(bytes.NewReader(b), true, io.Discard); err == nil {
			t.Errorf("Read HDU %d succeeded; want error", hdu)
		}
	}
}

func TestReadFileHDU(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "survey.fits")
	if err := os.WriteFile(fileName, multiHDUFITS(), 0644); err != nil {
		t.Fatal(err)
	}
	img, err := NewImageFromFileHDU(fileName, 3, 3, io.Discard)
	if err != nil {
		t.Fatalf("NewImageFromFileHDU: %v", err)
	}
	if w, h := img.Dims(); w != 2 || h != 2 {
		t.Errorf("dims %dx%d; want 2x2", w, h)
	}
	h, err := ReadHeaderFileHDU(fileName, 3, io.Discard)
	if err != nil {
		t.Fatalf("ReadHeaderFileHDU: %v", err)
	}
	if n, _ := h.Int("NAXIS2"); n != 2 {
		t.Errorf("NAXIS2=%d; want 2", n)
	}
}

func TestPixelCount(t *testing.T) {
	tests := []struct {
		naxisn []int32
		want   int
		ok     bool
	}{
		{nil, 0, true},
		{[]int32{3, 2}, 6, true},
		{[]int32{0, 5}, 0, true},
		{[]int32{46341, 46341}, 0, false},
		{[]int32{65536, 65536, 4}, 0, false},
		{[]int32{3, -2}, 0, false},
	}
	for _, test := range tests {
		got, err := PixelCount(test.naxisn)
		if (err == nil) != test.ok || got != test.want {
			t.Errorf("PixelCount(%v)=%d,%v; want %d, ok=%v", test.naxisn, got, err, test.want, test.ok)
		}
	}

	img := NewImage()
	if err := img.Read(bytes.NewReader(int16FITSShape(65536, 65536)), false, io.Discard); err == nil {
		t.Errorf("Read of 65536x65536 header succeeded; want error")
	}
}

// Header of a 16-bit image with the given shape, without data
func int16FITSShape(width, height int) []byte {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "")
	writeInt(&sb, "BITPIX", 16, "")
	writeInt(&sb, "NAXIS", 2, "")
	writeInt(&sb, "NAXIS1", width, "")
	writeInt(&sb, "NAXIS2", height, "")
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()%fitsBlockSize))
	return []byte(sb.String())
}
