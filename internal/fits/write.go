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
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Header keys the writer emits from image fields instead of from the header maps
var structuralKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "EXTEND": true,
	"BZERO": true, "BSCALE": true, "BLANK": true, "END": true,
}

// Order in which world coordinate keys are written, ahead of all other keys
var wcsKeyOrder = []string{
	"CTYPE1", "CTYPE2", "CUNIT1", "CUNIT2", "CRPIX1", "CRPIX2", "CRVAL1", "CRVAL2",
	"CDELT1", "CDELT2", "CD1_1", "CD1_2", "CD2_1", "CD2_2", "PC1_1", "PC1_2", "PC2_1", "PC2_2",
	"CROTA2", "PV1_1", "PV1_2", "PV2_1", "PV2_2", "LONPOLE", "LATPOLE", "RADESYS", "RADECSYS", "EQUINOX", "EPOCH",
}

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary. Compresses with gzip if .gz or .gzip suffix is present
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if lExt := strings.ToLower(path.Ext(fileName)); lExt == ".gz" || lExt == ".gzip" {
		gz := gzip.NewWriter(w)
		if err := fits.Write(gz); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
	} else if err := fits.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

// Writes an in-memory FITS image to an io.Writer, as 32-bit floats with NaNs preserved
func (fits *Image) Write(f io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt(&sb, "NAXIS", len(fits.Naxisn), "[1] Number of axis")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt(&sb, fmt.Sprintf("NAXIS%d", i+1), int(fits.Naxisn[i]), "[1] Axis size")
	}

	written := map[string]bool{}
	for _, k := range wcsKeyOrder {
		if fits.writeKey(&sb, k) {
			written[k] = true
		}
	}
	for _, k := range fits.Header.keys() {
		if written[k] || structuralKeys[k] || strings.HasPrefix(k, "NAXIS") || k == "EXPTIME" || k == "EXPOSURE" {
			continue
		}
		fits.writeKey(&sb, k)
	}
	if fits.Exposure != 0 {
		writeFloat(&sb, "EXPTIME", float64(fits.Exposure), "[s] Exposure time")
	}
	for _, h := range fits.Header.History {
		writeText(&sb, "HISTORY", h)
	}
	for _, c := range fits.Header.Comments {
		writeText(&sb, "COMMENT", c)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	// Write payload data, then pad the last data block with zeros
	if err := writeFloat32Array(f, fits.Data); err != nil {
		return err
	}
	if bytesInDataBlock := (4 * len(fits.Data)) % fitsBlockSize; bytesInDataBlock > 0 {
		_, err := f.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}

// Writes the value for the given key, if present. Returns true if a card was written
func (fits *Image) writeKey(w io.Writer, key string) bool {
	h := &fits.Header
	if v, ok := h.Bools[key]; ok {
		writeBool(w, key, v, "")
	} else if v, ok := h.Ints[key]; ok {
		writeInt(w, key, int(v), "")
	} else if v, ok := h.Floats[key]; ok {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false // not representable in a header card
		}
		writeFloat(w, key, v, "")
	} else if v, ok := h.Strings[key]; ok {
		writeString(w, key, v, "")
	} else if v, ok := h.Dates[key]; ok {
		writeString(w, key, v, "")
	} else {
		return false
	}
	return true
}

// Writes a card with the given key and value field, padded or truncated to one header line
func writeCard(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	line := fmt.Sprintf("%-8s= %20s", key, value)
	if comment != "" {
		line += " / " + comment
	}
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeCard(w, key, v, comment)
}

// Writes a FITS header integer value
func writeInt(w io.Writer, key string, value int, comment string) {
	writeCard(w, key, strconv.Itoa(value), comment)
}

// Writes a FITS header float value with full precision. Always carries a decimal point or exponent
func writeFloat(w io.Writer, key string, value float64, comment string) {
	v := strconv.FormatFloat(value, 'G', -1, 64)
	if !strings.ContainsAny(v, ".E") {
		v += ".0"
	}
	writeCard(w, key, v, comment)
}

// Writes a FITS header string value, with escaping. Values are truncated to fit one line
func writeString(w io.Writer, key, value, comment string) {
	// escape ' characters
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
		if strings.Count(value, "'")%2 == 1 { // do not split an escaped quote
			value = value[:67]
		}
	}
	if len(value) < 8 {
		value += strings.Repeat(" ", 8-len(value))
	}
	if len(key) > 8 {
		key = key[0:8]
	}
	line := fmt.Sprintf("%-8s= '%s'", key, value)
	if comment != "" && len(line)+3 < HeaderLineSize {
		line += " / " + comment
	}
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a HISTORY or COMMENT line
func writeText(w io.Writer, key, text string) {
	line := fmt.Sprintf("%-8s%s", key, text)
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "%-80s", "END")
}

// Writes FITS binary body data in network byte order
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			binary.BigEndian.PutUint32(buf[offset<<2:], math.Float32bits(data[block+offset]))
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}

// Returns the header as text, one card per line, in the order the writer emits them
func (h *Header) Text() string {
	img := NewImage()
	img.Header = *h
	sb := strings.Builder{}
	written := map[string]bool{}
	for _, k := range wcsKeyOrder {
		written[k] = img.writeKey(&sb, k)
	}
	keys := h.keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return strings.HasPrefix(keys[i], "NAXIS") && !strings.HasPrefix(keys[j], "NAXIS")
	})
	for _, k := range keys {
		if !written[k] {
			img.writeKey(&sb, k)
		}
	}
	writeEnd(&sb)

	lines := strings.Builder{}
	s := sb.String()
	for i := 0; i+HeaderLineSize <= len(s); i += HeaderLineSize {
		lines.WriteString(strings.TrimRight(s[i:i+HeaderLineSize], " "))
		lines.WriteByte('\n')
	}
	return lines.String()
}
