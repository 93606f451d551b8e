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
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	return NewImageFromFileHDU(fileName, id, 0, logWriter)
}

// Reads the image in the given header and data unit of a file. 0 is the primary HDU
func NewImageFromFileHDU(fileName string, id, hdu int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID, i.HDU = id, hdu
	return i, i.ReadFile(fileName, true, logWriter)
}

// Returns true if the file name denotes a plain text header, one card per line
func IsTextHeader(fileName string) bool {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".hdr", ".txt":
		return true
	}
	return false
}

// Reads the header from the given FITS file or text header file
func ReadHeaderFile(fileName string, logWriter io.Writer) (*Header, error) {
	return ReadHeaderFileHDU(fileName, 0, logWriter)
}

// Reads the header of the given HDU from a FITS file, or the header from a text header file
func ReadHeaderFileHDU(fileName string, hdu int, logWriter io.Writer) (*Header, error) {
	if IsTextHeader(fileName) {
		if hdu != 0 {
			return nil, fmt.Errorf("text header %s has no HDU %d", fileName, hdu)
		}
		f, err := os.Open(fileName)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		h := NewHeader()
		return &h, h.ReadText(f, -1, logWriter)
	}
	img := NewImage()
	img.ID, img.HDU = -1, hdu
	if err := img.ReadFile(fileName, false, logWriter); err != nil {
		return nil, err
	}
	return &img.Header, nil
}

// Parses a text header, one card per line
func ParseHeader(text string, logWriter io.Writer) (*Header, error) {
	h := NewHeader()
	return &h, h.ReadText(strings.NewReader(text), -1, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Reads 16-bit TIFF if .tif or .tiff suffix is present. Reads metadata only (fast) if readData is false.
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)

	fits.FileName = fileName
	ext := path.Ext(fileName)
	lExt := strings.ToLower(ext)

	if lExt == ".tif" || lExt == ".tiff" {
		if fits.HDU != 0 {
			return fmt.Errorf("%d: TIFF file %s has no HDU %d", fits.ID, fileName, fits.HDU)
		}
		return fits.ReadTIFF(r)
	} else if lExt == ".gz" || lExt == ".gzip" {
		// Decompress gzip if .gz or .gzip suffix is present
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%d: %w", fits.ID, err)
		}
		defer gz.Close()
		r = gz
	}

	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return float32(val), nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

// Reads the header and data unit selected by fits.HDU. Units ahead of it are skipped.
// HDU 0 is the primary, higher numbers must be IMAGE extensions
func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	if fits.HDU < 0 {
		return fmt.Errorf("%d: invalid HDU %d", fits.ID, fits.HDU)
	}
	for i := 0; i < fits.HDU; i++ {
		if err = skipHDU(f, fits.ID); err != nil {
			return fmt.Errorf("%d: skipping HDU %d: %w", fits.ID, i, err)
		}
	}
	err = fits.Header.read(f, fits.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if fits.HDU == 0 {
		if !fits.Header.Bools["SIMPLE"] {
			return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
		}
		delete(fits.Header.Bools, "SIMPLE")
	} else {
		if xt := fits.Header.Strings["XTENSION"]; xt != "IMAGE" {
			return fmt.Errorf("%d: HDU %d is not an image extension; XTENSION='%s'", fits.ID, fits.HDU, xt)
		}
		delete(fits.Header.Strings, "XTENSION")
		delete(fits.Header.Ints, "PCOUNT")
		delete(fits.Header.Ints, "GCOUNT")
	}

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 0 || naxis > 999 {
		return fmt.Errorf("%d: invalid NAXIS %d", fits.ID, naxis)
	}
	fits.Naxisn = make([]int32, naxis)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		fits.Naxisn[i-1] = nai
	}
	if fits.Pixels, err = PixelCount(fits.Naxisn); err != nil {
		return fmt.Errorf("%d: %w", fits.ID, err)
	}

	// check key optional fields relevant for image processing
	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPOSURE"); err != nil {
		if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPTIME"); err != nil {
			fits.Exposure = 0
		}
	}

	// restore axis dimensions, so the header alone describes the image shape to coordinate systems
	for i, n := range fits.Naxisn {
		fits.Header.Ints[fmt.Sprintf("NAXIS%d", i+1)] = n
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

// Returns the number of bytes per value and a big-endian decoder for the given BITPIX
func decoderFor(bitpix int32) (bytesPerValue int, decode func(b []byte) float64, err error) {
	switch bitpix {
	case 8:
		return 1, func(b []byte) float64 { return float64(b[0]) }, nil
	case 16:
		return 2, func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }, nil
	case 32:
		return 4, func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }, nil
	case 64:
		return 8, func(b []byte) float64 { return float64(int64(binary.BigEndian.Uint64(b))) }, nil
	case -32:
		return 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }, nil
	case -64:
		return 8, func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }, nil
	}
	return 0, nil, fmt.Errorf("unknown BITPIX value %d", bitpix)
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Read image data from file, convert to float32 data type, apply BZERO and BSCALE and reset them afterwards.
// Integer values equal to BLANK become NaN.
func (fits *Image) readData(r io.Reader, logWriter io.Writer) (err error) {
	bytesPerValue, decode, err := decoderFor(fits.Bitpix)
	if err != nil {
		return fmt.Errorf("%d: %w", fits.ID, err)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.ID, fits.Bitpix)
	}
	blank, hasBlank := fits.Header.Ints["BLANK"]
	hasBlank = hasBlank && fits.Bitpix > 0
	delete(fits.Header.Ints, "BLANK")

	fits.Data = make([]float32, fits.Pixels)
	buf := make([]byte, bufLen-bufLen%bytesPerValue)
	bscale, bzero := float64(fits.Bscale), float64(fits.Bzero)

	for dataIndex := 0; dataIndex < len(fits.Data); {
		bytesToRead := (len(fits.Data) - dataIndex) * bytesPerValue
		if bytesToRead > len(buf) {
			bytesToRead = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:bytesToRead]); err != nil {
			return fmt.Errorf("%d: %w", fits.ID, err)
		}
		for i := 0; i < bytesToRead; i += bytesPerValue {
			val := decode(buf[i : i+bytesPerValue])
			if hasBlank && val == float64(blank) {
				fits.Data[dataIndex] = float32(math.NaN())
			} else {
				fits.Data[dataIndex] = float32(val*bscale + bzero)
			}
			dataIndex++
		}
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	return nil
}

// Skips one header and data unit, including the padding of the data to full blocks
func skipHDU(r io.Reader, id int) error {
	h := NewHeader()
	if err := h.read(r, id, io.Discard); err != nil {
		return err
	}
	size, err := h.dataSize()
	if err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, r, size); err != nil {
		return err
	}
	return nil
}

// Returns the size of the data unit described by the header in bytes, padded to full blocks
func (h *Header) dataSize() (int64, error) {
	bitpix, ok := h.Ints["BITPIX"]
	if !ok {
		return 0, errors.New("BITPIX missing in header")
	}
	naxis := h.Ints["NAXIS"]
	if naxis <= 0 {
		return 0, nil
	}
	elements := int64(1)
	for i := int32(1); i <= naxis; i++ {
		n := h.Ints["NAXIS"+strconv.FormatInt(int64(i), 10)]
		if n < 0 {
			return 0, fmt.Errorf("negative NAXIS%d", i)
		}
		elements *= int64(n)
	}
	pcount, gcount := int64(0), int64(1)
	if v, ok := h.Ints["PCOUNT"]; ok {
		pcount = int64(v)
	}
	if v, ok := h.Ints["GCOUNT"]; ok {
		gcount = int64(v)
	}
	if bitpix < 0 {
		bitpix = -bitpix
	}
	size := int64(bitpix) / 8 * gcount * (pcount + elements)
	if rest := size % int64(fitsBlockSize); rest != 0 {
		size += int64(fitsBlockSize) - rest
	}
	return size, nil
}

// Reads the header from a FITS file, in blocks of 80-character lines
func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("%d: %w", id, err)
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			h.parseLine(line, id, lineNo, logWriter)
		}
	}
	return nil
}

// Reads a header from plain text, one card per line. Lines need not be padded to 80 characters
func (h *Header) ReadText(r io.Reader, id int, logWriter io.Writer) error {
	scanner := bufio.NewScanner(r)
	for lineNo := 0; scanner.Scan() && !h.End; lineNo++ {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		h.parseLine([]byte(line), id, lineNo, logWriter)
		h.Length += int32(HeaderLineSize)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%d: %w", id, err)
	}
	return nil
}

func (h *Header) parseLine(line []byte, id, lineNo int, logWriter io.Writer) {
	subValues := reParser.FindSubmatch(line)
	if subValues == nil {
		fmt.Fprintf(logWriter, "%d:%d: Warning: Cannot parse '%s', ignoring\n", id, lineNo, strings.TrimSpace(string(line)))
		return
	}
	h.readLine(reParser.SubexpNames(), subValues, id, lineNo, logWriter)
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, strings.TrimRight(string(subValues[i]), " "))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
			case byte('k'): // key
				key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil && val >= math.MinInt32 && val <= math.MaxInt32 {
					h.Ints[key] = int32(val)
				} else if err == nil {
					h.Floats[key] = float64(val)
				}
			case byte('f'): // float, possibly with Fortran D exponent
				s := strings.Map(func(r rune) rune {
					if r == 'D' || r == 'd' {
						return 'E'
					}
					return r
				}, string(subValues[i]))
				val, err := strconv.ParseFloat(s, 64)
				if err == nil {
					h.Floats[key] = val
				} else {
					fmt.Fprintf(logWriter, "%d:%d: Warning: Cannot parse float '%s' for %s\n", id, lineNo, string(subValues[i]), key)
				}
			case byte('s'): // string, with '' escaping a quote and trailing blanks insignificant
				h.Strings[key] = strings.TrimRight(strings.ReplaceAll(string(subValues[i]), "''", "'"), " ")
			case byte('d'): // date
				h.Dates[key] = string(subValues[i])
			case byte('c'), byte('u'): // value comment, key with undefined value
				// ignore
			default:
				fmt.Fprintf(logWriter, "%d:%d: Warning: Unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + "(?:" + white + "(?P<H>" + rest + "))?"

	commKey := "COMMENT"
	commLine := commKey + "(?:" + white + "(?P<C>" + rest + "))?"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?(?:[0-9]+\\.[0-9]*|\\.[0-9]+|[0-9]+)(?:[EeDd][-+]?[0-9]+)?)"
	stri := "'(?P<s>(?:[^']|'')*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)" // FIXME: other variants possible, see ISO8601
	val := "(?:" + boo + "|" + date + "|" + inte + "|" + floa + "|" + stri + ")"

	// missing: CONTINUE for strings
	// missing: complex int: (nr, nr)
	// missing: complex float: (nr, nr)

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt
	noValueLine := "(?P<u>[A-Z0-9_-]+)" + whiteOpt + equals + whiteOpt + "(?:/.*)?" // undefined value

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + noValueLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
