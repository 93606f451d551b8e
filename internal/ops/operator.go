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

package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mlnoga/reproject/internal/fits"
	"github.com/pbnjay/memory"
)

// An execution context for operators
type Context struct {
	Ctx        context.Context `json:"-"` // cancels running reprojections
	Log        io.Writer       `json:"-"`
	MemoryMB   int             `json:"memoryMB"` // memory.TotalMemory()/1024/1024
	MaxThreads int             `json:"maxThreads"`
	Sandboxed  bool            `json:"sandboxed"` // restricts file access to relative paths inside the working directory
}

func NewContext(ctx context.Context, log io.Writer) *Context {
	return &Context{
		Ctx:        ctx,
		Log:        log,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxThreads: runtime.GOMAXPROCS(0),
	}
}

// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*fits.Image, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %w", err.Error(), e)
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of fits.Images, editing the underlying array in place
func RemoveNils(images []*fits.Image) []*fits.Image {
	o := 0
	for i := 0; i < len(images); i++ {
		if images[i] != nil {
			images[o] = images[i]
			o++
		}
	}
	for i := o; i < len(images); i++ {
		images[i] = nil
	}
	return images[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Unmarshals a single polymorphic operator from JSON, based on its type tag
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *fits.Image, c *Context) (fOut *fits.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *fits.Image, c *Context) (fOut *fits.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("unary operator %s with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *fits.Image, err error) {
		if f, err = in(); err != nil { // materialize input promise
			return nil, err
		}
		return op.Apply(f, c) // apply unary operator
	}
}

// Load a single FITS image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
	HDU      int    `json:"hdu"` // header and data unit holding the image, 0=primary
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if c.Sandboxed && !IsPathAllowed(op.FileName) {
		return nil, errors.New("filename outside current directory tree, aborting")
	}

	out := func() (f *fits.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { // relative paths only
		return false
	}
	if strings.Contains(p, "..") { // no going outside the tree
		return false
	}
	return true
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	f, err = fits.NewImageFromFileHDU(op.FileName, op.ID, op.HDU, c.Log)
	if err != nil {
		return nil, err
	}
	s := f.CalcStats()

	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}

	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many FITS images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
	HDU          int      `json:"hdu"` // header and data unit holding the images, 0=primary
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.Sandboxed && !IsPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			opLoad.HDU = op.HDU
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern    string `json:"filePattern"`
	UncoveredColor string `json:"uncoveredColor"` // hex colour of uncovered pixels in JPEG and TIFF previews
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshals the operator and reassigns the class method, which JSON decoding does not carry.
// Active defaults to true
func (op *OpSave) UnmarshalJSON(b []byte) error {
	type alias OpSave
	op.Active = true
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the file name for the given image ID
func ExpandPattern(pattern string, id int) string {
	if strings.Contains(pattern, "%") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}

// Returns true if the file name has a FITS suffix, optionally gzipped
func IsFITSName(fileName string) bool {
	fnLower := strings.ToLower(fileName)
	fnLower = strings.TrimSuffix(strings.TrimSuffix(fnLower, ".gz"), ".gzip")
	return strings.HasSuffix(fnLower, ".fits") || strings.HasSuffix(fnLower, ".fit") || strings.HasSuffix(fnLower, ".fts")
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f.ID)
	if c.Sandboxed && !IsPathAllowed(fileName) {
		return nil, fmt.Errorf("%d: filename %s outside current directory tree", f.ID, fileName)
	}
	fnLower := strings.ToLower(fileName)

	uncovered, err := fits.ParseUncoveredColor(op.UncoveredColor)
	if err != nil {
		return nil, fmt.Errorf("%d: uncovered color: %w", f.ID, err)
	}

	if IsFITSName(fileName) {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteFile(fileName)
	} else if strings.HasSuffix(fnLower, ".jpeg") || strings.HasSuffix(fnLower, ".jpg") {
		if !f.IsPlanar() {
			return nil, fmt.Errorf("%d: unable to write %s pixel image as JPEG to %s", f.ID, f.DimensionsToString(), fileName)
		}
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono JPEG to %s ...\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteMonoJPGToFile(fileName, 0, 0, 1, 95, uncovered)
	} else if strings.HasSuffix(fnLower, ".tiff") || strings.HasSuffix(fnLower, ".tif") {
		if !f.IsPlanar() {
			return nil, fmt.Errorf("%d: unable to write %s pixel image as TIFF to %s", f.ID, f.DimensionsToString(), fileName)
		}
		fmt.Fprintf(c.Log, "%d: Writing %s pixel mono 16-bit TIFF to %s ...\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteMonoTIFF16ToFile(fileName, 0, 0, 1, uncovered)
	} else {
		err = errors.New("unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}

	op.Steps = nil
	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
	op.Active = len(op.Steps) > 0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ",\"active\":%v,\"steps\":", op.Active)
	if op.Steps == nil {
		buf.WriteString("[]")
	} else {
		if inner, err = json.Marshal(op.Steps); err != nil {
			return nil, err
		}
		buf.Write(inner)
	}
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	if ins, err = steps[0].MakePromises(ins, c); err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the operator, decoding the polymorphic operation from its type tag
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	var raw struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	op.OpBase = raw.OpBase
	op.Operation = nil
	if len(raw.Operation) == 0 || string(raw.Operation) == "null" {
		return nil
	}
	operation, err := UnmarshalOperator(raw.Operation)
	if err != nil {
		return err
	}
	op.Operation = operation
	return nil
}

// Applies the operation to each input separately
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}

// Builds the promises of the given operator without inputs and materializes them,
// limiting concurrency to c.MaxThreads. Images are not retained
func Run(op Operator, c *Context) error {
	promises, err := op.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = MaterializeAll(promises, c.MaxThreads, true)
	return err
}
