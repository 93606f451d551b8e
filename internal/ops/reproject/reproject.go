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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mlnoga/reproject/internal/fits"
	"github.com/mlnoga/reproject/internal/ops"
	engine "github.com/mlnoga/reproject/internal/reproject"
	"github.com/mlnoga/reproject/internal/wcs"
)

// Reprojects each input image onto the pixel grid of a target header.
// Takes n inputs, produces n outputs
type OpReproject struct {
	ops.OpUnaryBase
	Target       string       `json:"target"`       // file holding the target header, FITS or text
	TargetHeader string       `json:"targetHeader"` // inline text header, takes precedence over Target
	TargetHDU    int          `json:"targetHDU"`    // header and data unit of Target to read, 0=primary
	Width        int          `json:"width"`        // output width, 0=NAXIS1 of the target
	Height       int          `json:"height"`       // output height, 0=NAXIS2 of the target
	Order        engine.Order `json:"order"`
	Parallel     bool         `json:"parallel"`
	Bands        int          `json:"bands"`
	Footprint    string       `json:"footprint"` // save footprints with given filename pattern, empty=do not save

	mutex  sync.Mutex
	header *fits.Header
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpReprojectDefault() }) } // register the operator for JSON decoding

func NewOpReprojectDefault() *OpReproject {
	return NewOpReproject("", 0, 0, engine.Bilinear, true, "")
}

func NewOpReproject(target string, width, height int, order engine.Order, parallel bool, footprint string) *OpReproject {
	op := OpReproject{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "reproject", Active: true}},
		Target:      target,
		Width:       width,
		Height:      height,
		Order:       order,
		Parallel:    parallel,
		Footprint:   footprint,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshals the operator and reassigns the class method, which JSON decoding does not carry
func (op *OpReproject) UnmarshalJSON(b []byte) error {
	type alias OpReproject
	if op.Type == "" {
		op.Type, op.Active, op.Order, op.Parallel = "reproject", true, engine.Bilinear, true
	}
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the target header, loading it on first use
func (op *OpReproject) TargetHeaderOf(c *ops.Context) (*fits.Header, error) {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.header != nil {
		return op.header, nil
	}

	var h *fits.Header
	var err error
	if op.TargetHeader != "" {
		h, err = fits.ParseHeader(op.TargetHeader, c.Log)
	} else if op.Target != "" {
		if c.Sandboxed && !ops.IsPathAllowed(op.Target) {
			return nil, errors.New("target header outside current directory tree, aborting")
		}
		h, err = fits.ReadHeaderFileHDU(op.Target, op.TargetHDU, c.Log)
	} else {
		return nil, fmt.Errorf("%s operator without target header", op.Type)
	}
	if err != nil {
		return nil, err
	}
	op.header = h
	return h, nil
}

// Determines the output shape and checks it against the memory budget of the context
func (op *OpReproject) shape(target *fits.Header, c *ops.Context) (width, height int, err error) {
	w, err := wcs.New(target)
	if err != nil {
		return 0, 0, fmt.Errorf("target: %w", err)
	}
	if !w.HasCelestial() {
		return 0, 0, fmt.Errorf("target: %w", engine.ErrUnsupportedCoordinateSystem)
	}
	if width, height, err = fits.OutputShape(w, op.Width, op.Height); err != nil {
		return 0, 0, err
	}
	need := engine.OutputBytes(width, height)
	if budget := int64(c.MemoryMB) * 1024 * 1024 * 7 / 10; c.MemoryMB > 0 && need > budget {
		return 0, 0, fmt.Errorf("%w: %dx%d output needs %d MiB, budget is %d MiB",
			engine.ErrInvalidArgument, width, height, need>>20, budget>>20)
	}
	return width, height, nil
}

func (op *OpReproject) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	target, err := op.TargetHeaderOf(c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	width, height, err := op.shape(target, c)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	opts := engine.Options{Order: op.Order, Parallel: op.Parallel, Bands: op.Bands}
	start := time.Now()
	res, footprint, err := f.Reproject(ctx, target, width, height, opts)
	if err != nil {
		return nil, err
	}
	s := footprint.CalcStats()
	fmt.Fprintf(c.Log, "%d: Reprojected %s to %dx%d pixels with %v interpolation, %.1f%% covered, in %v\n",
		f.ID, f.DimensionsToString(), width, height, op.Order, 100*s.Mean, time.Since(start).Round(time.Millisecond))

	if op.Footprint != "" {
		if _, err := ops.NewOpSave(op.Footprint).Apply(footprint, c); err != nil {
			return nil, err
		}
	}
	res.CalcStats()
	return res, nil
}
