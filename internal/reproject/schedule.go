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
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// A contiguous band of output rows [From, To)
type Band struct {
	From int
	To   int
}

// Splits the given number of rows into n contiguous, ascending, non-overlapping bands
// which together cover every row exactly once. Band sizes differ by at most one.
// n is clamped to [1, height]. Returns no bands for height 0.
func Bands(height, n int) []Band {
	if height <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > height {
		n = height
	}
	bands := make([]Band, n)
	size, rest := height/n, height%n
	from := 0
	for i := range bands {
		to := from + size
		if i < rest {
			to++
		}
		bands[i] = Band{From: from, To: to}
		from = to
	}
	return bands
}

// Number of bands to use for an output of the given height
func (o Options) bandCount(height int) int {
	if !o.Parallel {
		return 1
	}
	if o.Bands > 0 {
		return o.Bands
	}
	return runtime.GOMAXPROCS(0)
}

// Reprojects the input image from its coordinate system onto an output grid of the given shape
// in the output coordinate system. Coordinate systems are validated before anything is allocated.
//
// Output rows are split into bands which are computed independently, in parallel if requested.
// Each output pixel depends only on its own position, so results are identical for any number
// of bands. A failing band cancels its siblings, and the call returns ErrSchedulerFailure without
// a partial result. Cancellation of ctx aborts the computation with the context's error.
func Reproject(ctx context.Context, in Image, from, to Transform, width, height int, opts Options) (*Result, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: missing coordinate transform", ErrSchedulerFailure)
	}
	if !from.HasCelestial() {
		return nil, fmt.Errorf("input: %w", ErrUnsupportedCoordinateSystem)
	}
	if !to.HasCelestial() {
		return nil, fmt.Errorf("output: %w", ErrUnsupportedCoordinateSystem)
	}
	if err := validate(in, width, height, opts); err != nil {
		return nil, err
	}

	res := &Result{
		Data:      make([]float32, width*height),
		Footprint: make([]float32, width*height),
		Width:     width,
		Height:    height,
	}
	mapper := NewMapper(from, to)
	bands := Bands(height, opts.bandCount(height))

	if len(bands) == 1 {
		if err := runBand(ctx, in, mapper, opts.Order, res, bands[0]); err != nil {
			return nil, err
		}
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, b := range bands {
		b := b
		g.Go(func() error {
			return runBand(gctx, in, mapper, opts.Order, res, b)
		})
	}
	if err := g.Wait(); err != nil {
		// report the caller's cancellation rather than the derived one
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return res, nil
}

// Computes one band of output rows into its slice of the result. Panics are converted into ErrSchedulerFailure
func runBand(ctx context.Context, in Image, m *Mapper, order Order, res *Result, b Band) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: rows %d..%d: %v", ErrSchedulerFailure, b.From, b.To-1, r)
		}
	}()
	lo, hi := b.From*res.Width, b.To*res.Width
	return resampleRows(ctx, in, m, order, res.Width, b.From, b.To, res.Data[lo:hi], res.Footprint[lo:hi])
}

// Checks shapes and options for consistency
func validate(in Image, width, height int, opts Options) error {
	if !opts.Order.Valid() {
		return fmt.Errorf("%w: interpolation order %d", ErrInvalidArgument, int(opts.Order))
	}
	if opts.Bands < 0 {
		return fmt.Errorf("%w: negative band count %d", ErrInvalidArgument, opts.Bands)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: output shape %dx%d", ErrInvalidArgument, width, height)
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("%w: input shape %dx%d", ErrInvalidArgument, in.Width, in.Height)
	}
	if len(in.Data) != in.Width*in.Height {
		return fmt.Errorf("%w: input has %d samples, want %dx%d=%d", ErrInvalidArgument, len(in.Data), in.Width, in.Height, in.Width*in.Height)
	}
	return nil
}
