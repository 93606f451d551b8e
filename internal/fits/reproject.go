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
	"context"
	"fmt"

	"github.com/mlnoga/reproject/internal/reproject"
	"github.com/mlnoga/reproject/internal/wcs"
)

// Returns the world coordinate system described by the image header
func (img *Image) WCS() (*wcs.WCS, error) {
	w, err := wcs.New(&img.Header)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", img.ID, err)
	}
	return w, nil
}

// Returns the output shape for a target header. Explicit width and height take precedence
// over the NAXIS1 and NAXIS2 keys of the target
func OutputShape(target *wcs.WCS, width, height int) (int, int, error) {
	tw, th := target.Shape()
	if width <= 0 {
		width = tw
	}
	if height <= 0 {
		height = th
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: output shape %dx%d; set width and height or NAXIS1 and NAXIS2 in the target header",
			reproject.ErrInvalidArgument, width, height)
	}
	if width > MaxPixels/height {
		return 0, 0, fmt.Errorf("%w: output shape %dx%d exceeds %d pixels", reproject.ErrInvalidArgument, width, height, MaxPixels)
	}
	return width, height, nil
}

// Reprojects a planar image onto the pixel grid described by the target header.
// Width and height of 0 are taken from the target header. Returns the reprojected image,
// which carries the world coordinate keys of the target, and its footprint.
func (img *Image) Reproject(ctx context.Context, target *Header, width, height int, opts reproject.Options) (res, footprint *Image, err error) {
	if !img.IsPlanar() {
		return nil, nil, fmt.Errorf("%d: %w: cannot reproject image with dimensions %s", img.ID, reproject.ErrInvalidArgument, img.DimensionsToString())
	}
	from, err := img.WCS()
	if err != nil {
		return nil, nil, err
	}
	to, err := wcs.New(target)
	if err != nil {
		return nil, nil, fmt.Errorf("%d: target: %w", img.ID, err)
	}
	if width, height, err = OutputShape(to, width, height); err != nil {
		return nil, nil, fmt.Errorf("%d: %w", img.ID, err)
	}

	r, err := reproject.Reproject(ctx, img.Raster(), from, to, width, height, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%d: %w", img.ID, err)
	}

	naxisn := []int32{int32(width), int32(height)}
	res = NewImageFromImage(img, naxisn, r.Data)
	res.Header.CopyWCS(target)
	res.Header.SetInt("NAXIS1", naxisn[0])
	res.Header.SetInt("NAXIS2", naxisn[1])
	res.Header.History = append(res.Header.History, fmt.Sprintf("Reprojected with %v interpolation", opts.Order))

	footprint = NewImageFromNaxisn(naxisn, r.Footprint)
	footprint.ID, footprint.FileName = img.ID, img.FileName
	footprint.Header.CopyWCS(target)
	footprint.Header.SetInt("NAXIS1", naxisn[0])
	footprint.Header.SetInt("NAXIS2", naxisn[1])
	return res, footprint, nil
}
