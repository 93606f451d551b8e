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

// Package stats calculates NaN-aware statistics of image data, where NaN marks uncovered pixels.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Maximum number of values the median is calculated from. Larger inputs are subsampled
const MedianSamples = 128 * 1024

// Number of histogram bins for mode estimation
const histogramBins = 256

// Basic statistics on the covered pixels of an image
type Stats struct {
	Pixels  int     // Total number of pixels
	Covered int     // Number of pixels which are not NaN
	Min     float32 // Minimum
	Max     float32 // Maximum
	Mean    float32 // Mean (average)
	StdDev  float32 // Standard deviation (norm 2, sigma)
	Median  float32 // Median, approximated by random subsampling for large images
	Mode    float32 // Histogram peak, fitted with a normal distribution
}

// Calculates statistics for the given data. NaN values are excluded. All fields are NaN if no value is covered
func NewStats(data []float32) *Stats {
	s := &Stats{Pixels: len(data)}
	values := make([]float64, 0, len(data))
	for _, d := range data {
		if !math.IsNaN(float64(d)) {
			values = append(values, float64(d))
		}
	}
	s.Covered = len(values)
	if s.Covered == 0 {
		nan := float32(math.NaN())
		s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Mode = nan, nan, nan, nan, nan, nan
		return s
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	s.Min, s.Max = float32(min), float32(max)

	if s.Covered > 1 {
		mean, stdDev := stat.MeanStdDev(values, nil)
		s.Mean, s.StdDev = float32(mean), float32(stdDev)
	} else {
		s.Mean = float32(values[0])
	}

	s.Median = float32(approxMedian(values))
	s.Mode = float32(mode(values, min, max))
	return s
}

// Returns the fraction of covered pixels
func (s *Stats) Coverage() float32 {
	if s.Pixels == 0 {
		return 0
	}
	return float32(s.Covered) / float32(s.Pixels)
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Covered %d/%d (%.1f%%) Min %.6g Max %.6g Mean %.6g StdDev %.6g Median %.6g Mode %.6g",
		s.Covered, s.Pixels, s.Coverage()*100, s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Mode)
}

// Calculates the median of the values. For more than MedianSamples values, calculates
// the median of a random subsample instead. Does not modify values
func approxMedian(values []float64) float64 {
	var samples []float64
	if len(values) <= MedianSamples {
		samples = append([]float64(nil), values...)
	} else {
		samples = make([]float64, MedianSamples)
		rng := fastrand.RNG{}
		n := uint32(len(values))
		for i := range samples {
			samples[i] = values[rng.Uint32n(n)]
		}
	}
	sort.Float64s(samples)
	return stat.Quantile(0.5, stat.Empirical, samples, nil)
}

// Estimates the mode from a histogram of the values. Falls back to the histogram peak if the fit fails
func mode(values []float64, min, max float64) float64 {
	if max <= min {
		return min
	}
	bins := make([]int32, histogramBins)
	Histogram(values, min, max, bins)
	m, _, err := GetModeStdDevFromHistogram(bins, min, max)
	if err != nil || math.IsNaN(m) || m < min || m > max {
		m, _ = GetPeak(bins, min, max)
	}
	return m
}
