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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime/pprof"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/cpuid"

	nl "github.com/mlnoga/reproject/internal"
	"github.com/mlnoga/reproject/internal/fits"
	"github.com/mlnoga/reproject/internal/ops"
	opsreproject "github.com/mlnoga/reproject/internal/ops/reproject"
	engine "github.com/mlnoga/reproject/internal/reproject"
	"github.com/mlnoga/reproject/internal/rest"
	"github.com/mlnoga/reproject/internal/watch"
	"github.com/mlnoga/reproject/internal/wcs"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var target = flag.String("target", "", "reproject onto the coordinate system of the given FITS or text header `file`")
var width = flag.Int("width", 0, "output width in pixels, 0=NAXIS1 of the target header")
var height = flag.Int("height", 0, "output height in pixels, 0=NAXIS2 of the target header")
var order = flag.String("order", "bilinear", "interpolation order, one of nearest-neighbor, bilinear, biquadratic, bicubic or 0..3")
var parallel = flag.Bool("parallel", true, "reproject row bands of each image in parallel")
var bands = flag.Int("bands", 0, "number of row bands per image, 0=auto")
var hdu = flag.Int("hdu", 0, "read input images from the given header and data unit, 0=primary, n=nth image extension")
var targetHDU = flag.Int("targetHDU", 0, "read the target header from the given header and data unit of a FITS file")
var threads = flag.Int("threads", 0, "number of images processed concurrently, 0=GOMAXPROCS")

var out = flag.String("out", "out%04d.fits", "save reprojected images with given filename pattern")
var footprint = flag.String("footprint", "", "save footprints with given filename pattern, e.g. `fp%04d.fits`")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG with given filename pattern. `%auto` replaces suffix of output pattern with .jpg")
var tif = flag.String("tif", "", "save 16bit preview of output as TIFF with given filename pattern, e.g. `prev%04d.tif`")
var oobColor = flag.String("oobColor", "", "hex color of uncovered pixels in previews, e.g. `#ff0000`, empty=black")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output pattern with .log")

var addr = flag.String("addr", ":8080", "listen address for serve")
var chroot = flag.String("chroot", "", "chroot into the given directory before serving")
var setuid = flag.Int("setuid", -1, "switch to the given user ID before serving, -1=no change")
var settle = flag.Duration("settle", 2*time.Second, "for watch, wait until a new file has not changed for this long")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Reproject Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (reproject|header|run|serve|watch|legal|version) (args...)

Commands:
  reproject Reproject input images onto the -target header
  header    Show coordinate system of FITS files or text headers
  run       Run a JSON job description
  serve     Serve the web interface and REST API
  watch     Reproject FITS files arriving in the given directory onto the -target header
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	*log = logName(*log, *out)
	if *log != "" && (args[0] == "reproject" || args[0] == "watch" || args[0] == "run") {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}
	*jpg = autoName(*jpg, *out, ".jpg")

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := ops.NewContext(ctx, logWriter)
	if *threads > 0 {
		c.MaxThreads = *threads
	}

	var err error
	switch args[0] {
	case "reproject":
		printCPU(logWriter, c)
		err = cmdReproject(args[1:], c)

	case "header":
		err = cmdHeader(args[1:], *hdu, logWriter)

	case "run":
		printCPU(logWriter, c)
		err = cmdRun(args[1:], c)

	case "serve":
		printCPU(logWriter, c)
		err = rest.Serve(*addr, *chroot, *setuid)

	case "watch":
		printCPU(logWriter, c)
		err = cmdWatch(args[1:], c)

	case "legal":
		fmt.Fprint(logWriter, legal)
		return

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		printCPU(logWriter, c)
		return

	case "help", "?":
		flag.Usage()
		return

	default:
		nl.LogPrintf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	nl.LogPrintf("\nDone after %v\n", elapsed)

	if err != nil {
		nl.LogPrintf("Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Replaces %auto with the given output pattern and suffix
func autoName(name, outPattern, suffix string) string {
	if name != "%auto" {
		return name
	}
	if outPattern == "" {
		return ""
	}
	return strings.TrimSuffix(outPattern, filepath.Ext(outPattern)) + suffix
}

var reVerb = regexp.MustCompile(`%[-+# 0-9]*d`)

// Replaces %auto with a single log file named after the output pattern, without its %d verb
func logName(name, outPattern string) string {
	return autoName(name, reVerb.ReplaceAllString(outPattern, ""), ".log")
}

// Turns a filename pattern with a %d verb into a glob on base names
func patternToGlob(pattern string) string {
	return reVerb.ReplaceAllString(filepath.Base(pattern), "*")
}

func printCPU(logWriter io.Writer, c *ops.Context) {
	fmt.Fprintf(logWriter, "Running on %s with %d physical cores, %d logical cores, %d MiB memory, %d threads\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, c.MemoryMB, c.MaxThreads)
}

// Builds the reprojection operator and output savers from the command line flags
func newOpsFromFlags() (*opsreproject.OpReproject, []ops.Operator, error) {
	if *target == "" {
		return nil, nil, fmt.Errorf("%w: missing -target header", engine.ErrInvalidArgument)
	}
	o, err := engine.ParseOrder(*order)
	if err != nil {
		return nil, nil, err
	}
	if _, err := fits.ParseUncoveredColor(*oobColor); err != nil {
		return nil, nil, fmt.Errorf("-oobColor: %w", err)
	}
	opReproject := opsreproject.NewOpReproject(*target, *width, *height, o, *parallel, *footprint)
	opReproject.Bands, opReproject.TargetHDU = *bands, *targetHDU

	var saves []ops.Operator
	for _, pattern := range []string{*out, *jpg, *tif} {
		if pattern == "" {
			continue
		}
		save := ops.NewOpSave(pattern)
		save.UncoveredColor = *oobColor
		saves = append(saves, save)
	}
	return opReproject, saves, nil
}

// Reprojects the given input files onto the target
func cmdReproject(args []string, c *ops.Context) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no input files", engine.ErrInvalidArgument)
	}
	opReproject, saves, err := newOpsFromFlags()
	if err != nil {
		return err
	}
	opLoadMany := ops.NewOpLoadMany(args)
	opLoadMany.HDU = *hdu
	seq := ops.NewOpSequence(opLoadMany, opReproject)
	seq.Append(saves...)

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "\nReprojecting with these settings:\n%s\n", string(m))
	return ops.Run(seq, c)
}

// Prints the coordinate systems of the given files
func cmdHeader(args []string, hdu int, logWriter io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no header files", engine.ErrInvalidArgument)
	}
	for _, fileName := range args {
		h, err := fits.ReadHeaderFileHDU(fileName, hdu, logWriter)
		if err != nil {
			return err
		}
		w, err := wcs.New(h)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}
		fmt.Fprintf(logWriter, "%s: %s\n", fileName, w.String())
		m, err := json.MarshalIndent(w.Summarize(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "%s\n", string(m))
	}
	return nil
}

// Runs a JSON job description
func cmdRun(args []string, c *ops.Context) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: need exactly one job file", engine.ErrInvalidArgument)
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(c.Log, "Running job %s with operator '%s'\n", args[0], op.GetType())
	return ops.Run(op, c)
}

// Reprojects FITS files arriving in the given directory until interrupted
func cmdWatch(args []string, c *ops.Context) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: need exactly one directory to watch", engine.ErrInvalidArgument)
	}
	opReproject, saves, err := newOpsFromFlags()
	if err != nil {
		return err
	}
	exclude := []string{}
	for _, pattern := range []string{*out, *footprint} {
		if pattern != "" {
			exclude = append(exclude, patternToGlob(pattern))
		}
	}

	var id int64
	w, err := watch.New(args[0], *settle, exclude, c.Log, func(fileName string) error {
		opLoad := ops.NewOpLoad(int(atomic.AddInt64(&id, 1)), fileName)
		opLoad.HDU = *hdu
		seq := ops.NewOpSequence(opLoad, opReproject)
		seq.Append(saves...)
		return ops.Run(seq, c)
	})
	if err != nil {
		return err
	}
	return w.Run(c.Ctx)
}
