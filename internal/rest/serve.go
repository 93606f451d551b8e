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

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/reproject/internal/fits"
	"github.com/mlnoga/reproject/internal/ops"
	opsreproject "github.com/mlnoga/reproject/internal/ops/reproject"
	"github.com/mlnoga/reproject/internal/wcs"
	"github.com/mlnoga/reproject/web"
)

// Starts the HTTP server on the given address, after optionally sandboxing the process
func Serve(addr, chroot string, setuid int) error {
	if err := MakeSandbox(chroot, setuid); err != nil {
		return err
	}
	return NewRouter().Run(addr)
}

// Returns the router with all API routes
func NewRouter() *gin.Engine {
	r := gin.Default()
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/header", postHeader)
			v1.POST("/reproject", postReproject)
		}
	}
	return r
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes concurrent log writes from operators onto the response, flushing after each write
type streamWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (s *streamWriter) Write(p []byte) (n int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n, err = s.w.Write(p)
	s.w.Flush()
	return n, err
}

type postHeaderArgs struct {
	Header string `json:"header"`
}

// Parses a text header and returns a summary of its world coordinate system
func postHeader(c *gin.Context) {
	var args postHeaderArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h, err := fits.ParseHeader(args.Header, io.Discard)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := wcs.New(h)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, w.Summarize())
}

type postReprojectArgs struct {
	FilePatterns []string                  `json:"filePatterns"`
	HDU          int                       `json:"hdu"`
	Reproject    *opsreproject.OpReproject `json:"reproject"`
	Save         string                    `json:"save"`
	Footprint    string                    `json:"footprint"`
}

// Reprojects files matching the patterns onto the target and saves them. Streams the log as plain text
func postReproject(c *gin.Context) {
	var args postReprojectArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := args.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Footprint != "" {
		args.Reproject.Footprint = args.Footprint
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := &streamWriter{w: c.Writer}

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	oc := ops.NewContext(c.Request.Context(), logWriter)
	oc.Sandboxed = true
	opLoadMany := ops.NewOpLoadMany(args.FilePatterns)
	opLoadMany.HDU = args.HDU
	seq := ops.NewOpSequence(
		opLoadMany,
		args.Reproject,
		ops.NewOpSave(args.Save),
	)
	if err := ops.Run(seq, oc); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "Done.\n")
}

func (args *postReprojectArgs) validate() error {
	if len(args.FilePatterns) == 0 {
		return errors.New("no file patterns given")
	}
	if args.HDU < 0 {
		return fmt.Errorf("invalid HDU %d", args.HDU)
	}
	if args.Reproject == nil {
		return errors.New("no reprojection settings given")
	}
	if args.Reproject.Target == "" && args.Reproject.TargetHeader == "" {
		return errors.New("no target header given")
	}
	if !args.Reproject.Order.Valid() {
		return fmt.Errorf("invalid interpolation order %d", int(args.Reproject.Order))
	}
	return nil
}
