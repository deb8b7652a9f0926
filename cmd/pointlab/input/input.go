// Package input reads point files for the command line tools. JSON files
// hold an array of [x, y] pairs; CSV files hold two numeric columns with an
// optional header row.
package input

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pointlab/pointlab/internal/cluster"
)

// Format is a point file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrNoPoints is returned for files that contain no points.
var ErrNoPoints = errors.New("no points in input")

// FormatFor picks a format from the file extension. Anything that is not
// .csv is treated as JSON.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

// ReadFile reads points from path, or from stdin when path is "-".
func ReadFile(path string) ([]cluster.Point, error) {
	if path == "-" {
		return Read(os.Stdin, FormatJSON)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, FormatFor(path))
}

// Read decodes points in the given format.
func Read(r io.Reader, format Format) ([]cluster.Point, error) {
	var (
		points []cluster.Point
		err    error
	)
	switch format {
	case FormatCSV:
		points, err = readCSV(r)
	case FormatJSON:
		points, err = readJSON(r)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	return points, nil
}

func readJSON(r io.Reader) ([]cluster.Point, error) {
	var raw [][]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON points: %w", err)
	}
	points := make([]cluster.Point, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("point %d: expected 2 coordinates, got %d", i, len(p))
		}
		points[i] = cluster.Point{X: p[0], Y: p[1]}
	}
	return points, nil
}

func readCSV(r io.Reader) ([]cluster.Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var points []cluster.Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		x, errX := strconv.ParseFloat(rec[0], 64)
		y, errY := strconv.ParseFloat(rec[1], 64)
		if errX != nil || errY != nil {
			if line == 1 {
				// header
				continue
			}
			return nil, fmt.Errorf("line %d: non-numeric coordinates %q", line, rec)
		}
		points = append(points, cluster.Point{X: x, Y: y})
	}
	return points, nil
}
