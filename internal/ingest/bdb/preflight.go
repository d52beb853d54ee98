package bdb

import (
	"errors"
	"fmt"
	"path/filepath"
)

var dimensionFiles = []struct {
	name string
	cols []column
}{
	{GamesFile, gameColumns},
	{PlayersFile, playerColumns},
	{PlaysFile, playColumns},
}

// CheckDimensions reports ErrDimensionLoad when a reference file is absent
// from dir. It reads nothing.
func CheckDimensions(dir string) error {
	for _, d := range dimensionFiles {
		if path, ok := resolveSource(dir, d.name); !ok {
			return dimensionErr(path, errors.New("file not found"))
		}
	}
	return nil
}

// PreflightResult lists the sources a run would read.
type PreflightResult struct {
	Dimensions []string `json:"dimensions"`
	Tracking   []string `json:"tracking"`
	Missing    []string `json:"missing"`
}

// Preflight opens every reference file and every present tracking week up
// to weeks and checks their headers, without reading data rows.
func Preflight(dir string, weeks int) (PreflightResult, error) {
	var res PreflightResult

	for _, d := range dimensionFiles {
		path, ok := resolveSource(dir, d.name)
		if !ok {
			return res, dimensionErr(path, errors.New("file not found"))
		}
		src, err := openCSV(path, d.cols)
		if err != nil {
			return res, dimensionErr(path, err)
		}
		_ = src.Close()
		res.Dimensions = append(res.Dimensions, filepath.Base(path))
	}

	for week := 1; week <= weeks; week++ {
		name := TrackingFile(week)
		path, ok := resolveSource(dir, name)
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		src, err := openCSV(path, trackingColumns)
		if err != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrMalformedSource, path, err)
		}
		_ = src.Close()
		res.Tracking = append(res.Tracking, filepath.Base(path))
	}
	return res, nil
}
