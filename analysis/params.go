// Package analysis drives one timed invocation of the external evelyze
// analysis routine.
//
// The routine's scientific behavior lives outside this module. The driver
// records wall-clock start and end, invokes an Analyzer with the parameter
// set, and reports the elapsed time as "Execution time: S.sss seconds".
package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Default input location and file names.
const (
	DefaultFolder           = "t/"
	DefaultLocalizationFile = "orig58_pf.hdf5"
	DefaultPhotonsFile      = "orig58_index.hdf5"
	DefaultDriftFile        = "orig58_drift.txt"
)

// Params is the full argument set passed to evelyze.
type Params struct {
	LocalizationsFile string    `json:"localizations_file" yaml:"localizations_file"`
	PhotonsFile       string    `json:"photons_file" yaml:"photons_file"`
	DriftFile         string    `json:"drift_file" yaml:"drift_file"`
	Offset            int       `json:"offset" yaml:"offset"`
	Diameter          float64   `json:"diameter" yaml:"diameter"`
	IntTime           int       `json:"int_time" yaml:"int_time"`
	Suffix            string    `json:"suffix" yaml:"suffix"`
	MaxDarkFrames     int       `json:"max_dark_frames" yaml:"max_dark_frames"`
	Proximity         int       `json:"proximity" yaml:"proximity"`
	FilterSingle      bool      `json:"filter_single" yaml:"filter_single"`
	NormBrightness    bool      `json:"norm_brightness" yaml:"norm_brightness"`
	DTWindow          []float64 `json:"dt_window" yaml:"dt_window,flow"`
	MoreMS            int       `json:"more_ms" yaml:"more_ms"`
}

// DefaultParams returns the reference parameter set for the orig58 data.
func DefaultParams() Params {
	return ParamsForFolder(DefaultFolder)
}

// ParamsForFolder returns the default parameters with the three input files
// resolved under folder.
func ParamsForFolder(folder string) Params {
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	return Params{
		LocalizationsFile: folder + DefaultLocalizationFile,
		PhotonsFile:       folder + DefaultPhotonsFile,
		DriftFile:         folder + DefaultDriftFile,
		Offset:            10,
		Diameter:          4.5,
		IntTime:           200,
		Suffix:            "",
		MaxDarkFrames:     1,
		Proximity:         2,
		FilterSingle:      true,
		NormBrightness:    true,
		DTWindow:          []float64{0, 2500},
		MoreMS:            0,
	}
}

// Validate reports the first structurally invalid parameter. It does not
// check that the input files exist; that is the analyzer's concern.
func (p Params) Validate() error {
	switch {
	case p.LocalizationsFile == "":
		return errors.New("localizations_file required")
	case p.PhotonsFile == "":
		return errors.New("photons_file required")
	case p.DriftFile == "":
		return errors.New("drift_file required")
	case p.Diameter <= 0:
		return fmt.Errorf("diameter must be positive, got %v", p.Diameter)
	case p.IntTime <= 0:
		return fmt.Errorf("int_time must be positive, got %d", p.IntTime)
	case p.MaxDarkFrames < 0:
		return fmt.Errorf("max_dark_frames must not be negative, got %d", p.MaxDarkFrames)
	case p.Proximity < 0:
		return fmt.Errorf("proximity must not be negative, got %d", p.Proximity)
	case p.MoreMS < 0:
		return fmt.Errorf("more_ms must not be negative, got %d", p.MoreMS)
	case len(p.DTWindow) != 2:
		return fmt.Errorf("dt_window needs 2 values, got %d", len(p.DTWindow))
	case p.DTWindow[0] > p.DTWindow[1]:
		return fmt.Errorf("dt_window start %v is after end %v", p.DTWindow[0], p.DTWindow[1])
	}
	return nil
}

// Args renders p as command line flags for the external program, in the
// order the parameters are declared.
func (p Params) Args() []string {
	window := make([]string, len(p.DTWindow))
	for i, v := range p.DTWindow {
		window[i] = formatFloat(v)
	}
	return []string{
		"--localizations-file=" + p.LocalizationsFile,
		"--photons-file=" + p.PhotonsFile,
		"--drift-file=" + p.DriftFile,
		"--offset=" + strconv.Itoa(p.Offset),
		"--diameter=" + formatFloat(p.Diameter),
		"--int-time=" + strconv.Itoa(p.IntTime),
		"--suffix=" + p.Suffix,
		"--max-dark-frames=" + strconv.Itoa(p.MaxDarkFrames),
		"--proximity=" + strconv.Itoa(p.Proximity),
		"--filter-single=" + strconv.FormatBool(p.FilterSingle),
		"--norm-brightness=" + strconv.FormatBool(p.NormBrightness),
		"--dt-window=" + strings.Join(window, ","),
		"--more-ms=" + strconv.Itoa(p.MoreMS),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
