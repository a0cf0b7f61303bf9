package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteJSON serializes the report with two-space indentation.
func (r *EngineReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ExportCSV writes one file per present measurement kind into dir:
// <engine>_response.csv, <engine>_impulse.csv, and <engine>_thd.csv.
func (r *EngineReport) ExportCSV(dir string) error {
	if r.FrequencyResponse != nil {
		rows := make([][]string, len(r.FrequencyResponse.Points))
		for i, p := range r.FrequencyResponse.Points {
			rows[i] = []string{
				formatFloat(p.Frequency),
				formatFloat(p.MagnitudeDB),
				formatFloat(p.PhaseRadians),
			}
		}

		path := filepath.Join(dir, r.FileName("response"))
		if err := writeCSV(path, []string{"frequency", "magnitudeDB", "phaseRadians"}, rows); err != nil {
			return err
		}
	}

	if r.Impulse != nil && len(r.Impulse.Samples) > 0 && r.Impulse.SampleRate > 0 {
		rows := make([][]string, len(r.Impulse.Samples))
		for i, x := range r.Impulse.Samples {
			rows[i] = []string{
				formatFloat(float64(i) / r.Impulse.SampleRate),
				formatFloat(x),
			}
		}

		path := filepath.Join(dir, r.FileName("impulse"))
		if err := writeCSV(path, []string{"time", "amplitude"}, rows); err != nil {
			return err
		}
	}

	if r.Distortion != nil {
		rows := [][]string{{
			formatFloat(r.Distortion.FundamentalFreq),
			formatFloat(r.Distortion.THDPercent),
		}}

		path := filepath.Join(dir, r.FileName("thd"))
		if err := writeCSV(path, []string{"frequency", "thdPercent"}, rows); err != nil {
			return err
		}
	}

	return nil
}

// FileName builds the export file name for a measurement kind, with path
// separators and spaces sanitized out of the engine name.
func (r *EngineReport) FileName(kind string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(r.EngineName)
	ext := ".csv"
	if kind == "report" {
		ext = ".json"
	}
	return name + "_" + kind + ext
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
