package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/voltsim/internal/sim"
)

type ExportData struct {
	Name         string             `json:"name"`
	Species      []string           `json:"species"`
	Observables  []string           `json:"observables"`
	Samples      int                `json:"samples"`
	Times        []float64          `json:"times"`
	Potentials   []float64          `json:"potentials"`
	Total        []float64          `json:"total"`
	StepCurrents [][]float64        `json:"step_currents"`
	Flags        []sim.Flags        `json:"flags"`
	Snapshots    []sim.Snapshot     `json:"snapshots,omitempty"`
	Diagnostics  sim.Diagnostics    `json:"diagnostics"`
	Metrics      map[string]float64 `json:"metrics"`
}

func exportData(name string, result *sim.Result) ExportData {
	data := ExportData{
		Name:         name,
		Species:      result.Species,
		Observables:  result.Observables,
		Samples:      result.Len(),
		Times:        result.Times(),
		Potentials:   result.Potentials(),
		Total:        result.TotalCurrent(),
		StepCurrents: make([][]float64, len(result.Observables)),
		Flags:        make([]sim.Flags, result.Len()),
		Snapshots:    result.Snapshots,
		Diagnostics:  result.Diagnostics,
		Metrics:      result.Metrics,
	}
	for k := range data.StepCurrents {
		data.StepCurrents[k] = result.StepCurrent(k)
	}
	for i, r := range result.Records {
		data.Flags[i] = r.Flags
	}
	return data
}

// ExportJSON writes the run as one indented JSON document.
func ExportJSON(path, name string, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSONTo(file, name, result)
}

func ExportJSONTo(w io.Writer, name string, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(name, result))
}

// WriteCSV writes one row per sample: index, t, E, total, the current of
// every E-step and the flag bits.
func WriteCSV(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)

	header := []string{"index", "t", "E", "total"}
	for _, name := range result.Observables {
		header = append(header, "i_"+name)
	}
	header = append(header, "flags")
	if err := w.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, r := range result.Records {
		row := []string{strconv.Itoa(r.Index), format(r.T), format(r.E), format(r.Total)}
		for k := range result.Observables {
			v := 0.0
			if k < len(r.StepCurrents) {
				v = r.StepCurrents[k]
			}
			row = append(row, format(v))
		}
		row = append(row, strconv.Itoa(int(r.Flags)))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
