package waveform

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/san-kum/voltsim/internal/echem"
)

// ReadCSV reads a waveform from two columns, t then E. A leading header row
// is skipped; blank lines and lines starting with '#' are ignored.
func ReadCSV(r io.Reader) (Waveform, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var e, t []float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", echem.ErrInvalidWaveform, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d has %d columns, want 2", echem.ErrInvalidWaveform, line, len(rec))
		}
		ti, errT := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		ei, errE := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errT != nil || errE != nil {
			if len(t) == 0 && line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: cannot parse %q", echem.ErrInvalidWaveform, line, strings.Join(rec, ","))
		}
		t = append(t, ti)
		e = append(e, ei)
	}
	return FromArrays(e, t)
}

// WriteCSV writes the waveform as t,E with a header row.
func (w Waveform) WriteCSV(out io.Writer) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"t", "E"}); err != nil {
		return err
	}
	for _, s := range w {
		rec := []string{
			strconv.FormatFloat(s.T, 'g', -1, 64),
			strconv.FormatFloat(s.E, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
