package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/voltsim/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMECHANISM\tTIME\tWAVEFORM\tSAMPLES\tDURATION\tSCHEME\tCLEAN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.3fs\t%s/%s\t%t\n",
			run.ID,
			run.Mechanism,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Waveform,
			run.Samples,
			run.Duration,
			run.Scheme,
			run.Splitting,
			run.Diagnostics.Clean(),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, res, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	if res.Len() < 2 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mechanism: %s\n", meta.Mechanism)
	fmt.Printf("samples: %d\n\n", res.Len())

	fmt.Println(asciigraph.Plot(res.TotalCurrent(),
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption("total current (A) vs sample"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(res.Potentials(),
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("potential (V) vs sample"),
	))
	if len(res.Observables) > 1 {
		for k, name := range res.Observables {
			fmt.Println()
			fmt.Println(asciigraph.Plot(res.StepCurrent(k),
				asciigraph.Height(8),
				asciigraph.Width(80),
				asciigraph.Caption("i "+name+" (A)"),
			))
		}
	}

	if pngPath != "" {
		if err := writeVoltammogram(res, meta.ID, pngPath); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", pngPath)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// output opens outPath, or stdout when it is empty.
func output() (io.WriteCloser, error) {
	if outPath == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(outPath)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	_, res, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	out, err := output()
	if err != nil {
		return err
	}
	if err := storage.WriteCSV(out, res); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, res, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	out, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportJSONTo(out, meta.Name, res); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
