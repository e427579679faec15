package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	currentsFile = "currents.csv"
	configFile   = "config.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Mechanism   string             `json:"mechanism"`
	Timestamp   time.Time          `json:"timestamp"`
	Species     []string           `json:"species"`
	Observables []string           `json:"observables"`
	Waveform    string             `json:"waveform"`
	Scheme      string             `json:"scheme"`
	Splitting   string             `json:"splitting"`
	Samples     int                `json:"samples"`
	Duration    float64            `json:"duration"`
	Elapsed     time.Duration      `json:"elapsed"`
	Metrics     map[string]float64 `json:"metrics"`
	Diagnostics sim.Diagnostics    `json:"diagnostics"`
}

func describe(cfg *config.Config) string {
	if cfg.Mechanism.Tag != "" {
		return strings.ToUpper(cfg.Mechanism.Tag)
	}
	return fmt.Sprintf("%d species, %d E, %d C", len(cfg.Mechanism.Species), len(cfg.Mechanism.ESteps), len(cfg.Mechanism.CSteps))
}

// Save writes the run under a fresh id: metadata, the config that produced
// it and the current trace.
func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	name := cfg.Name
	if name == "" {
		name = "run"
	}
	runID := fmt.Sprintf("%s_%s", name, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Name:        name,
		Mechanism:   describe(cfg),
		Timestamp:   time.Now(),
		Species:     result.Species,
		Observables: result.Observables,
		Waveform:    cfg.Waveform.Kind,
		Scheme:      cfg.Engine.Scheme,
		Splitting:   cfg.Engine.Splitting,
		Samples:     result.Len(),
		Elapsed:     result.Elapsed,
		Metrics:     result.Metrics,
		Diagnostics: result.Diagnostics,
	}
	if n := result.Len(); n > 0 {
		meta.Duration = result.Records[n-1].T - result.Records[0].T
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, currentsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteCSV(csvFile, result); err != nil {
		return "", err
	}
	return runID, nil
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadConfig returns the config the run was made from.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// Currents is a stored current trace.
type Currents struct {
	Index []int
	T     []float64
	E     []float64
	Total []float64
	// Steps[k] is the trace of E-step k.
	Steps [][]float64
	Flags []sim.Flags
}

func (s *Store) LoadCurrents(runID string) (*Currents, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, currentsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := &Currents{}
	if len(records) < 1 {
		return out, nil
	}
	// index, t, E, total, one column per step, flags
	steps := len(records[0]) - 5
	if steps < 0 {
		return nil, fmt.Errorf("%s: unexpected header %v", currentsFile, records[0])
	}
	out.Steps = make([][]float64, steps)

	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) != steps+5 {
			return nil, fmt.Errorf("%s line %d: %d columns, want %d", currentsFile, i+1, len(record), steps+5)
		}
		vals := make([]float64, len(record)-2)
		for j := range vals {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", currentsFile, i+1, err)
			}
			vals[j] = v
		}
		idx, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", currentsFile, i+1, err)
		}
		flags, err := strconv.ParseUint(record[len(record)-1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", currentsFile, i+1, err)
		}

		out.Index = append(out.Index, idx)
		out.T = append(out.T, vals[0])
		out.E = append(out.E, vals[1])
		out.Total = append(out.Total, vals[2])
		for k := 0; k < steps; k++ {
			out.Steps[k] = append(out.Steps[k], vals[3+k])
		}
		out.Flags = append(out.Flags, sim.Flags(flags))
	}
	return out, nil
}

// LoadResult rebuilds a result from a stored run. Snapshots and per-sample
// Newton counts are not stored and come back empty.
func (s *Store) LoadResult(runID string) (*RunMetadata, *sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	cur, err := s.LoadCurrents(runID)
	if err != nil {
		return nil, nil, err
	}
	res := &sim.Result{
		Species:     meta.Species,
		Observables: meta.Observables,
		Records:     make([]sim.Record, len(cur.Index)),
		Diagnostics: meta.Diagnostics,
		Metrics:     meta.Metrics,
		Elapsed:     meta.Elapsed,
	}
	for i := range cur.Index {
		steps := make([]float64, len(cur.Steps))
		for k := range cur.Steps {
			steps[k] = cur.Steps[k][i]
		}
		res.Records[i] = sim.Record{
			Index:        cur.Index[i],
			T:            cur.T[i],
			E:            cur.E[i],
			StepCurrents: steps,
			Total:        cur.Total[i],
			Flags:        cur.Flags[i],
		}
	}
	return meta, res, nil
}
