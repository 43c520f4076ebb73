// Package storage keeps finished runs on disk: metadata as JSON, the task
// error history as CSV and the scenario that produced them as YAML.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/sim"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
	scenarioFile = "scenario.yaml"
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

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Integrator string             `json:"integrator"`
	Robots     int                `json:"robots"`
	Tasks      []string           `json:"tasks"`
	Steps      int                `json:"steps"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Series is the per-step history read back from series.csv.
type Series struct {
	Times       []float64
	TaskNames   []string
	TaskErrors  [][]float64
	AlphaDNorms []float64
	Objective   []float64
}

// Save writes a run directory and returns its id.
func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Scenario:   cfg.Name,
		Timestamp:  now,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
		Robots:     len(cfg.Robots),
		Tasks:      result.TaskNames,
		Steps:      result.StepsTaken,
		Metrics:    finite(result.Metrics),
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", errors.Wrap(err, "metadata")
	}
	if err := config.Save(filepath.Join(runDir, scenarioFile), cfg); err != nil {
		return "", errors.Wrap(err, "scenario")
	}
	if err := writeSeries(filepath.Join(runDir, seriesFile), result); err != nil {
		return "", errors.Wrap(err, "series")
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// finite drops values JSON cannot carry, such as the +Inf settling time of
// a task that never settled.
func finite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			out[k] = v
		}
	}
	return out
}

func writeSeries(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time"}, result.TaskNames...)
	header = append(header, "alpha_d_norm", "objective")
	if err := w.Write(header); err != nil {
		return err
	}

	for i, t := range result.Times {
		row := []string{format(t)}
		for _, v := range result.TaskErrors[i] {
			row = append(row, format(v))
		}
		row = append(row, format(at(result.AlphaDNorms, i)), format(at(result.Objective, i)))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func format(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

// List returns every readable run, oldest first.
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
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	return &meta, nil
}

// LoadScenario returns the configuration a run was produced from.
func (s *Store) LoadScenario(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, scenarioFile))
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("run %s: empty series", runID)
	}

	header := records[0]
	if len(header) < 3 {
		return nil, errors.Errorf("run %s: malformed header %v", runID, header)
	}
	nTasks := len(header) - 3
	out := &Series{TaskNames: append([]string(nil), header[1:1+nTasks]...)}

	for line, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "run %s line %d", runID, line+2)
			}
			vals[j] = v
		}
		out.Times = append(out.Times, vals[0])
		out.TaskErrors = append(out.TaskErrors, vals[1:1+nTasks])
		out.AlphaDNorms = append(out.AlphaDNorms, vals[1+nTasks])
		out.Objective = append(out.Objective, vals[2+nTasks])
	}
	return out, nil
}

// TaskSeries returns the error history of one task.
func (s *Series) TaskSeries(name string) ([]float64, bool) {
	for i, n := range s.TaskNames {
		if n != name {
			continue
		}
		out := make([]float64, len(s.TaskErrors))
		for k, row := range s.TaskErrors {
			out[k] = row[i]
		}
		return out, true
	}
	return nil, false
}
