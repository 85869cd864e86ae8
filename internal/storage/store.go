package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/cosim"
)

const (
	metadataFile = "metadata.json"
	stepsFile    = "steps.csv"
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
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	ControlOption   string             `json:"control_option"`
	BrokerID        string             `json:"broker_id,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	TimestepSeconds float64            `json:"timestep_seconds"`
	RunPeriodDays   int                `json:"run_period_days"`
	Steps           int                `json:"steps"`
	Actuators       []string           `json:"actuators"`
	Sensors         []string           `json:"sensors"`
	Metrics         map[string]float64 `json:"metrics"`
}

// Save writes metadata.json and steps.csv into a new run directory and
// returns the run id.
func (s *Store) Save(cfg *config.Config, brokerID string, result *cosim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d_%s", cfg.Name, now.Unix(), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	actuators := make([]string, len(cfg.Actuators))
	for i, a := range cfg.Actuators {
		actuators[i] = a.Key()
	}

	meta := RunMetadata{
		ID:              runID,
		Name:            cfg.Name,
		ControlOption:   result.ControlOption,
		BrokerID:        brokerID,
		Timestamp:       now,
		TimestepSeconds: cfg.TimestepSeconds,
		RunPeriodDays:   cfg.RunPeriodDays,
		Steps:           result.StepsTaken,
		Actuators:       actuators,
		Sensors:         result.SensorKeys,
		Metrics:         finiteMetrics(result.Metrics),
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSteps(filepath.Join(runDir, stepsFile), result); err != nil {
		return "", err
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

func writeSteps(path string, result *cosim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	numControls := 0
	if len(result.Setpoints) > 0 {
		numControls = len(result.Setpoints[0])
	}
	header := []string{"time", "requested"}
	for i := 0; i < numControls; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	header = append(header, result.SensorKeys...)
	if err := w.Write(header); err != nil {
		return err
	}

	for i, t := range result.Times {
		row := []string{formatFloat(t), formatFloat(result.Requested[i])}
		for j := 0; j < numControls; j++ {
			v := 0.0
			if j < len(result.Setpoints[i]) {
				v = result.Setpoints[i][j]
			}
			row = append(row, formatFloat(v))
		}
		for _, k := range result.SensorKeys {
			row = append(row, formatFloat(result.Sensors[k][i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// List returns stored runs, newest first.
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// Steps is the column view of a stored steps.csv.
type Steps struct {
	Header  []string
	Times   []float64
	Columns map[string][]float64
}

func (s *Steps) Column(name string) ([]float64, bool) {
	col, ok := s.Columns[name]
	return col, ok
}

func (s *Store) LoadSteps(runID string) (*Steps, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, stepsFile))
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

	steps := &Steps{Columns: make(map[string][]float64)}
	if len(records) == 0 {
		return steps, nil
	}
	steps.Header = records[0]

	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		steps.Times = append(steps.Times, t)

		for j := 1; j < len(record) && j < len(steps.Header); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				continue
			}
			name := steps.Header[j]
			steps.Columns[name] = append(steps.Columns[name], val)
		}
	}

	return steps, nil
}
