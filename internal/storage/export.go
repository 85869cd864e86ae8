package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"
)

type ExportData struct {
	Run     RunMetadata           `json:"run"`
	Steps   int                   `json:"steps"`
	Times   []float64             `json:"times"`
	Columns map[string][]*float64 `json:"columns"`
}

// ExportJSON writes a stored run as one JSON document. Unset sensor values
// are exported as null.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	steps, err := s.LoadSteps(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Run:     *meta,
		Steps:   len(steps.Times),
		Times:   steps.Times,
		Columns: make(map[string][]*float64, len(steps.Columns)),
	}
	for name, col := range steps.Columns {
		data.Columns[name] = nullable(col)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Store) ExportJSONFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(file, runID)
}

func nullable(vals []float64) []*float64 {
	out := make([]*float64, len(vals))
	for i := range vals {
		if math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
			continue
		}
		out[i] = &vals[i]
	}
	return out
}

func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
