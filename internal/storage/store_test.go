package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/cosim"
)

const demand = config.FacilityDemandKey

func testResult() *cosim.Result {
	return &cosim.Result{
		Name:          "test",
		ControlOption: control.OptionLiquidCooling,
		SensorKeys:    []string{demand},
		Times:         []float64{600, 1200},
		Requested:     []float64{600, 1200},
		Setpoints: []control.Setpoints{
			{-200000, 2, 1, 1},
			{-200000, 2, 1, 1},
		},
		Sensors: map[string][]float64{
			demand: {math.NaN(), 1.4e6},
		},
		Metrics: map[string]float64{
			"energy_kwh": 1.5,
			"bad":        math.NaN(),
		},
		StepsTaken: 2,
	}
}

func saveTestRun(t *testing.T, st *Store) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Name = "test"
	runID, err := st.Save(cfg, "broker-1", testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	return runID
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID := saveTestRun(t, st)
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Name != "test" || meta.ControlOption != control.OptionLiquidCooling {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Steps != 2 || meta.BrokerID != "broker-1" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["energy_kwh"] != 1.5 {
		t.Errorf("expected energy 1.5, got %f", meta.Metrics["energy_kwh"])
	}
	if _, ok := meta.Metrics["bad"]; ok {
		t.Error("non-finite metric should be dropped")
	}

	steps, err := st.LoadSteps(runID)
	if err != nil {
		t.Fatalf("load steps failed: %v", err)
	}
	if len(steps.Times) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps.Times))
	}
	u0, ok := steps.Column("u0")
	if !ok || u0[0] != -200000 {
		t.Errorf("unexpected u0 column %v", u0)
	}
	col, ok := steps.Column(demand)
	if !ok || !math.IsNaN(col[0]) || col[1] != 1.4e6 {
		t.Errorf("unexpected demand column %v", col)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	saveTestRun(t, st)
	saveTestRun(t, st)

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	runID := saveTestRun(t, st)

	for _, name := range []string{metadataFile, stepsFile} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID := saveTestRun(t, st)

	var buf bytes.Buffer
	if err := st.ExportJSON(&buf, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if data.Steps != 2 || data.Run.ID != runID {
		t.Errorf("unexpected export header %+v", data.Run)
	}
	col := data.Columns[demand]
	if len(col) != 2 || col[0] != nil || col[1] == nil || *col[1] != 1.4e6 {
		t.Errorf("unexpected demand column %v", col)
	}

	if err := st.ExportJSON(&buf, "missing"); err == nil {
		t.Error("expected error for missing run")
	}
}
