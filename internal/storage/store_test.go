package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/san-kum/crmlgpu/internal/md"
)

func sampleThermo() []md.Thermo {
	return []md.Thermo{
		{Step: 0, Time: 0, EVdwl: -1.25, ECoul: -30.5, Potential: -31.75, Kinetic: 4, Total: -27.75, Temperature: 300, Pressure: 120.5, MaxForce: 12},
		{Step: 10, Time: 0.01, EVdwl: -1.5, ECoul: -30.25, Potential: -31.75, Kinetic: 4.1, Total: -27.65, Temperature: 305.25, Pressure: -8.125, MaxForce: 9.5},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Preset:    "small",
		Seed:      42,
		Dt:        0.001,
		Steps:     10,
		Atoms:     64,
		Types:     3,
		Path:      "fast",
		Precision: "mixed",
		Metrics:   map[string]float64{"energy_drift": 0.01},
	}

	runID, err := st.Save(meta, sampleThermo())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := uuid.Parse(runID); err != nil {
		t.Errorf("expected uuid run id, got %q", runID)
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Preset != "small" || loaded.Seed != 42 || loaded.Path != "fast" {
		t.Errorf("unexpected metadata %+v", loaded)
	}
	if loaded.Metrics["energy_drift"] != 0.01 {
		t.Errorf("expected energy_drift 0.01, got %f", loaded.Metrics["energy_drift"])
	}
	if loaded.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	thermo, err := st.LoadThermo(runID)
	if err != nil {
		t.Fatalf("load thermo failed: %v", err)
	}
	if diff := cmp.Diff(sampleThermo(), thermo); diff != "" {
		t.Errorf("thermo mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreKeepsID(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{ID: "fixed"}, nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID != "fixed" {
		t.Errorf("expected run id 'fixed', got %q", runID)
	}

	thermo, err := st.LoadThermo(runID)
	if err != nil {
		t.Fatalf("load thermo failed: %v", err)
	}
	if len(thermo) != 0 {
		t.Errorf("expected empty thermo, got %d rows", len(thermo))
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	now := time.Now()
	for i, preset := range []string{"old", "new"} {
		meta := RunMetadata{Preset: preset, Timestamp: now.Add(time.Duration(i) * time.Minute)}
		if _, err := st.Save(meta, sampleThermo()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Preset != "new" {
		t.Errorf("expected newest run first, got %s", runs[0].Preset)
	}
}

func TestStoreMissing(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list on missing dir failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	if _, err := st.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := st.LoadThermo("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	thermo := sampleThermo()
	thermo[1].Virial = [6]float64{1, 2, 3, 0, 0, 0}

	if err := ExportJSON(&buf, RunMetadata{ID: "abc", Atoms: 64}, thermo); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ID != "abc" || got.Atoms != 64 {
		t.Errorf("unexpected metadata %+v", got.RunMetadata)
	}
	if diff := cmp.Diff(thermo, got.Thermo); diff != "" {
		t.Errorf("thermo mismatch (-want +got):\n%s", diff)
	}
}
