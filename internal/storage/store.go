package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/crmlgpu/internal/md"
)

var ErrRunNotFound = errors.New("storage: run not found")

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
	ID        string             `json:"id"`
	Preset    string             `json:"preset"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Dt        float64            `json:"dt"`
	Steps     int                `json:"steps"`
	Atoms     int                `json:"atoms"`
	Types     int                `json:"types"`
	Path      string             `json:"path"`
	Precision string             `json:"precision"`
	Metrics   map[string]float64 `json:"metrics"`
}

var thermoHeader = []string{
	"step", "time", "evdwl", "ecoul", "potential", "kinetic", "total",
	"temperature", "pressure", "max_force",
}

// Save writes meta and the thermo trace under a fresh run directory and
// returns the run ID. A non-empty meta.ID is kept.
func (s *Store) Save(meta RunMetadata, thermo []md.Thermo) (string, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "thermo.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(thermoHeader); err != nil {
		return "", err
	}
	for _, th := range thermo {
		row := []string{strconv.Itoa(th.Step)}
		for _, v := range []float64{th.Time, th.EVdwl, th.ECoul, th.Potential, th.Kinetic, th.Total, th.Temperature, th.Pressure, th.MaxForce} {
			row = append(row, strconv.FormatFloat(v, 'g', 12, 64))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: run %s metadata: %w", runID, err)
	}

	return &meta, nil
}

func (s *Store) LoadThermo(runID string) ([]md.Thermo, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "thermo.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(thermoHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: run %s thermo: %w", runID, err)
	}
	if len(records) < 2 {
		return []md.Thermo{}, nil
	}

	out := make([]md.Thermo, 0, len(records)-1)
	for i, record := range records[1:] {
		var vals [9]float64
		step, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("storage: run %s thermo row %d: %w", runID, i+1, err)
		}
		for j := range vals {
			vals[j], err = strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("storage: run %s thermo row %d: %w", runID, i+1, err)
			}
		}
		out = append(out, md.Thermo{
			Step:        step,
			Time:        vals[0],
			EVdwl:       vals[1],
			ECoul:       vals[2],
			Potential:   vals[3],
			Kinetic:     vals[4],
			Total:       vals[5],
			Temperature: vals[6],
			Pressure:    vals[7],
			MaxForce:    vals[8],
		})
	}

	return out, nil
}
