package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/arvel-h/pumplab/internal/sim"
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
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Setpoint    float64            `json:"setpoint"`
	Seed        int64              `json:"seed"`
	Steps       int                `json:"steps"`
	Controllers []string           `json:"controllers"`
	Summary     map[string]float64 `json:"summary"`
}

// Save persists one run: metadata.json plus a series.csv with the
// disturbance columns and per-controller measurement/command tracks.
func (s *Store) Save(name string, setpoint float64, seed int64, controllers []string, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", name, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Timestamp:   time.Now(),
		Setpoint:    setpoint,
		Seed:        seed,
		Steps:       result.StepsTaken,
		Controllers: controllers,
		Summary:     Summarize(setpoint, controllers, result),
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

	csvFile, err := os.Create(filepath.Join(runDir, "series.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"step", "noise", "load", "status"}
	for _, c := range controllers {
		header = append(header, "vol_"+c, "cmd_"+c)
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, step := range result.Steps {
		row := []string{
			strconv.Itoa(step.Index),
			strconv.FormatFloat(step.Sample.Noise, 'f', 6, 64),
			strconv.FormatFloat(step.Sample.Load, 'f', 6, 64),
			step.Status.String(),
		}
		for i := range controllers {
			vol, cmd := 0.0, 0.0
			if i < len(step.Measurements) {
				vol = step.Measurements[i]
			}
			if i < len(step.Commands) {
				cmd = step.Commands[i]
			}
			row = append(row,
				strconv.FormatFloat(vol, 'f', 6, 64),
				strconv.FormatFloat(cmd, 'f', 6, 64),
			)
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

// Summarize computes the mean absolute setpoint error and the offline
// fraction per controller.
func Summarize(setpoint float64, controllers []string, result *sim.Result) map[string]float64 {
	summary := make(map[string]float64)
	if result.StepsTaken == 0 {
		return summary
	}

	for i, c := range controllers {
		var errSum float64
		var offline int
		for _, step := range result.Steps {
			if i < len(step.Measurements) {
				errSum += math.Abs(setpoint - step.Measurements[i])
			}
			if i < len(step.Online) && !step.Online[i] {
				offline++
			}
		}
		summary["mae_"+c] = errSum / float64(result.StepsTaken)
		summary["offline_"+c] = float64(offline) / float64(result.StepsTaken)
	}
	return summary
}

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
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Series reads back the measurement track for one controller column.
func (s *Store) Series(runID, controller string) ([]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "series.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []float64{}, nil
	}

	col := -1
	for i, name := range records[0] {
		if name == "vol_"+controller {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("run %s has no controller %q", runID, controller)
	}

	series := make([]float64, 0, len(records)-1)
	for _, rec := range records[1:] {
		if col >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(rec[col], 64)
		if err != nil {
			continue
		}
		series = append(series, v)
	}
	return series, nil
}
