package scenario

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/arvel-h/pumplab/internal/sim"
)

// Save writes a disturbance profile in the interchange layout:
// step,noise,load per row.
func Save(path string, samples []sim.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"step", "noise", "load"}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Step),
			strconv.FormatFloat(s.Noise, 'f', 6, 64),
			strconv.FormatFloat(s.Load, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// Load reads a profile produced by Save (or any external generator using
// the same columns).
func Load(path string) ([]sim.Sample, error) {
	f, err := os.Open(path)
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
		return nil, fmt.Errorf("profile %s has no rows", path)
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("profile row %d has %d columns, want 3", i+1, len(rec))
		}
		step, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("profile row %d: bad step: %w", i+1, err)
		}
		noise, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("profile row %d: bad noise: %w", i+1, err)
		}
		load, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("profile row %d: bad load: %w", i+1, err)
		}
		samples = append(samples, sim.Sample{Step: step, Noise: noise, Load: load})
	}

	if err := Validate(samples); err != nil {
		return nil, err
	}
	return samples, nil
}
