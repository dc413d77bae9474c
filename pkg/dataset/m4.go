// Package dataset loads benchmark series and the frequency classes that
// configure them.
//
// Series come from M4 competition style CSV files (one series per row, the
// id in the first column, observations after it) or from a live adapter.
// Inputs pairs them with a Frequency to produce pipeline inputs.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/HatiCode/m4bench/pkg/adapters"
	"github.com/HatiCode/m4bench/pkg/pipeline"
)

// ErrEmptySeries is returned for a row with an id but no observations.
var ErrEmptySeries = errors.New("series has no observations")

// Series is one named sequence of observations.
type Series struct {
	ID     string
	Values []float64
}

// ReadM4 parses the M4 CSV layout: a header row, then one series per row
// with the id in the first column. Rows have different lengths; trailing
// empty cells are ignored.
func ReadM4(r io.Reader) ([]Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var out []Series
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		s, err := parseRecord(record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseRecord(record []string) (Series, error) {
	id := strings.Trim(strings.TrimSpace(record[0]), `"`)
	if id == "" {
		return Series{}, errors.New("missing series id")
	}

	cells := record[1:]
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	if len(cells) == 0 {
		return Series{}, fmt.Errorf("%s: %w", id, ErrEmptySeries)
	}

	values := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return Series{}, fmt.Errorf("%s: column %d: %w", id, i+2, err)
		}
		values[i] = v
	}
	return Series{ID: id, Values: values}, nil
}

// LoadM4 reads a training file and, when testPath is set, appends the
// matching rows of the test file to each series.
func LoadM4(trainPath, testPath string) ([]Series, error) {
	train, err := readFile(trainPath)
	if err != nil {
		return nil, err
	}
	if testPath == "" {
		return train, nil
	}
	test, err := readFile(testPath)
	if err != nil {
		return nil, err
	}
	return Merge(train, test)
}

func readFile(path string) ([]Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	series, err := ReadM4(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// Merge appends each test series to the training series with the same id.
// Order follows train. A test id missing from train is an error.
func Merge(train, test []Series) ([]Series, error) {
	index := make(map[string]int, len(train))
	out := make([]Series, len(train))
	for i, s := range train {
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate series id %q", s.ID)
		}
		index[s.ID] = i
		out[i] = Series{ID: s.ID, Values: append([]float64(nil), s.Values...)}
	}

	for _, s := range test {
		i, ok := index[s.ID]
		if !ok {
			return nil, fmt.Errorf("test series %q has no training series", s.ID)
		}
		out[i].Values = append(out[i].Values, s.Values...)
	}
	return out, nil
}

// Limit returns the first n series, or all of them when n <= 0.
func Limit(series []Series, n int) []Series {
	if n <= 0 || n >= len(series) {
		return series
	}
	return series[:n]
}

// Filter returns the series whose id is in ids, in their original order.
// An empty ids keeps everything.
func Filter(series []Series, ids []string) []Series {
	if len(ids) == 0 {
		return series
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var out []Series
	for _, s := range series {
		if keep[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// FromAdapter converts a fetched live series into a benchmark series on a
// regular grid.
func FromAdapter(id string, s *adapters.Series) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("%s: %w", id, ErrEmptySeries)
	}
	values := s.Regular()
	if len(values) == 0 {
		return Series{}, fmt.Errorf("%s: %w", id, ErrEmptySeries)
	}
	if id == "" {
		id = s.Name
	}
	return Series{ID: id, Values: values}, nil
}

// Inputs pairs every series with the frequency class settings.
func Inputs(series []Series, freq Frequency) []pipeline.Input {
	inputs := make([]pipeline.Input, len(series))
	for i, s := range series {
		inputs[i] = pipeline.Input{
			ID:      s.ID,
			Values:  s.Values,
			Period:  freq.Period,
			Horizon: freq.Horizon,
			Lags:    freq.Lags,
		}
	}
	return inputs
}
