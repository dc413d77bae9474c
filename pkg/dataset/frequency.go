package dataset

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLags is the input window width used when a frequency class does not
// set one.
const DefaultLags = 3

// Frequency describes one frequency class: its seasonal period (ppy), the
// forecast horizon (fh) and the input window width (in_num).
type Frequency struct {
	Name    string `yaml:"name" json:"name"`
	Period  int    `yaml:"period" json:"period"`
	Horizon int    `yaml:"horizon" json:"horizon"`
	Lags    int    `yaml:"lags" json:"lags"`
}

// Validate checks that every field is usable by the pipeline.
func (f Frequency) Validate() error {
	if f.Period < 1 {
		return fmt.Errorf("frequency %q: period must be >= 1, got %d", f.Name, f.Period)
	}
	if f.Horizon < 1 {
		return fmt.Errorf("frequency %q: horizon must be >= 1, got %d", f.Name, f.Horizon)
	}
	if f.Lags < 1 {
		return fmt.Errorf("frequency %q: lags must be >= 1, got %d", f.Name, f.Lags)
	}
	return nil
}

// Table maps lower-case frequency names to their settings.
type Table map[string]Frequency

// DefaultTable returns the M4 competition frequency classes.
func DefaultTable() Table {
	return Table{
		"yearly":    {Name: "yearly", Period: 1, Horizon: 6, Lags: DefaultLags},
		"quarterly": {Name: "quarterly", Period: 4, Horizon: 8, Lags: DefaultLags},
		"monthly":   {Name: "monthly", Period: 12, Horizon: 18, Lags: DefaultLags},
		"weekly":    {Name: "weekly", Period: 1, Horizon: 13, Lags: DefaultLags},
		"daily":     {Name: "daily", Period: 1, Horizon: 14, Lags: DefaultLags},
		"hourly":    {Name: "hourly", Period: 24, Horizon: 48, Lags: DefaultLags},
	}
}

// Lookup returns the class registered under name, case-insensitively.
func (t Table) Lookup(name string) (Frequency, error) {
	f, ok := t[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Frequency{}, fmt.Errorf("unknown frequency %q (known: %s)", name, strings.Join(t.Names(), ", "))
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type tableFile struct {
	Frequencies []Frequency `yaml:"frequencies"`
}

// ParseTable reads frequency classes from YAML and merges them over the
// defaults:
//
//	frequencies:
//	  - name: monthly
//	    period: 12
//	    horizon: 18
//	    lags: 6
//
// Omitted lags fall back to DefaultLags.
func ParseTable(data []byte) (Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse frequency table: %w", err)
	}

	table := DefaultTable()
	for _, f := range file.Frequencies {
		f.Name = strings.ToLower(strings.TrimSpace(f.Name))
		if f.Name == "" {
			return nil, fmt.Errorf("frequency table: entry without name")
		}
		if f.Lags == 0 {
			f.Lags = DefaultLags
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		table[f.Name] = f
	}
	return table, nil
}

// LoadTable reads a YAML frequency table from path. An empty path returns
// the defaults.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frequency table: %w", err)
	}
	return ParseTable(data)
}
