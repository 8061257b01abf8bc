// Package stations holds the static radar station table used by reporting
// and the ingester CLI.
package stations

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var stationsYAML []byte

// Station is one radar installation.
type Station struct {
	Code  string `yaml:"code" json:"code"`
	ID    int    `yaml:"id" json:"id"`
	Beams int    `yaml:"beams" json:"beams"`
}

// Table indexes stations by code and id.
type Table struct {
	byCode map[string]Station
	byID   map[int]Station
}

// Load parses the embedded station table.
func Load() (*Table, error) {
	return Parse(stationsYAML)
}

// Parse builds a table from YAML. Duplicate codes or ids are rejected.
func Parse(data []byte) (*Table, error) {
	var list []Station
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse station table: %w", err)
	}

	t := &Table{
		byCode: make(map[string]Station, len(list)),
		byID:   make(map[int]Station, len(list)),
	}
	for _, s := range list {
		s.Code = strings.ToLower(s.Code)
		if _, dup := t.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate station code %q", s.Code)
		}
		if _, dup := t.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %d", s.ID)
		}
		t.byCode[s.Code] = s
		t.byID[s.ID] = s
	}
	return t, nil
}

// ByCode looks a station up by its 3-letter code, case-insensitively.
func (t *Table) ByCode(code string) (Station, bool) {
	s, ok := t.byCode[strings.ToLower(code)]
	return s, ok
}

// ByID looks a station up by numeric id.
func (t *Table) ByID(id int) (Station, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// All returns every station ordered by id.
func (t *Table) All() []Station {
	out := make([]Station, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
