// Package reference holds the static entity tables the feature engineering is
// driven by: the taxonomy (entity -> race, category) and the supply-cost table
// (entity -> weight). Both are keyed by lowercase entity name, loaded once and
// read-only afterwards, so one instance can be shared by every pipeline.
package reference

import (
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

// Entity is one taxonomy row.
type Entity struct {
	Name     string
	Race     model.Race
	Category model.Category
}

// Taxonomy maps every race to its entities and their categories.
type Taxonomy struct {
	byRace map[model.Race]map[string]model.Category
}

// NewTaxonomy builds a taxonomy from entities. Names are lowercased.
func NewTaxonomy(entities []Entity) *Taxonomy {
	t := &Taxonomy{byRace: make(map[model.Race]map[string]model.Category)}
	for _, e := range entities {
		m, ok := t.byRace[e.Race]
		if !ok {
			m = make(map[string]model.Category)
			t.byRace[e.Race] = m
		}
		m[normalizeName(e.Name)] = e.Category
	}
	return t
}

// LoadTaxonomy reads a CSV with columns name, race, type. Rows whose race or
// type is not recognised (neutral map objects, spells) are skipped.
func LoadTaxonomy(r io.Reader) (*Taxonomy, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "read taxonomy csv")
	}
	if err := requireColumns(df, "name", "race", "type"); err != nil {
		return nil, errors.Wrap(err, "taxonomy")
	}
	df = df.Filter(dataframe.F{Colname: "name", Comparator: series.Neq, Comparando: ""})

	names := df.Col("name").Records()
	races := df.Col("race").Records()
	types := df.Col("type").Records()

	entities := make([]Entity, 0, len(names))
	for i := range names {
		race, err := model.ParseRace(races[i])
		if err != nil {
			continue
		}
		cat, ok := model.ParseCategory(types[i])
		if !ok {
			continue
		}
		entities = append(entities, Entity{Name: names[i], Race: race, Category: cat})
	}
	return NewTaxonomy(entities), nil
}

// Names returns a fresh set of the race's entity names restricted to cats.
func (t *Taxonomy) Names(race model.Race, cats ...model.Category) map[string]struct{} {
	want := make(map[model.Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	out := make(map[string]struct{})
	for name, cat := range t.byRace[race] {
		if want[cat] {
			out[name] = struct{}{}
		}
	}
	return out
}

// Category looks up an entity of race.
func (t *Taxonomy) Category(race model.Race, name string) (model.Category, bool) {
	c, ok := t.byRace[race][normalizeName(name)]
	return c, ok
}

// Len is the number of entities across all races.
func (t *Taxonomy) Len() int {
	n := 0
	for _, m := range t.byRace {
		n += len(m)
	}
	return n
}

// SupplyTable maps entity names to their supply cost.
type SupplyTable struct {
	weights map[string]float64
}

// NewSupplyTable copies weights into a new table. Names are lowercased.
func NewSupplyTable(weights map[string]float64) *SupplyTable {
	s := &SupplyTable{weights: make(map[string]float64, len(weights))}
	for k, v := range weights {
		s.weights[normalizeName(k)] = v
	}
	return s
}

// LoadSupply reads a CSV with columns name, supply.
func LoadSupply(r io.Reader) (*SupplyTable, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.WithTypes(map[string]series.Type{
			"name":   series.String,
			"supply": series.Float,
		}),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "read supply csv")
	}
	if err := requireColumns(df, "name", "supply"); err != nil {
		return nil, errors.Wrap(err, "supply table")
	}
	names := df.Col("name").Records()
	supply := df.Col("supply").Float()

	weights := make(map[string]float64, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		weights[n] = supply[i]
	}
	return NewSupplyTable(weights), nil
}

// Weight returns the supply cost of name, 1 when the entity is not listed.
func (s *SupplyTable) Weight(name string) float64 {
	if w, ok := s.weights[normalizeName(name)]; ok {
		return w
	}
	return 1
}

// Has reports whether name carries a supply cost.
func (s *SupplyTable) Has(name string) bool {
	_, ok := s.weights[normalizeName(name)]
	return ok
}

func (s *SupplyTable) Len() int { return len(s.weights) }

// Tables bundles both reference tables.
type Tables struct {
	Taxonomy *Taxonomy
	Supply   *SupplyTable
}

// LoadFiles reads both tables from disk.
func LoadFiles(taxonomyPath, supplyPath string) (*Tables, error) {
	tf, err := os.Open(taxonomyPath)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "open taxonomy"),
			"set reference.taxonomy_file to the game_info.csv exported by the replay parser")
	}
	defer tf.Close()
	tax, err := LoadTaxonomy(tf)
	if err != nil {
		return nil, err
	}

	sf, err := os.Open(supplyPath)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "open supply table"),
			"set reference.supply_file to a name,supply CSV")
	}
	defer sf.Close()
	sup, err := LoadSupply(sf)
	if err != nil {
		return nil, err
	}
	return &Tables{Taxonomy: tax, Supply: sup}, nil
}

func requireColumns(df dataframe.DataFrame, cols ...string) error {
	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, c := range cols {
		if !have[c] {
			return errors.Newf("missing column %q", c)
		}
	}
	return nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
