package persona

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultCatalog []byte

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// Catalog is an immutable in-memory Service.
type Catalog struct {
	ordered []Persona
	byID    map[string]int
}

var _ Service = (*Catalog)(nil)

// NewCatalog validates personas and indexes them by ID.
func NewCatalog(personas []Persona) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: no personas defined", ErrInvalidCatalog)
	}
	ordered := slices.Clone(personas)
	slices.SortFunc(ordered, func(a, b Persona) int { return strings.Compare(a.ID, b.ID) })

	byID := make(map[string]int, len(ordered))
	for i := range ordered {
		p := &ordered[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, p.ID)
		}
		byID[p.ID] = i
	}
	return &Catalog{ordered: ordered, byID: byID}, nil
}

// LoadCatalog decodes a YAML catalog. Unknown fields are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(f.Personas)
}

// LoadCatalogFile reads a YAML catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadCatalog(f)
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded persona catalog: %v", err))
	}
	return c
}

// Personas returns a copy of the catalog contents in ID order.
func (c *Catalog) Personas() []Persona {
	return slices.Clone(c.ordered)
}

func (c *Catalog) List(_ context.Context) ([]Persona, error) {
	return c.Personas(), nil
}

func (c *Catalog) Get(_ context.Context, id string) (*Persona, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := c.ordered[i]
	return &p, nil
}
