// Package reference rewrites filters that name fields of external reference
// collections (proteins, ligands) into membership filters over the projects
// collection.
package reference

import (
	"fmt"
	"slices"
	"strings"
)

// Header is the field prefix that scopes a predicate to a reference
// collection: references.<name>.<inner>.
const Header = "references."

// Spec describes one reference collection.
type Spec struct {
	// Name is the reference name used in field paths ("proteins").
	Name string
	// Collection is the external collection holding the reference documents.
	Collection string
	// IDField is the identifier field inside Collection ("uniprot").
	IDField string
	// ProjectIDsField is the project field listing matched identifiers
	// ("metadata.REFERENCES").
	ProjectIDsField string
}

// DefaultSpecs returns the catalog used when configuration names none.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "proteins", Collection: "references", IDField: "uniprot", ProjectIDsField: "metadata.REFERENCES"},
		{Name: "ligands", Collection: "ligands", IDField: "pubchem", ProjectIDsField: "metadata.LIGANDS"},
	}
}

// Catalog is the immutable set of known reference collections.
// It is safe for concurrent use.
type Catalog struct {
	specs map[string]Spec
}

// NewCatalog validates specs and builds a Catalog. Names must be unique and
// every field must be set. Names may not contain dots, since the name is a
// single path segment.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		switch {
		case s.Name == "":
			return nil, fmt.Errorf("reference spec with empty name")
		case strings.Contains(s.Name, "."):
			return nil, fmt.Errorf("reference %q: name must not contain '.'", s.Name)
		case s.Collection == "":
			return nil, fmt.Errorf("reference %q: empty collection", s.Name)
		case s.IDField == "":
			return nil, fmt.Errorf("reference %q: empty id field", s.Name)
		case s.ProjectIDsField == "":
			return nil, fmt.Errorf("reference %q: empty project ids field", s.Name)
		}
		if _, dup := c.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate reference %q", s.Name)
		}
		c.specs[s.Name] = s
	}
	return c, nil
}

// MustCatalog is NewCatalog for static, known-good specs.
func MustCatalog(specs ...Spec) *Catalog {
	c, err := NewCatalog(specs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the spec registered under name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Names returns the registered reference names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for n := range c.specs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Specs returns every spec sorted by name.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, 0, len(c.specs))
	for _, n := range c.Names() {
		out = append(out, c.specs[n])
	}
	return out
}
