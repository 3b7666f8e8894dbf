// Package catalog is the static lookup of regions, their countries and the
// provider location code of every country.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultData []byte

// ErrInvalid reports a malformed catalog document.
var ErrInvalid = errors.New("catalog: invalid")

// Country is a display name with its location code.
type Country struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// Region groups countries under one menu entry.
type Region struct {
	Key       string    `yaml:"key"`
	Title     string    `yaml:"title"`
	Image     string    `yaml:"image"`
	Countries []Country `yaml:"countries"`
}

// Catalog is immutable after Load and safe for concurrent use.
type Catalog struct {
	regions  []Region
	byKey    map[string]int
	byName   map[string]entry
	byFolded map[string]entry
	byCode   map[string]entry
}

type entry struct {
	country Country
	region  string
}

// foldKey is the case-insensitive lookup key. Casers are stateful, so each
// call builds its own.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Load parses a YAML catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc struct {
		Regions []Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrInvalid)
	}
	c := &Catalog{
		regions:  doc.Regions,
		byKey:    make(map[string]int, len(doc.Regions)),
		byName:   make(map[string]entry),
		byFolded: make(map[string]entry),
		byCode:   make(map[string]entry),
	}
	for i, r := range doc.Regions {
		if r.Key == "" {
			return nil, fmt.Errorf("%w: region #%d has no key", ErrInvalid, i)
		}
		if _, dup := c.byKey[r.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate region %q", ErrInvalid, r.Key)
		}
		c.byKey[r.Key] = i
		for _, country := range r.Countries {
			if country.Name == "" || country.Code == "" {
				return nil, fmt.Errorf("%w: region %q has a country without name or code", ErrInvalid, r.Key)
			}
			e := entry{country: country, region: r.Key}
			if _, dup := c.byName[country.Name]; dup {
				continue
			}
			c.byName[country.Name] = e
			c.byFolded[foldKey(country.Name)] = e
			c.byCode[strings.ToUpper(country.Code)] = e
		}
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Load(defaultData)
	if err != nil {
		panic(err)
	}
	return c
}

// Regions lists regions in menu order.
func (c *Catalog) Regions() []Region {
	return c.regions
}

// Region returns the region with the given key.
func (c *Catalog) Region(key string) (Region, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Region{}, false
	}
	return c.regions[i], true
}

// Lookup resolves a country display name to its canonical name, location
// code and region key. Exact names match first, then case-insensitively.
func (c *Catalog) Lookup(name string) (Country, string, bool) {
	if e, ok := c.byName[name]; ok {
		return e.country, e.region, true
	}
	if e, ok := c.byFolded[foldKey(name)]; ok {
		return e.country, e.region, true
	}
	return Country{}, "", false
}

// ByCode resolves a location code, as carried by country buttons.
func (c *Catalog) ByCode(code string) (Country, string, bool) {
	e, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return e.country, e.region, ok
}

// Normalize trims free-text input and capitalizes it: first letter upper,
// the rest lower ("япония" -> "Япония").
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s)
	return cases.Upper(language.Russian).String(s[:size]) + cases.Lower(language.Russian).String(s[size:])
}
