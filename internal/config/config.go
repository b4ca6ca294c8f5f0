// Package config loads the mdstats configuration file.
//
// The file is YAML. Loading runs in four steps:
//  1. optional ${VAR} expansion from the environment (drone/envsubst)
//  2. validation against the embedded CUE #Config schema, which rejects
//     unknown keys and out-of-range values with a path in the message
//  3. strict decoding into Config (yaml.v3, KnownFields)
//  4. defaults for everything omitted
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mdstats/internal/basefilter"
	"github.com/roach88/mdstats/internal/reference"
	"github.com/roach88/mdstats/internal/summary"
)

//go:embed schema.cue
var schemaCUE string

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Federation modes.
const (
	FederationLocal  = "local"
	FederationGlobal = "global"

	// GlobalPrefix is prepended to every collection name in global mode.
	GlobalPrefix = "global."
)

// Defaults.
const (
	DefaultStorePath     = "mdstats.db"
	DefaultMongoDatabase = "mdstats"
	DefaultListenAddress = ":8000"
)

// Config is the full mdstats configuration.
type Config struct {
	Environment string                     `yaml:"environment"`
	Federation  string                     `yaml:"federation"`
	Store       StoreConfig                `yaml:"store"`
	Server      ServerConfig               `yaml:"server"`
	Query       QueryConfig                `yaml:"query"`
	References  map[string]ReferenceConfig `yaml:"references"`
	Hosts       map[string]HostConfig      `yaml:"hosts"`
}

// StoreConfig selects and locates the document store.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// QueryConfig tunes query execution.
type QueryConfig struct {
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups"`
}

// ReferenceConfig is one reference catalog entry.
type ReferenceConfig struct {
	Collection      string `yaml:"collection"`
	IDField         string `yaml:"id_field"`
	ProjectIDsField string `yaml:"project_ids_field"`
}

// HostConfig restricts requests to a host to one project collection.
type HostConfig struct {
	Collection string `yaml:"collection"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates the configuration file at path.
func Load(path string, expandEnv bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data, expandEnv)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes configuration YAML.
func Parse(data []byte, expandEnv bool) (*Config, error) {
	if expandEnv {
		s, err := envsubst.EvalEnv(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to expand env vars: %w", err)
		}
		data = []byte(s)
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSchema checks the raw document against #Config.
func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	value := schema.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Federation == "" {
		c.Federation = FederationLocal
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Database == "" {
		c.Store.Database = DefaultMongoDatabase
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Query.MaxConcurrentLookups == 0 {
		c.Query.MaxConcurrentLookups = reference.DefaultMaxConcurrentLookups
	}
	if len(c.References) == 0 {
		c.References = make(map[string]ReferenceConfig)
		for _, spec := range reference.DefaultSpecs() {
			c.References[spec.Name] = ReferenceConfig{
				Collection:      spec.Collection,
				IDField:         spec.IDField,
				ProjectIDsField: spec.ProjectIDsField,
			}
		}
	}
}

// Validate checks constraints the schema cannot express. Load calls it;
// call it again after overriding fields from flags.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Store.URI == "" {
			return errors.New("invalid config: store.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("invalid config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.Federation {
	case FederationLocal, FederationGlobal:
	default:
		return fmt.Errorf("invalid config: unknown federation %q", c.Federation)
	}
	if c.Query.MaxConcurrentLookups < 1 {
		return fmt.Errorf("invalid config: query.max_concurrent_lookups must be >= 1, got %d", c.Query.MaxConcurrentLookups)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Collection returns the stored name of a local collection name.
func (c *Config) Collection(name string) string {
	if c.Federation == FederationGlobal {
		return GlobalPrefix + name
	}
	return name
}

// ProjectsCollection returns the stored name of the projects collection.
func (c *Config) ProjectsCollection() string {
	return c.Collection(summary.ProjectsCollection)
}

// Catalog builds the reference catalog, with collection names federated.
func (c *Config) Catalog() (*reference.Catalog, error) {
	names := make([]string, 0, len(c.References))
	for name := range c.References {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]reference.Spec, 0, len(names))
	for _, name := range names {
		ref := c.References[name]
		specs = append(specs, reference.Spec{
			Name:            name,
			Collection:      c.Collection(ref.Collection),
			IDField:         ref.IDField,
			ProjectIDsField: ref.ProjectIDsField,
		})
	}
	return reference.NewCatalog(specs...)
}

// BaseFilter returns the base predicate provider for this deployment.
func (c *Config) BaseFilter() basefilter.Provider {
	hosts := make(map[string]string, len(c.Hosts))
	for host, h := range c.Hosts {
		hosts[strings.ToLower(host)] = h.Collection
	}
	return basefilter.Provider{Environment: c.Environment, Hosts: hosts}
}
