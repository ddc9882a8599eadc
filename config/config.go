// Package config holds the process-wide option struct the front-end
// constructs and validates before an Instance exists. Populated
// by a CLI flag parser layered over an optional YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the full set of process-wide knobs: data directory, default
// cipher, cache capacities, max JSON payload size, and max user/db/table/
// block counts.
type Options struct {
	DataDir          string `yaml:"data_dir"`
	DefaultCipherID  string `yaml:"default_cipher"`
	UserCacheSize    int    `yaml:"user_cache_size"`
	DatabaseCacheSize int   `yaml:"database_cache_size"`
	TableCacheSize   int    `yaml:"table_cache_size"`
	BlockCacheSize   int    `yaml:"block_cache_size"`
	MaxJSONPayload   int64  `yaml:"max_json_payload"`
	MaxUsers         int    `yaml:"max_users"`
	MaxDatabases     int    `yaml:"max_databases"`
	MaxTables        int    `yaml:"max_tables"`
	MaxBlocks        int    `yaml:"max_blocks"`
}

// Defaults returns the baseline option set a bare CLI invocation starts
// from, before flag and YAML layering.
func Defaults() Options {
	return Options{
		DataDir:           "./data",
		DefaultCipherID:   "none",
		UserCacheSize:     256,
		DatabaseCacheSize: 64,
		TableCacheSize:    1024,
		BlockCacheSize:    4096,
		MaxJSONPayload:    64 << 20,
		MaxUsers:          10000,
		MaxDatabases:      1000,
		MaxTables:         100000,
		MaxBlocks:         1 << 20,
	}
}

// LoadYAML layers o with the contents of the YAML file at path, overriding
// only the fields present in the file.
func LoadYAML(o *Options, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(buf, o)
}

// Validate rejects zero or negative cache capacities and limits: minimum
// cache capacities are enforced here before an Instance is ever
// constructed.
func (o Options) Validate() error {
	checks := []struct {
		name string
		val  int64
	}{
		{"user_cache_size", int64(o.UserCacheSize)},
		{"database_cache_size", int64(o.DatabaseCacheSize)},
		{"table_cache_size", int64(o.TableCacheSize)},
		{"block_cache_size", int64(o.BlockCacheSize)},
		{"max_json_payload", o.MaxJSONPayload},
		{"max_users", int64(o.MaxUsers)},
		{"max_databases", int64(o.MaxDatabases)},
		{"max_tables", int64(o.MaxTables)},
		{"max_blocks", int64(o.MaxBlocks)},
	}
	for _, c := range checks {
		if c.val <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", c.name, c.val)
		}
	}
	if o.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if o.DefaultCipherID == "" {
		return fmt.Errorf("config: default_cipher must not be empty")
	}
	return nil
}
