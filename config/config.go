// Package config loads the YAML registry describing the configured
// databases and the global defaults.
//
// Example:
//
//	indexdir: /data/index
//	pagesize: 4096
//	cachesize: 200
//	databases:
//	  swissprot:
//	    format: swiss
//	    directory: /data/swiss
//	    files: [uniprot_sprot.dat]
//	    fields: [id, ac, sv, kw, des, org]
//	server:
//	  listen: ":8080"
//	log:
//	  level: info
package config

import (
	"os"
	"path/filepath"

	"dbx/dbxerr"
	"dbx/internal/sys"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config flag is
// given.
const EnvVar = "DBX_CONFIG"

type Database struct {
	IndexDir  string   `yaml:"indexdir"`
	Format    string   `yaml:"format"`
	Directory string   `yaml:"directory"`
	Files     []string `yaml:"files"`
	Fields    []string `yaml:"fields"`
}

type Server struct {
	Listen       string `yaml:"listen"`
	CacheEntries int64  `yaml:"cache_entries"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	IndexDir  string              `yaml:"indexdir"`
	PageSize  int                 `yaml:"pagesize"`
	CacheSize int                 `yaml:"cachesize"`
	Databases map[string]Database `yaml:"databases"`
	Server    Server              `yaml:"server"`
	Log       Log                 `yaml:"log"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	return &Config{
		PageSize:  sys.PageSize(),
		CacheSize: 100,
		Databases: map[string]Database{},
		Server:    Server{Listen: ":8080", CacheEntries: 10000},
		Log:       Log{Level: "info"},
	}
}

// ResolvePath picks the configuration file: the flag value when set, then
// $DBX_CONFIG, then ~/.dbx.yaml.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dbx.yaml"
	}
	return filepath.Join(home, ".dbx.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, dbxerr.IO(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse config %s", path), dbxerr.ErrFormat)
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]Database{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = sys.PageSize()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	return cfg, nil
}

// IndexDirFor resolves the index directory of db: override when given,
// then the database entry, then the global indexdir.
func (c *Config) IndexDirFor(db, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if d, ok := c.Databases[db]; ok && d.IndexDir != "" {
		return d.IndexDir, nil
	}
	if c.IndexDir != "" {
		return c.IndexDir, nil
	}
	return "", errors.Mark(errors.Newf("no index directory configured for database %q", db), dbxerr.ErrNotFound)
}

// DataFiles returns the configured data files of db with the database
// directory applied.
func (d Database) DataFiles() []string {
	out := make([]string, 0, len(d.Files))
	for _, f := range d.Files {
		if d.Directory != "" && !filepath.IsAbs(f) {
			f = filepath.Join(d.Directory, f)
		}
		out = append(out, f)
	}
	return out
}
