package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable keys
const (
	EnvCompiler = "SHDC_COMPILER"
	EnvSrcDir   = "SHDC_SRC_DIR"
	EnvDstDir   = "SHDC_DST_DIR"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ReadEnvFile reads KEY=value pairs from a dotenv file. A missing file is not
// an error and yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

// Lookup consults the process environment first, then fileVals.
func Lookup(fileVals map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}
}

// ApplyEnv overrides the compiler and directories from lookup, then
// revalidates.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup(EnvCompiler); ok {
		c.Compiler = v
	}
	if v, ok := lookup(EnvSrcDir); ok {
		c.SrcDir = v
	}
	if v, ok := lookup(EnvDstDir); ok {
		c.DstDir = v
	}
	c.normalize()
	return c.Validate()
}

// Load builds the effective configuration: defaults, then the config file at
// path (skipped if path is empty), then environment overrides with the .env
// file at envPath as a fallback source.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = ParseFile(path); err != nil {
			return nil, err
		}
	}

	fileVals := map[string]string{}
	if envPath != "" {
		var err error
		if fileVals, err = ReadEnvFile(envPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(Lookup(fileVals)); err != nil {
		return nil, err
	}
	return cfg, nil
}
