// Package config loads suite files into engine suites.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.CatalogLoader for tern.yaml and tern.hcl files.
type Loader struct {
	runner ports.CommandRunner
	logger ports.Logger
}

// NewLoader creates a Loader. Tests, hooks and resources it builds run their commands through runner.
func NewLoader(runner ports.CommandRunner, logger ports.Logger) *Loader {
	return &Loader{runner: runner, logger: logger}
}

// Load reads the suite file at path. An empty path searches the working directory and its parents.
func (l *Loader) Load(path string) (*domain.Suite, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrConfigRead.Error())
		}
		found, err := Find(cwd)
		if err != nil {
			return nil, err
		}
		path = found
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigRead.Error()), "path", path)
	}

	file, err := Decode(abs)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded suite file " + abs)
	return l.build(file, filepath.Dir(abs))
}

// Find returns the first suite file found in dir or its parents.
func Find(dir string) (string, error) {
	current := dir
	for {
		for _, name := range []string{FileNameYAML, FileNameYAMLAlt, FileNameHCL} {
			candidate := filepath.Join(current, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", zerr.With(domain.ErrConfigNotFound, "dir", dir)
		}
		current = parent
	}
}

// Decode reads a suite file, choosing the format by extension.
func Decode(path string) (*SuiteFile, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(path)
	case ".hcl":
		return decodeHCL(path)
	default:
		return nil, zerr.With(domain.ErrUnsupportedFormat, "path", path)
	}
}

func decodeYAML(path string) (*SuiteFile, error) {
	// #nosec G304 -- path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigRead.Error()), "path", path)
	}

	var file SuiteFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParse.Error()), "path", path)
	}
	return &file, nil
}

// decodeHCL evaluates the file with an "env" object holding the process environment,
// so attributes may reference env.HOME and similar.
func decodeHCL(path string) (*SuiteFile, error) {
	// #nosec G304 -- path is chosen by the user
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigRead.Error()), "path", path)
	}

	var file SuiteFile
	if err := hclsimple.Decode(path, src, evalContext(), &file); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParse.Error()), "path", path)
	}
	return &file, nil
}

func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}
