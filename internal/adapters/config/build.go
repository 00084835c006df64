package config

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/zerr"
)

// Environment variables handed to every command.
const (
	EnvTestID         = "TERN_TEST_ID"
	EnvUnit           = "TERN_UNIT"
	EnvModule         = "TERN_MODULE"
	EnvAttempt        = "TERN_ATTEMPT"
	EnvHookLevel      = "TERN_HOOK_LEVEL"
	EnvHookScope      = "TERN_HOOK_SCOPE"
	EnvResourcePrefix = "TERN_RESOURCE_"
	EnvResourceValue  = "TERN_RESOURCE_VALUE"
)

const (
	defaultModule = "default"
	unitRef       = "unit:"
)

func (l *Loader) build(file *SuiteFile, baseDir string) (*domain.Suite, error) {
	cfg, err := engineConfig(file.Engine)
	if err != nil {
		return nil, err
	}

	module := file.Name
	if module == "" {
		module = defaultModule
	}

	resources := make(map[string]domain.ResourceRequest, len(file.Resources))
	for _, dto := range file.Resources {
		req, err := l.resource(dto, file.Env, baseDir)
		if err != nil {
			return nil, err
		}
		resources[dto.Name] = req
	}

	catalog := domain.NewCatalog()
	for _, dto := range file.Tests {
		d, err := l.test(dto, module, file.Env, baseDir, resources)
		if err != nil {
			return nil, err
		}
		if err := catalog.Add(d); err != nil {
			return nil, err
		}
	}

	bindings := domain.NewHookBindings()
	for _, dto := range file.Hooks {
		if err := l.bindHook(bindings, dto, file.Env, baseDir); err != nil {
			return nil, err
		}
	}

	return &domain.Suite{Catalog: catalog, Hooks: bindings, Config: cfg}, nil
}

func engineConfig(dto *EngineDTO) (domain.Config, error) {
	cfg := domain.DefaultConfig()
	if dto == nil {
		return cfg, nil
	}

	if dto.Workers != nil {
		cfg.Workers = *dto.Workers
	}
	if dto.Retries != nil {
		cfg.DefaultRetries = *dto.Retries
	}
	if dto.RetryTimeouts != nil {
		cfg.RetryTimeouts = *dto.RetryTimeouts
	}
	if dto.FailFast != nil {
		cfg.FailFast = *dto.FailFast
	}
	if dto.Timeout != nil {
		d, err := parseDuration(*dto.Timeout, "engine.timeout")
		if err != nil {
			return cfg, err
		}
		cfg.DefaultTimeout = d
	}
	if dto.HookTimeout != nil {
		d, err := parseDuration(*dto.HookTimeout, "engine.hookTimeout")
		if err != nil {
			return cfg, err
		}
		cfg.HookTimeout = d
	}
	return cfg, nil
}

func (l *Loader) resource(dto *ResourceDTO, env map[string]string, baseDir string) (domain.ResourceRequest, error) {
	if dto.Name == "" {
		return domain.ResourceRequest{}, zerr.Wrap(domain.ErrInvalidDescriptor, "resource name is empty")
	}

	scope, err := domain.ParseResourceScope(dto.Scope)
	if err != nil {
		return domain.ResourceRequest{}, zerr.With(err, "resource", dto.Name)
	}

	key := dto.Key
	if scope == domain.ScopeKeyed && key == "" {
		key = dto.Name
	}

	name := dto.Name
	setup := slices.Clone(dto.Setup)
	teardown := slices.Clone(dto.Teardown)

	req := domain.ResourceRequest{
		Name:  name,
		Scope: scope,
		Key:   key,
		Init: func(ctx context.Context) (any, error) {
			if len(setup) == 0 {
				return name, nil
			}
			var stdout bytes.Buffer
			cmd := ports.Command{Args: setup, Dir: baseDir, Env: maps.Clone(env)}
			if err := l.runner.Run(ctx, cmd, &stdout, nil); err != nil {
				return nil, zerr.With(zerr.Wrap(err, "resource setup failed"), "resource", name)
			}
			return strings.TrimSpace(stdout.String()), nil
		},
	}

	if len(teardown) > 0 {
		req.Dispose = func(ctx context.Context, instance any) error {
			vars := maps.Clone(env)
			if vars == nil {
				vars = make(map[string]string, 1)
			}
			vars[EnvResourceValue] = fmt.Sprint(instance)
			cmd := ports.Command{Args: teardown, Dir: baseDir, Env: vars}
			if err := l.runner.Run(ctx, cmd, nil, nil); err != nil {
				return zerr.With(zerr.Wrap(err, "resource teardown failed"), "resource", name)
			}
			return nil
		}
	}
	return req, nil
}

func (l *Loader) test(
	dto *TestDTO,
	module string,
	suiteEnv map[string]string,
	baseDir string,
	resources map[string]domain.ResourceRequest,
) (*domain.TestDescriptor, error) {
	if dto.ID == "" {
		return nil, zerr.Wrap(domain.ErrInvalidDescriptor, "test id is empty")
	}
	if len(dto.Cmd) == 0 && dto.Skip == "" {
		return nil, zerr.With(domain.ErrEmptyCommand, "test", dto.ID)
	}

	timeout, err := parseDuration(dto.Timeout, "timeout")
	if err != nil {
		return nil, zerr.With(err, "test", dto.ID)
	}

	d := &domain.TestDescriptor{
		ID:         domain.NewInternedString(dto.ID),
		Unit:       domain.NewInternedString(unitOf(dto)),
		Module:     domain.NewInternedString(firstNonEmpty(dto.Module, module)),
		Priority:   dto.Priority,
		RetryLimit: dto.Retries,
		Timeout:    timeout,
		Skip:       dto.Skip,
		Constraint: constraintOf(dto),
	}

	d.Dependencies = append(d.Dependencies, refs(dto.DependsOn, false, false)...)
	d.Dependencies = append(d.Dependencies, refs(dto.OptionalDependsOn, true, false)...)
	d.Dependencies = append(d.Dependencies, refs(dto.ProceedOnFailure, false, true)...)

	if dto.Limiter != nil {
		d.Limiter = &domain.ParallelLimit{Name: dto.Limiter.Name, Limit: dto.Limiter.Limit}
	}

	for _, name := range dto.Resources {
		req, ok := resources[name]
		if !ok {
			err := zerr.With(domain.ErrUnknownResource, "resource", name)
			return nil, zerr.With(err, "test", dto.ID)
		}
		d.Resources = append(d.Resources, req)
	}

	env := merge(suiteEnv, dto.Env)
	cmd := ports.Command{
		Args: slices.Clone(dto.Cmd),
		Dir:  resolveDir(baseDir, dto.Dir),
		TTY:  dto.TTY,
	}
	names := slices.Clone(dto.Resources)

	d.Body = func(ctx context.Context, tc *domain.TestContext) error {
		run := cmd
		run.Env = maps.Clone(env)
		run.Env[EnvTestID] = tc.Test.ID.String()
		run.Env[EnvUnit] = tc.Test.Unit.String()
		run.Env[EnvModule] = tc.Test.Module.String()
		run.Env[EnvAttempt] = strconv.Itoa(tc.Attempt)
		for _, name := range names {
			if v, ok := tc.Resource(name); ok {
				run.Env[ResourceEnvName(name)] = fmt.Sprint(v)
			}
		}
		return l.runner.Run(ctx, run, tc.Output, tc.Output)
	}
	return d, nil
}

func (l *Loader) bindHook(b *domain.HookBindings, dto *HookDTO, env map[string]string, baseDir string) error {
	invalid := func(msg string) error {
		return zerr.With(zerr.Wrap(domain.ErrInvalidHook, msg), "hook", dto.Name)
	}

	if len(dto.Cmd) == 0 {
		return invalid("hook command is empty")
	}
	timeout, err := parseDuration(dto.Timeout, "timeout")
	if err != nil {
		return zerr.With(err, "hook", dto.Name)
	}

	hook := domain.Hook{
		Name:    dto.Name,
		Timeout: timeout,
		Run:     l.hookFunc(dto.Cmd, env, baseDir),
	}

	var entry bool
	switch strings.ToLower(dto.Phase) {
	case "before":
		entry = true
	case "after":
	default:
		return invalid("phase must be before or after")
	}

	add := func(set domain.HookSet) domain.HookSet {
		if entry {
			set.Entry = append(set.Entry, hook)
		} else {
			set.Exit = append(set.Exit, hook)
		}
		return set
	}

	switch strings.ToLower(dto.Level) {
	case "session":
		b.Session = add(b.Session)
	case "module":
		if dto.Scope == "" {
			return invalid("module hooks need a scope")
		}
		b.Modules[dto.Scope] = add(b.Modules[dto.Scope])
	case "unit":
		if dto.Scope == "" {
			return invalid("unit hooks need a scope")
		}
		b.Units[dto.Scope] = add(b.Units[dto.Scope])
	case "test":
		if dto.Scope == "" {
			b.EveryTest = add(b.EveryTest)
		} else {
			b.Tests[dto.Scope] = add(b.Tests[dto.Scope])
		}
	default:
		return invalid("level must be session, module, unit or test")
	}
	return nil
}

func (l *Loader) hookFunc(args []string, env map[string]string, baseDir string) domain.HookFunc {
	args = slices.Clone(args)
	return func(ctx context.Context, hc domain.HookContext) error {
		vars := merge(env, nil)
		vars[EnvHookLevel] = hc.Level.String()
		vars[EnvHookScope] = hc.Scope
		if hc.Test != nil {
			vars[EnvTestID] = hc.Test.ID.String()
			vars[EnvAttempt] = strconv.Itoa(hc.Attempt)
		}
		return l.runner.Run(ctx, ports.Command{Args: args, Dir: baseDir, Env: vars}, nil, nil)
	}
}

// ResourceEnvName returns the variable that carries a resource instance into test commands.
func ResourceEnvName(resource string) string {
	upper := strings.ToUpper(resource)
	return EnvResourcePrefix + strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

func refs(targets []string, optional, proceed bool) []domain.DependencyRef {
	out := make([]domain.DependencyRef, 0, len(targets))
	for _, t := range targets {
		var ref domain.DependencyRef
		if unit, ok := strings.CutPrefix(t, unitRef); ok {
			ref = domain.DependsOnUnit(unit)
		} else {
			ref = domain.DependsOn(t)
		}
		ref.Optional = optional
		ref.ProceedOnFailure = proceed
		out = append(out, ref)
	}
	return out
}

func constraintOf(dto *TestDTO) domain.Constraint {
	switch {
	case len(dto.Exclusive) > 0:
		return domain.Exclusive(dto.Exclusive...)
	case dto.Group != nil:
		return domain.ParallelGroup(dto.Group.Name, dto.Group.Order)
	default:
		return domain.Unconstrained()
	}
}

// unitOf defaults the unit to the directory part of the test id.
func unitOf(dto *TestDTO) string {
	if dto.Unit != "" {
		return dto.Unit
	}
	if dir := path.Dir(dto.ID); dir != "." {
		return dir
	}
	return dto.ID
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		err := zerr.With(zerr.Wrap(err, domain.ErrInvalidDuration.Error()), "field", field)
		return 0, zerr.With(err, "value", value)
	}
	return d, nil
}

func resolveDir(baseDir, dir string) string {
	switch {
	case dir == "":
		return baseDir
	case filepath.IsAbs(dir):
		return filepath.Clean(dir)
	default:
		return filepath.Join(baseDir, dir)
	}
}

func merge(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides)+4)
	maps.Copy(out, base)
	maps.Copy(out, overrides)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
