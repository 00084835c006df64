package config

// File names searched for when no suite file is given, in order of preference.
const (
	FileNameYAML    = "tern.yaml"
	FileNameYAMLAlt = "tern.yml"
	FileNameHCL     = "tern.hcl"
)

// SuiteFile is the document decoded from tern.yaml or tern.hcl.
type SuiteFile struct {
	Version   string            `yaml:"version" hcl:"version,optional"`
	Name      string            `yaml:"name" hcl:"name,optional"`
	Env       map[string]string `yaml:"env" hcl:"env,optional"`
	Engine    *EngineDTO        `yaml:"engine" hcl:"engine,block"`
	Resources []*ResourceDTO    `yaml:"resources" hcl:"resource,block"`
	Hooks     []*HookDTO        `yaml:"hooks" hcl:"hook,block"`
	Tests     []*TestDTO        `yaml:"tests" hcl:"test,block"`
}

// EngineDTO configures the engine. Durations use time.ParseDuration syntax.
type EngineDTO struct {
	Workers       *int    `yaml:"workers" hcl:"workers,optional"`
	Timeout       *string `yaml:"timeout" hcl:"timeout,optional"`
	Retries       *int    `yaml:"retries" hcl:"retries,optional"`
	RetryTimeouts *bool   `yaml:"retryTimeouts" hcl:"retry_timeouts,optional"`
	HookTimeout   *string `yaml:"hookTimeout" hcl:"hook_timeout,optional"`
	FailFast      *bool   `yaml:"failFast" hcl:"fail_fast,optional"`
}

// ResourceDTO declares a shared resource backed by setup and teardown commands.
// The trimmed stdout of setup is the resource instance.
type ResourceDTO struct {
	Name     string   `yaml:"name" hcl:"name,label"`
	Scope    string   `yaml:"scope" hcl:"scope,optional"`
	Key      string   `yaml:"key" hcl:"key,optional"`
	Setup    []string `yaml:"setup" hcl:"setup,optional"`
	Teardown []string `yaml:"teardown" hcl:"teardown,optional"`
}

// HookDTO declares a lifecycle command.
type HookDTO struct {
	Name string `yaml:"name" hcl:"name,label"`
	// Level is one of session, module, unit or test.
	Level string `yaml:"level" hcl:"level"`
	// Scope names the module or unit. Test hooks without a scope wrap every test.
	Scope string `yaml:"scope" hcl:"scope,optional"`
	// Phase is before or after.
	Phase   string   `yaml:"phase" hcl:"phase"`
	Cmd     []string `yaml:"cmd" hcl:"cmd"`
	Timeout string   `yaml:"timeout" hcl:"timeout,optional"`
}

// TestDTO declares one shell-backed test.
type TestDTO struct {
	ID     string            `yaml:"id" hcl:"id,label"`
	Unit   string            `yaml:"unit" hcl:"unit,optional"`
	Module string            `yaml:"module" hcl:"module,optional"`
	Cmd    []string          `yaml:"cmd" hcl:"cmd"`
	Dir    string            `yaml:"dir" hcl:"dir,optional"`
	Env    map[string]string `yaml:"env" hcl:"env,optional"`
	TTY    bool              `yaml:"tty" hcl:"tty,optional"`

	// References are test ids or "unit:<name>".
	DependsOn         []string `yaml:"dependsOn" hcl:"depends_on,optional"`
	OptionalDependsOn []string `yaml:"optionalDependsOn" hcl:"optional_depends_on,optional"`
	ProceedOnFailure  []string `yaml:"proceedOnFailure" hcl:"proceed_on_failure,optional"`

	Exclusive []string    `yaml:"exclusive" hcl:"exclusive,optional"`
	Group     *GroupDTO   `yaml:"group" hcl:"group,block"`
	Limiter   *LimiterDTO `yaml:"limiter" hcl:"limiter,block"`
	Priority  int         `yaml:"priority" hcl:"priority,optional"`
	Retries   int         `yaml:"retries" hcl:"retries,optional"`
	Timeout   string      `yaml:"timeout" hcl:"timeout,optional"`
	Skip      string      `yaml:"skip" hcl:"skip,optional"`
	Resources []string    `yaml:"resources" hcl:"resources,optional"`
}

// GroupDTO places a test in a parallel group.
type GroupDTO struct {
	Name  string `yaml:"name" hcl:"name,label"`
	Order int    `yaml:"order" hcl:"order,optional"`
}

// LimiterDTO caps the concurrency of the tests sharing Name.
type LimiterDTO struct {
	Name  string `yaml:"name" hcl:"name,label"`
	Limit int    `yaml:"limit" hcl:"limit"`
}
