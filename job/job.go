// Package job discovers and validates job directories, producing the
// executable descriptors consumed by the scheduler and the runner.
package job

import (
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/secrets"
)

const (
	// ConfigFileName is the required configuration document in a job directory
	ConfigFileName = "config.yml"

	// ScriptFileName is the required executable script. The name is part
	// of the jobs-directory contract and is preserved regardless of the
	// interpreter the supervisor is configured with.
	ScriptFileName = "execute.rb"

	// DefaultTimeoutSeconds applies when the config omits a timeout
	DefaultTimeoutSeconds = 300

	// MinTimeoutSeconds and MaxTimeoutSeconds bound the configured timeout
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 3600
)

var (
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	schedulePattern = regexp.MustCompile(`^[0-9 */,-]+$`)
	envNamePattern  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// EnvVar is one environment entry: a validated name bound to a value
// expression parsed once at build time.
type EnvVar struct {
	Name string
	Expr secrets.ValueExpression
}

// Descriptor is the immutable result of validating one job directory.
// It is built once per reload pass and discarded on the next.
type Descriptor struct {
	Name           string
	Path           string
	Schedule       string
	Description    string
	TimeoutSeconds int
	Environment    []EnvVar
}

// ScriptPath returns the absolute path of the job's executable script.
func (d *Descriptor) ScriptPath() string {
	return filepath.Join(d.Path, ScriptFileName)
}

// ConfigPath returns the absolute path of the job's configuration file.
func (d *Descriptor) ConfigPath() string {
	return filepath.Join(d.Path, ConfigFileName)
}

// RawEnvironment returns the unresolved environment as a mapping of
// name to raw value expression.
func (d *Descriptor) RawEnvironment() map[string]string {
	raw := make(map[string]string, len(d.Environment))
	for _, ev := range d.Environment {
		raw[ev.Name] = ev.Expr.String()
	}
	return raw
}

// Valid reports whether the job directory still looks runnable: both
// required files exist and a schedule is configured. Used to skip
// directories that are not yet complete.
func (d *Descriptor) Valid() bool {
	if _, err := os.Stat(d.ConfigPath()); err != nil {
		return false
	}
	if _, err := os.Stat(d.ScriptPath()); err != nil {
		return false
	}
	return d.Schedule != ""
}

// HasRequiredFiles reports whether dir contains both required job files.
// The reload pass skips directories silently when this is false.
func HasRequiredFiles(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, ScriptFileName)); err != nil {
		return false
	}
	return true
}

// Load builds a descriptor from a job directory.
//
// Validation order: name, directory, raw YAML tag scan, strict parse,
// shape enforcement, then the executable safety scan. Any failure
// discards the descriptor.
func Load(name, dir string) (*Descriptor, error) {
	if name == "" || !namePattern.MatchString(name) {
		return nil, errors.Validationf("Invalid job name: %q", name)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Validationf("Invalid job path: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, errors.Validationf("Job path is not a directory: %s", abs)
	}

	d := &Descriptor{
		Name:           name,
		Path:           abs,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}

	raw, err := os.ReadFile(d.ConfigPath())
	if err != nil {
		return nil, errors.Configurationf("Cannot read %s: %v", ConfigFileName, err)
	}

	// Scan the raw text for unsafe type tags BEFORE handing it to the
	// parser; the typed walk below is the enforcement boundary and this
	// is the compatibility shim.
	if err := ScanUnsafeTags(raw); err != nil {
		return nil, err
	}

	if err := d.parseConfig(raw); err != nil {
		return nil, err
	}

	if err := ScanScript(d.ScriptPath()); err != nil {
		return nil, err
	}

	return d, nil
}

// parseConfig decodes and validates the configuration document.
func (d *Descriptor) parseConfig(raw []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.Configurationf("Invalid YAML in %s: %v", ConfigFileName, err)
	}
	if len(doc.Content) == 0 {
		return errors.Configurationf("Empty configuration in %s", ConfigFileName)
	}

	root := doc.Content[0]
	if err := checkNodeSafety(root); err != nil {
		return err
	}
	if root.Kind != yaml.MappingNode {
		return errors.Configurationf("Configuration must be a mapping, got %s", kindName(root.Kind))
	}

	sawSchedule := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		switch keyNode.Value {
		case "schedule":
			if valNode.Kind != yaml.ScalarNode || valNode.Tag != "!!str" {
				return errors.Configurationf("Schedule must be a string")
			}
			if !schedulePattern.MatchString(valNode.Value) {
				return errors.Configurationf("Invalid cron schedule: %q", valNode.Value)
			}
			d.Schedule = valNode.Value
			sawSchedule = true

		case "description":
			d.Description = valNode.Value

		case "timeout":
			var timeout int
			if err := valNode.Decode(&timeout); err != nil {
				return errors.Configurationf("Timeout must be an integer: %v", err)
			}
			if timeout < MinTimeoutSeconds || timeout > MaxTimeoutSeconds {
				return errors.Configurationf("Timeout must be between %d and %d seconds, got %d",
					MinTimeoutSeconds, MaxTimeoutSeconds, timeout)
			}
			d.TimeoutSeconds = timeout

		case "environment":
			if valNode.Kind != yaml.MappingNode {
				return errors.Validationf("Environment must be a mapping")
			}
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				envKey, envVal := valNode.Content[j], valNode.Content[j+1]
				if !envNamePattern.MatchString(envKey.Value) {
					return errors.Validationf("Invalid environment variable name: %q", envKey.Value)
				}
				if envVal.Kind != yaml.ScalarNode {
					return errors.Validationf("Environment value for %s must be a string", envKey.Value)
				}
				d.Environment = append(d.Environment, EnvVar{
					Name: envKey.Value,
					Expr: secrets.ParseValueExpression(envVal.Value),
				})
			}
		}
	}

	if !sawSchedule {
		return errors.Configurationf("Schedule is required")
	}
	return nil
}

// SecretResolver resolves one parsed value expression. Satisfied by
// *secrets.Store; tests substitute their own.
type SecretResolver interface {
	ResolveExpression(expr secrets.ValueExpression) (string, error)
}

// ResolveEnvironment materializes the descriptor's environment through
// the secrets accessor.
//
// Resolution failure does not fail the descriptor: the unresolved
// mapping is returned verbatim and a warning goes to the side channel,
// so the scheduler keeps operating when secrets are unavailable.
func ResolveEnvironment(d *Descriptor, resolver SecretResolver, log *zap.SugaredLogger) map[string]string {
	resolved := make(map[string]string, len(d.Environment))
	for _, ev := range d.Environment {
		value, err := resolver.ResolveExpression(ev.Expr)
		if err != nil {
			log.Warnf("Warning: Failed to resolve secrets for job %s: %v", d.Name, err)
			return d.RawEnvironment()
		}
		resolved[ev.Name] = value
	}
	return resolved
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
