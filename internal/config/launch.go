package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yelban/kiroku-memory/internal/paths"
)

// LaunchSpec describes how to spawn the supervised service process.
// It is provided by the surrounding shell as a YAML file; the daemon
// treats every value, credentials included, as an opaque string.
type LaunchSpec struct {
	// Command is the executable path. Required.
	Command string `yaml:"command"`

	// Args are the command arguments.
	Args []string `yaml:"args"`

	// WorkingDir is the child's working directory. Defaults to the
	// daemon's working directory when empty.
	WorkingDir string `yaml:"working_dir"`

	// Env holds extra environment variables for the child.
	Env map[string]string `yaml:"env"`

	// EnvPassthrough names variables copied from the daemon's own
	// environment into the child's, when set. The shell uses this to
	// forward secrets without writing them to disk.
	EnvPassthrough []string `yaml:"env_passthrough"`
}

// LoadLaunchSpec loads the launch spec from the default path.
func LoadLaunchSpec() (*LaunchSpec, error) {
	path, err := paths.LaunchSpecPath()
	if err != nil {
		return nil, err
	}
	return LoadLaunchSpecFromPath(path)
}

// LoadLaunchSpecFromPath loads and validates a launch spec file.
func LoadLaunchSpecFromPath(path string) (*LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch spec: %w", err)
	}

	var spec LaunchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse launch spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the spec is runnable.
func (s *LaunchSpec) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("launch spec: command is required")
	}
	return nil
}

// Environ builds the child process environment: the daemon's environment,
// then passthrough variables, then explicit Env entries. Later entries win
// because os/exec uses the last value for duplicate keys.
func (s *LaunchSpec) Environ() []string {
	env := os.Environ()
	for _, name := range s.EnvPassthrough {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	for name, value := range s.Env {
		env = append(env, name+"="+value)
	}
	return env
}
