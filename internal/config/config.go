// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sevir/agentrelay/pkg/models"
)

// Environment variables the defaults are taken from, one per agent plus
// the optional container image.
var agentPathEnv = map[string]string{
	"claude":   "CLAUDE_PATH",
	"codex":    "CODEX_PATH",
	"gemini":   "GEMINI_PATH",
	"opencode": "OPENCODE_PATH",
	"qwen":     "QWEN_PATH",
}

const dockerImageEnv = "AGENTRELAY_DOCKER_IMAGE"

// Config holds the application configuration.
type Config struct {
	Server          ServerConfig      `json:"server" yaml:"server"`
	Agents          map[string]string `json:"agents" yaml:"agents"`
	DockerImage     string            `json:"docker_image" yaml:"docker_image"`
	ResponseTimeout models.Duration   `json:"response_timeout" yaml:"response_timeout"`
	TerminateGrace  models.Duration   `json:"terminate_grace" yaml:"terminate_grace"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// DefaultConfig returns the default configuration: the five known agents
// resolved from their *_PATH environment variables (falling back to the
// bare command name), no response deadline, and a two second terminate
// grace.
func DefaultConfig() *Config {
	agents := make(map[string]string, len(agentPathEnv))
	for name, envVar := range agentPathEnv {
		path := os.Getenv(envVar)
		if path == "" {
			path = name
		}
		agents[name] = path
	}

	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Agents:         agents,
		DockerImage:    os.Getenv(dockerImageEnv),
		TerminateGrace: models.Duration(2 * time.Second),
	}
}

// Load loads configuration from a file (supports JSON and YAML). With an
// empty path it tries ~/.agentrelay/config.yaml then config.json and falls
// back to defaults when neither exists. File values overlay the defaults;
// agents from the file are merged over the env-derived set.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		home, _ := os.UserHomeDir()
		yamlPath := filepath.Join(home, ".agentrelay", "config.yaml")
		jsonPath := filepath.Join(home, ".agentrelay", "config.json")

		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var loaded Config
	isYAML := strings.HasSuffix(strings.ToLower(path), ".yaml") || strings.HasSuffix(strings.ToLower(path), ".yml")
	if isYAML {
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	cfg.merge(&loaded)

	// Expand ~ in agent executable paths.
	for name, p := range cfg.Agents {
		cfg.Agents[name] = expandHome(p)
	}

	return cfg, nil
}

// merge overlays the non-zero values of loaded onto c.
func (c *Config) merge(loaded *Config) {
	if loaded.Server.Host != "" {
		c.Server.Host = loaded.Server.Host
	}
	if loaded.Server.Port != 0 {
		c.Server.Port = loaded.Server.Port
	}
	for name, path := range loaded.Agents {
		if strings.TrimSpace(path) != "" {
			c.Agents[name] = path
		}
	}
	if loaded.DockerImage != "" {
		c.DockerImage = loaded.DockerImage
	}
	if loaded.ResponseTimeout != 0 {
		c.ResponseTimeout = loaded.ResponseTimeout
	}
	if loaded.TerminateGrace != 0 {
		c.TerminateGrace = loaded.TerminateGrace
	}
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".agentrelay", "config.json")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// KnownAgent checks whether an agent name is configured.
func (c *Config) KnownAgent(name string) bool {
	_, ok := c.Agents[name]
	return ok
}

// expandHome expands ~ to home directory in paths.
func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	// Support "~/..." (and Windows separators just in case)
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~\\") {
		home, _ := os.UserHomeDir()
		rest := path[2:]
		return filepath.Join(home, rest)
	}
	// We intentionally don't expand "~user/..." forms.
	return path
}
