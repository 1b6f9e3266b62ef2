// internal/config/config.go
//
// This package handles configuration and the .draftflow directory structure.
// Every project that drives drafting jobs gets a .draftflow/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project
	Dir = ".draftflow"

	// DefaultEngineURL points at the local stub engine.
	DefaultEngineURL = "http://127.0.0.1:8790"
	// DefaultRequestTimeout bounds a single call to the engine.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultPollInterval is the wait between status fetches while running.
	DefaultPollInterval = 2 * time.Second

	BackendFile      = "file"
	BackendFirestore = "firestore"

	defaultDraftsDir   = "drafts"
	defaultCollection  = "drafts"
	defaultExportPath  = "artifacts/"
	defaultProtocol    = "ternary"
	defaultLogFileName = "draftflow.log"
)

const defaultProjectConfigYAML = `# draftflow project configuration
version: 1

engine:
  base_url: http://127.0.0.1:8790
  # Static bearer token passed through to the engine.
  auth_token: ""
  request_timeout: 30s

poller:
  interval: 2s

# Where edited drafts are kept. backend: file or firestore.
drafts:
  backend: file
  dir: drafts
  # Firestore backend:
  # project_id: my-gcp-project
  # collection: drafts
  # credentials_file: /path/to/service-account.json

# Upload completed documents to a GCS bucket. Leave bucket empty to disable.
export:
  bucket: ""
  prefix: artifacts/

review:
  protocol: ternary
`

// EngineConfig locates the remote workflow engine.
type EngineConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AuthToken      string        `yaml:"auth_token,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollerConfig tunes status polling.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DraftsConfig selects the draft store backend.
type DraftsConfig struct {
	Backend         string `yaml:"backend"`
	Dir             string `yaml:"dir,omitempty"`
	ProjectID       string `yaml:"project_id,omitempty"`
	Collection      string `yaml:"collection,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// ExportConfig describes where completed documents are uploaded.
type ExportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix,omitempty"`
}

// ReviewConfig holds review gate preferences.
type ReviewConfig struct {
	Protocol string `yaml:"protocol"`
}

// ProjectConfig models .draftflow/config.yaml.
type ProjectConfig struct {
	Version int          `yaml:"version"`
	Engine  EngineConfig `yaml:"engine"`
	Poller  PollerConfig `yaml:"poller"`
	Drafts  DraftsConfig `yaml:"drafts"`
	Export  ExportConfig `yaml:"export"`
	Review  ReviewConfig `yaml:"review"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory where the user ran `draftflow` from
	ProjectDir string

	// DraftflowDir is ProjectDir/.draftflow
	DraftflowDir string

	Project ProjectConfig
}

// InitDir creates the .draftflow directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// .draftflow/
// ├── config.yaml
// ├── logs/     <- client log plus one workflow log per thread
// └── drafts/   <- file backend drafts
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, defaultDraftsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// Load reads .draftflow/config.yaml under projectDir. A missing file yields
// defaults. Environment overrides are applied on top of the file.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:   projectDir,
		DraftflowDir: filepath.Join(projectDir, Dir),
		Project:      defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.DraftflowDir, "logs")
}

// LogFile returns the client log path.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogsDir(), defaultLogFileName)
}

// WorkflowLogPath returns the logbook file for one thread.
func (c *Config) WorkflowLogPath(threadID string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, threadID)
	return filepath.Join(c.LogsDir(), name+".log")
}

// DraftsDir returns the directory used by the file draft backend.
func (c *Config) DraftsDir() string {
	if c.Project.Drafts.Dir == "" {
		return filepath.Join(c.DraftflowDir, defaultDraftsDir)
	}
	return c.Project.Drafts.Dir
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DraftflowDir, "config.yaml")
}

// ReviewProtocol returns the configured review protocol name.
func (c *Config) ReviewProtocol() string {
	return c.Project.Review.Protocol
}

// SetReviewProtocol updates the default review protocol and persists it back
// to .draftflow/config.yaml.
func (c *Config) SetReviewProtocol(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("config: review protocol is required")
	}
	previous := c.Project.Review.Protocol
	c.Project.Review.Protocol = name
	if err := c.saveProjectConfig(); err != nil {
		c.Project.Review.Protocol = previous
		return err
	}
	return nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("config: read %s: %w", path, err)
	default:
		var parsed ProjectConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.Project = parsed
	}

	c.Project.applyEnvOverrides()
	c.Project.applyDefaults()
	c.Project.normalize(c.DraftflowDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_ENGINE_URL")); v != "" {
		pc.Engine.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_AUTH_TOKEN")); v != "" {
		pc.Engine.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_POLL_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pc.Poller.Interval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_DRAFTS_BACKEND")); v != "" {
		pc.Drafts.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_FIRESTORE_PROJECT")); v != "" {
		pc.Drafts.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv("DRAFTFLOW_EXPORT_BUCKET")); v != "" {
		pc.Export.Bucket = v
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Engine.BaseURL) == "" {
		pc.Engine.BaseURL = DefaultEngineURL
	}
	if pc.Engine.RequestTimeout <= 0 {
		pc.Engine.RequestTimeout = DefaultRequestTimeout
	}
	if pc.Poller.Interval <= 0 {
		pc.Poller.Interval = DefaultPollInterval
	}
	if strings.TrimSpace(pc.Drafts.Backend) == "" {
		pc.Drafts.Backend = BackendFile
	}
	if strings.TrimSpace(pc.Drafts.Collection) == "" {
		pc.Drafts.Collection = defaultCollection
	}
	if pc.Export.Prefix == "" {
		pc.Export.Prefix = defaultExportPath
	}
	if strings.TrimSpace(pc.Review.Protocol) == "" {
		pc.Review.Protocol = defaultProtocol
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Engine.BaseURL = strings.TrimRight(strings.TrimSpace(pc.Engine.BaseURL), "/")
	pc.Engine.AuthToken = strings.TrimSpace(pc.Engine.AuthToken)
	pc.Drafts.Backend = strings.ToLower(strings.TrimSpace(pc.Drafts.Backend))
	pc.Drafts.Dir = resolvePath(base, pc.Drafts.Dir)
	pc.Drafts.ProjectID = strings.TrimSpace(pc.Drafts.ProjectID)
	pc.Drafts.Collection = strings.TrimSpace(pc.Drafts.Collection)
	pc.Drafts.CredentialsFile = resolvePath(base, pc.Drafts.CredentialsFile)
	pc.Export.Bucket = strings.TrimSpace(pc.Export.Bucket)
	pc.Export.Prefix = strings.TrimLeft(strings.TrimSpace(pc.Export.Prefix), "/")
	pc.Review.Protocol = strings.ToLower(strings.TrimSpace(pc.Review.Protocol))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(pc.Engine.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("engine.base_url must be an http(s) URL, got %q", pc.Engine.BaseURL)
	}
	if pc.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	switch pc.Drafts.Backend {
	case BackendFile:
	case BackendFirestore:
		if pc.Drafts.ProjectID == "" {
			return fmt.Errorf("drafts.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("drafts.backend must be 'file' or 'firestore'")
	}
	switch pc.Review.Protocol {
	case "binary", "ternary":
	default:
		return fmt.Errorf("review.protocol must be 'binary' or 'ternary'")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.DraftflowDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.DraftflowDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure draftflow dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
