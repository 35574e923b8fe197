// Package paths centralizes the filesystem layout conventions the trust
// subsystem relies on: the trust-store file, plugin discovery roots, and
// the daemon's runtime/log/PID locations.
package paths

import (
	"os"
	"path/filepath"
)

const (
	// TrustStoreFileName is the file name of the trust store under its
	// owning directory.
	TrustStoreFileName = "trusted-plugins.json"

	// PluginManifestDir is the directory inside a plugin root that carries
	// its manifest (spec.md §6: "<pluginRoot>/.vellum-plugin/plugin.json").
	PluginManifestDir = ".vellum-plugin"

	// PluginManifestFile is the manifest file name inside PluginManifestDir.
	PluginManifestFile = "plugin.json"
)

// PathConfig centralizes all filesystem path configuration for the trust
// subsystem and its optional daemon.
type PathConfig struct {
	// Base directories
	RuntimeDir string `yaml:"runtime_dir"`
	LogsDir    string `yaml:"logs_dir"`
	ConfigDir  string `yaml:"config_dir"`

	// Specific files
	PIDFile        string `yaml:"pid_file"`
	LogFile        string `yaml:"log_file"`
	TrustStoreFile string `yaml:"trust_store_file"`

	// Discovery roots, in priority order: project, user, global, builtin.
	DiscoveryRoots []string `yaml:"discovery_roots"`
}

// DefaultPaths returns the default path configuration rooted at the
// user's home directory, per spec.md §6.
func DefaultPaths() *PathConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	vellumHome := filepath.Join(home, ".vellum")

	return &PathConfig{
		RuntimeDir: filepath.Join(vellumHome, "run"),
		LogsDir:    filepath.Join(vellumHome, "logs"),
		ConfigDir:  vellumHome,

		PIDFile:        filepath.Join(vellumHome, "run", "vellum-trustd.pid"),
		LogFile:        filepath.Join(vellumHome, "logs", "vellum-trustd.log"),
		TrustStoreFile: filepath.Join(vellumHome, TrustStoreFileName),

		DiscoveryRoots: []string{
			filepath.Join(".vellum", "plugins"), // project root, resolved relative to cwd by the caller
			filepath.Join(vellumHome, "plugins"), // user
			"/usr/local/share/vellum/plugins",    // global
			"/usr/share/vellum/plugins",          // builtin
		},
	}
}

// SystemPaths returns system-wide paths for a service deployment of
// vellum-trustd.
func SystemPaths() *PathConfig {
	return &PathConfig{
		RuntimeDir: "/var/run/vellum",
		LogsDir:    "/var/log/vellum",
		ConfigDir:  "/etc/vellum",

		PIDFile:        "/var/run/vellum/vellum-trustd.pid",
		LogFile:        "/var/log/vellum/vellum-trustd.log",
		TrustStoreFile: "/var/lib/vellum/trusted-plugins.json",

		DiscoveryRoots: []string{
			filepath.Join(".vellum", "plugins"),
			"/var/lib/vellum/plugins",
			"/usr/local/share/vellum/plugins",
			"/usr/share/vellum/plugins",
		},
	}
}

// EnsureDirectories creates all required directories.
func (p *PathConfig) EnsureDirectories() error {
	dirs := []string{p.RuntimeDir, p.LogsDir, p.ConfigDir, filepath.Dir(p.TrustStoreFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// GetPIDFile returns the PID file path with fallback logic.
func (p *PathConfig) GetPIDFile() string {
	if p.PIDFile != "" {
		return p.PIDFile
	}
	return DefaultPaths().PIDFile
}

// GetLogFile returns the log file path with fallback logic.
func (p *PathConfig) GetLogFile() string {
	if p.LogFile != "" {
		return p.LogFile
	}
	return DefaultPaths().LogFile
}

// GetTrustStoreFile returns the configured trust-store path, defaulting to
// "<user-home>/.vellum/trusted-plugins.json" per spec.md §6. An explicitly
// set path, relative or absolute, is returned as given (pkg/trust does not
// reject relative paths either); this accessor only resolves the "unset" case.
func (p *PathConfig) GetTrustStoreFile() string {
	if p.TrustStoreFile != "" {
		return p.TrustStoreFile
	}
	return DefaultPaths().TrustStoreFile
}

// GetDefaultConfigPath returns the default daemon configuration file path.
func GetDefaultConfigPath() string {
	if configPath := os.Getenv("VELLUM_CONFIG"); configPath != "" {
		return configPath
	}

	systemConfig := "/etc/vellum/trustd.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig
	}

	return filepath.Join(DefaultPaths().ConfigDir, "trustd.yaml")
}

// GetDefaultPIDFile returns the default PID file path.
func GetDefaultPIDFile() string {
	return DefaultPaths().GetPIDFile()
}

// GetDefaultLogFile returns the default log file path.
func GetDefaultLogFile() string {
	return DefaultPaths().GetLogFile()
}
