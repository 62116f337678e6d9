package helper

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultConfigDir is the last directory searched for configuration files
	DefaultConfigDir = "/etc/osrf"
	// DefaultPIDDir holds one PID file per hosted service
	DefaultPIDDir = "/var/run/osrf"
	// ConfigDirEnv names an extra directory searched before DefaultConfigDir
	ConfigDirEnv = "OSRF_CONFIG_DIR"
)

// GetCfgPath resolves filename against the working directory, ./configs,
// $OSRF_CONFIG_DIR and DefaultConfigDir, in that order. When no candidate
// exists the DefaultConfigDir path is returned so the caller's read error
// names it.
func GetCfgPath(filename string) string {
	if filename == "" || filepath.IsAbs(filename) {
		return filename
	}

	for _, dir := range configDirs() {
		candidate, err := filepath.Abs(filepath.Join(dir, filename))
		if err != nil {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(DefaultConfigDir, filename)
}

func configDirs() []string {
	dirs := []string{".", "configs"}
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		dirs = append(dirs, dir)
	}
	return append(dirs, DefaultConfigDir)
}

// GetPIDPath returns the PID file of service. pid is either a file ending
// in .pid, used as is, or a directory holding <service>.pid; empty selects
// DefaultPIDDir. Relative paths are made absolute against the working
// directory.
func GetPIDPath(pid, service string) string {
	if pid == "" {
		pid = DefaultPIDDir
	}
	if filepath.Ext(pid) != ".pid" {
		pid = filepath.Join(pid, pidName(service))
	}
	if filepath.IsAbs(pid) {
		return pid
	}
	abs, err := filepath.Abs(pid)
	if err != nil {
		return pid
	}
	return abs
}

func pidName(service string) string {
	if service == "" {
		return "osrf-server.pid"
	}
	return strings.ReplaceAll(service, string(filepath.Separator), "_") + ".pid"
}
