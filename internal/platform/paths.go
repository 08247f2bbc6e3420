package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "pmforge"

// Paths locates the config file, database, and artifact roots of one install.
type Paths struct {
	ConfigPath   string
	DataDir      string
	DBPath       string
	OutputsDir   string
	TemplatesDir string
}

type Options struct {
	AppName string
	DevMode bool
}

// DefaultPaths resolves paths for the default app name.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves paths from the current user's base directories. Dev mode
// suffixes the app name so a development run never touches real project data.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	env := map[string]string{}
	for _, key := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "APPDATA", "LOCALAPPDATA"} {
		env[key] = os.Getenv(key)
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor computes paths for one platform. XDG variables win on linux and APPDATA/LOCALAPPDATA
// on windows; other platforms use the given base dirs as-is.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configBase := userConfigDir
	dataBase := userDataDir
	configKey, dataKey := "", ""
	switch goos {
	case "linux":
		configKey, dataKey = "XDG_CONFIG_HOME", "XDG_DATA_HOME"
	case "windows":
		configKey, dataKey = "APPDATA", "LOCALAPPDATA"
	}
	if v := strings.TrimSpace(env[configKey]); configKey != "" && v != "" {
		configBase = v
	}
	if v := strings.TrimSpace(env[dataKey]); dataKey != "" && v != "" {
		dataBase = v
	}

	return ForDataDir(filepath.Join(configBase, appName, "config.toml"), filepath.Join(dataBase, appName), appName), nil
}

// ForDataDir derives the database and artifact locations under one data dir.
func ForDataDir(configPath, dataDir, appName string) Paths {
	return Paths{
		ConfigPath:   configPath,
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, appName+".db"),
		OutputsDir:   filepath.Join(dataDir, "outputs"),
		TemplatesDir: filepath.Join(dataDir, "templates"),
	}
}
