package main

import (
	"fmt"
	"os"

	"hookdeploy/internal/config"
	"hookdeploy/internal/security"
	"hookdeploy/pkg/fileutil"
)

// loadConfig resolves the configuration: defaults, then the YAML file (the
// --config flag or the first file found in the default locations), then
// .env and the environment. Command flags are applied by the caller.
func loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}

	path := configFile
	if path == "" {
		path = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(config.FileName))
	} else if !fileutil.FileExists(path) {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if path != "" && len(cfg.Secrets()) > 0 {
		if err := security.ValidateSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v; run chmod %o %s\n", err, security.PermConfigFile, path)
		}
	}
	return cfg, path, nil
}
