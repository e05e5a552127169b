package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	StorageLocal  = "local"
	StorageRemote = "remote"
)

type Config struct {
	Username    string `json:"username"`
	Storage     string `json:"storage"`
	DBPath      string `json:"db_path"`
	DatabaseURL string `json:"database_url"`
	WebEnabled  bool   `json:"web_enabled"`
	WebPort     int    `json:"web_port"`
}

func Default() Config {
	return Config{Username: "default", Storage: StorageLocal, WebPort: 8484}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "daygrid", "config.json"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
