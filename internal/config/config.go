package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the full prodtrack configuration.
type Config struct {
	// DataDir holds the session database and credential files.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// DBPath overrides the session database location. Empty means
	// DataDir/sessions.db.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	Timer  TimerConfig  `yaml:"timer" mapstructure:"timer"`
	Sheets SheetsConfig `yaml:"sheets" mapstructure:"sheets"`
}

// TimerConfig tunes idle and long-pause detection.
type TimerConfig struct {
	IdleThresholdSeconds  int `yaml:"idle_threshold_seconds" mapstructure:"idle_threshold_seconds"`
	LongPauseAlertSeconds int `yaml:"long_pause_alert_seconds" mapstructure:"long_pause_alert_seconds"`
	PollIntervalSeconds   int `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
}

// SheetsConfig points the sync pass at a spreadsheet.
type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	Range           string `yaml:"range" mapstructure:"range"`
}

func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir: dataDir,
		Timer: TimerConfig{
			IdleThresholdSeconds:  300,
			LongPauseAlertSeconds: 600,
			PollIntervalSeconds:   1,
		},
		Sheets: SheetsConfig{
			Enabled:         false,
			CredentialsPath: filepath.Join(dataDir, "sheets-credentials.json"),
			Range:           "Sheet1!A:E",
		},
	}
}

func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "sessions.db")
}

func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Timer.IdleThresholdSeconds) * time.Second
}

func (c *Config) LongPauseAlert() time.Duration {
	return time.Duration(c.Timer.LongPauseAlertSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	if c.Timer.PollIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.Timer.PollIntervalSeconds) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prodtrack"
	}
	return filepath.Join(home, ".prodtrack")
}
