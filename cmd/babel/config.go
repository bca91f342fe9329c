package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the babel configuration file
// (~/.config/babel/config.yaml). Numeric fields are pointers so "not
// set" is distinguishable from zero.
type Config struct {
	Vocab   string `yaml:"vocab"`
	Weights string `yaml:"weights"`

	// Decoding defaults
	Seed         *int64   `yaml:"seed"`
	BeamWidth    *int64   `yaml:"beam_width"`
	Alpha        *float64 `yaml:"alpha"`
	MaxDecodeLen *int64   `yaml:"max_decode_len"`
	BatchSize    *int64   `yaml:"batch_size"`
	Workers      *int64   `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "babel", "config.yaml")
}

// applyCommonConfig applies config file defaults wherever the
// corresponding CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	if cfg.Weights != "" && !c.IsSet("weights") && !c.IsSet("w") {
		weightsPath = cfg.Weights
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.BeamWidth != nil && !c.IsSet("beam") && !c.IsSet("beam-width") {
		beamWidth = *cfg.BeamWidth
	}
	if cfg.Alpha != nil && !c.IsSet("alpha") {
		alpha = *cfg.Alpha
	}
	if cfg.MaxDecodeLen != nil && !c.IsSet("max-len") && !c.IsSet("max_len") {
		maxLen = *cfg.MaxDecodeLen
	}
	if cfg.BatchSize != nil && !c.IsSet("batch-size") && !c.IsSet("batch_size") {
		batchSize = *cfg.BatchSize
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command
// variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyCommonConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
