// Package config reads the process configuration from the environment, after loading a .env
// file when one is present.
package config

import (
	"os"
	"strconv"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/source"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultDatabaseURL = "./data/db/cegs.db"
	DefaultListenAddr  = "0.0.0.0:8080"
)

type Config struct {
	DatabaseURL string
	LogLevel    zapcore.Level
	ListenAddr  string
	S3          source.S3Config

	warnings []string
}

// Load reads .env files (./.env when none are named) and the CEGS_* variables. Variables already
// set in the environment win over .env. Missing values fall back to defaults; call Report once
// the logger is up to log the fallbacks.
func Load(envFiles ...string) *Config {
	cfg := &Config{}
	if err := godotenv.Load(envFiles...); err != nil {
		cfg.warnings = append(cfg.warnings, "No .env found, using local environment")
	}

	cfg.DatabaseURL = os.Getenv("CEGS_DATABASE_URL")
	cfg.LogLevel = logger.ParseLevel(os.Getenv("CEGS_LOG_LEVEL"))
	cfg.ListenAddr = os.Getenv("CEGS_LISTEN_ADDR")
	cfg.S3 = source.S3Config{
		Region:          os.Getenv("CEGS_S3_REGION"),
		Endpoint:        os.Getenv("CEGS_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("CEGS_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CEGS_S3_SECRET_ACCESS_KEY"),
	}

	if raw := os.Getenv("CEGS_S3_PATH_STYLE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			cfg.warnings = append(cfg.warnings, "Invalid CEGS_S3_PATH_STYLE "+strconv.Quote(raw)+", using virtual-hosted addressing")
		}
		cfg.S3.PathStyle = v
	}
	if cfg.DatabaseURL == "" {
		cfg.warnings = append(cfg.warnings, "No local environment (CEGS_DATABASE_URL), using default value ("+DefaultDatabaseURL+")")
		cfg.DatabaseURL = DefaultDatabaseURL
	}
	if cfg.ListenAddr == "" {
		cfg.warnings = append(cfg.warnings, "No local environment (CEGS_LISTEN_ADDR), using default value ("+DefaultListenAddr+")")
		cfg.ListenAddr = DefaultListenAddr
	}
	return cfg
}

// Warnings lists the fallbacks Load applied.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Report logs the fallbacks Load applied.
func (c *Config) Report() {
	for _, w := range c.warnings {
		logger.Warn(w)
	}
}
