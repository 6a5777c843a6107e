package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when present; its absence is not an error.
const DefaultConfigPath = "configs/config.yaml"

// LoadConfig layers the YAML file at filePath over Default and then applies
// environment overrides. A missing file is an error unless filePath is the
// default location.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		if err := decodeFile(filePath, cfg); err != nil {
			if !(errors.Is(err, fs.ErrNotExist) && filePath == DefaultConfigPath) {
				return nil, err
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config environment error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func decodeFile(filePath string, cfg *Config) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Warning: failed to close config file: %v", closeErr)
		}
	}()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("TELEGRAM_BOT_TOKEN"); ok {
		cfg.Telegram.BotToken = v
	}
	if v, ok := get("TELEGRAM_CHAT_ID"); ok {
		cfg.Telegram.ChatID = v
	}
	if v, ok := get("PROCESSED_FILE"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Observability.LogLevel = v
	}
	if v, ok := get("RATING_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return fmt.Errorf("RATING_THRESHOLD: %w", err)
		}
		cfg.Pipeline.RatingThreshold = f
	}
	if v, ok := get("MAX_TITLES_PER_RUN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TITLES_PER_RUN: %w", err)
		}
		cfg.Pipeline.MaxTitlesPerRun = n
	}
	if v, ok := get("LOOKUP_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOOKUP_MAX_ATTEMPTS: %w", err)
		}
		cfg.Lookup.MaxAttempts = n
	}
	return nil
}
