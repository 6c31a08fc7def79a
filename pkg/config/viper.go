package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// searchPaths are tried after the caller's directory, in order.
var searchPaths = []string{".", "./config", "/etc/wes-canvas-live"}

// Load builds a viper instance from <configPath>/<configName>.yaml layered
// under environment variables. Nested keys map to env names by replacing
// dots with underscores, so server.port reads SERVER_PORT.
// A missing file is fine; a malformed one is not.
func Load(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil, errors.As(err, &notFound):
		return v, nil
	default:
		return nil, fmt.Errorf("read config %s: %w", configName, err)
	}
}

// Duration reads key as a duration. Both "1m30s" and a bare number of
// seconds are accepted; anything else yields def.
func Duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// GetEnv returns the environment variable key, or def when it is unset or empty.
func GetEnv(key, def string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return def
}
