package main

import (
	"fmt"
	"time"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/spf13/viper"
)

const (
	defaultDBPath  = "database/pjsk.db"
	defaultDataDir = "database"
	defaultListen  = ":8000"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (PJSK_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigDuration retrieves a duration config value ("10s", "2m")
func GetConfigDuration(key string, defaultValue time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetDuration(key)
}

// userAgent is sent on every outbound request
func userAgent() string {
	return GetConfigString("user_agent", alias.UserAgent)
}

// aliasConfig builds the alias client settings. alias_rate is the maximum
// number of lookups per second.
func aliasConfig() alias.Config {
	cfg := alias.Config{
		Endpoint:  GetConfigString("alias_endpoint", alias.DefaultEndpoint),
		UserAgent: userAgent(),
		Timeout:   GetConfigDuration("http_timeout", alias.DefaultTimeout),
	}
	if rate := viper.GetFloat64("alias_rate"); rate > 0 {
		cfg.Interval = time.Duration(float64(time.Second) / rate)
	}
	return cfg
}

// documents returns the reference documents, with URLs overridable as
// documents.<name> in the config
func documents() []refdata.Document {
	docs := refdata.DefaultDocuments()
	for i, doc := range docs {
		docs[i].URL = GetConfigString("documents."+doc.Name, doc.URL)
	}
	return docs
}

func fetcherConfig(dataDir string, progress refdata.ProgressFunc) *refdata.FetcherConfig {
	return &refdata.FetcherConfig{
		Dir:       dataDir,
		Documents: documents(),
		Timeout:   GetConfigDuration("http_timeout", refdata.DefaultTimeout),
		UserAgent: userAgent(),
		Progress:  progress,
	}
}

// scheduleOptions reads refresh_hour ("01:00") and refresh_jitter
func scheduleOptions() (refdata.ScheduleOptions, error) {
	opts := refdata.DefaultScheduleOptions()
	opts.Jitter = GetConfigDuration("refresh_jitter", opts.Jitter)

	if at := viper.GetString("refresh_hour"); at != "" {
		t, err := time.Parse("15:04", at)
		if err != nil {
			return opts, fmt.Errorf("refresh_hour %q is not HH:MM: %w", at, util.ErrInvalidConfig)
		}
		opts.Hour = t.Hour()
		opts.Minute = t.Minute()
	}
	if opts.Jitter < 0 {
		return opts, fmt.Errorf("refresh_jitter must not be negative: %w", util.ErrInvalidConfig)
	}
	return opts, nil
}
