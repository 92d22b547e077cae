package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.url", typ: kString, env: "PREPDECK_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.URL },
	},
	{
		key: "server.timeout", typ: kString, env: "PREPDECK_SERVER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Timeout },
	},
	{
		key: "server.api_token", typ: kString, env: "PREPDECK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "poll.interval", typ: kString, env: "PREPDECK_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Poll.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Poll.Interval },
	},
	{
		key: "poll.log_lines", typ: kInt, env: "PREPDECK_POLL_LOG_LINES",
		apply:   func(cfg *Config, v any) { cfg.Poll.LogLines = v.(int) },
		extract: func(cfg Config) any { return cfg.Poll.LogLines },
	},
	{
		key: "poll.log_level", typ: kString, env: "PREPDECK_POLL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Poll.LogLevel = v.(string) },
		extract: func(cfg Config) any { return cfg.Poll.LogLevel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PREPDECK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PREPDECK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "ui.no_color", typ: kBool, env: "PREPDECK_NO_COLOR",
		apply:   func(cfg *Config, v any) { cfg.UI.NoColor = v.(bool) },
		extract: func(cfg Config) any { return cfg.UI.NoColor },
	},
	{
		key: "sim.port", typ: kInt, env: "PREPDECK_SIM_PORT",
		apply:   func(cfg *Config, v any) { cfg.Sim.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Sim.Port },
	},
	{
		key: "watch.extract_images", typ: kBool, env: "PREPDECK_WATCH_EXTRACT_IMAGES",
		apply:   func(cfg *Config, v any) { cfg.Watch.ExtractImages = v.(bool) },
		extract: func(cfg Config) any { return cfg.Watch.ExtractImages },
	},
	{
		key: "watch.vision_descriptions", typ: kBool, env: "PREPDECK_WATCH_VISION_DESCRIPTIONS",
		apply:   func(cfg *Config, v any) { cfg.Watch.VisionDescriptions = v.(bool) },
		extract: func(cfg Config) any { return cfg.Watch.VisionDescriptions },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
