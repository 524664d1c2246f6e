package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dmitrijs2005/gpstracker/internal/flagx"
)

// EnvPrefix is stripped from variables such as GPSTRACKER_HTTP_ADDR.
const EnvPrefix = "GPSTRACKER_"

var sliceKeys = map[string]bool{
	"cors_allowed_origins": true,
}

// loadLayers overlays the config file named by -c/-config and then the
// environment on top of cfg. The YAML parser also accepts JSON files.
func loadLayers(cfg *Config, args []string) error {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if path := flagx.ConfigPath(args); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PORT and DATABASE_URL are the conventional PaaS variables.
	legacy := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		switch key {
		case "PORT":
			return "http_addr", ":" + value
		case "DATABASE_URL":
			return "database_dsn", value
		}
		return "", nil
	})
	if err := k.Load(legacy, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	// Decode into a fresh value so lists from upper layers replace the
	// defaults instead of merging element-wise.
	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	*cfg = out
	return nil
}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if sliceKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
