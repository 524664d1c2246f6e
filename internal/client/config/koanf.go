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

// EnvPrefix is stripped from variables such as GPSTRACKER_SERVER_URL.
const EnvPrefix = "GPSTRACKER_"

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

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	*cfg = out
	return nil
}
