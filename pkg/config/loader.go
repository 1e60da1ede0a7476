package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "POLICYRAG_"

// Load reads configuration from an optional YAML file and POLICYRAG_*
// environment variables (env wins), then applies defaults and validates.
// A missing path is not an error; the service can run entirely from env.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
		}
	}

	// POLICYRAG_LLM_PROVIDER=... maps to llm.provider,
	// POLICYRAG_VECTOR_STORE_HOST=... to vector_store.host.
	sections := []string{
		"vector_store", "llm", "embedder", "reranker",
		"retrieval", "agent", "server", "logging",
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		for _, sec := range sections {
			if strings.HasPrefix(s, sec+"_") {
				return sec + "." + strings.TrimPrefix(s, sec+"_")
			}
		}
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("config: failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if present.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
