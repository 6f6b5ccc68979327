package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/upb/llm-failover-router/services/providers"
)

// providerEnvPrefix marks endpoint overrides such as PROVIDER_GROQ_MODEL.
const providerEnvPrefix = "PROVIDER_"

// LoadProviderEndpoints returns the built-in endpoint table with overrides
// from an optional YAML file and then from PROVIDER_<TAG>_<FIELD> variables.
//
//	providers:
//	  groq:
//	    base_url: https://api.groq.com/openai/v1
//	    model: llama-3.1-8b-instant
func LoadProviderEndpoints(path string) (map[providers.Tag]providers.Endpoint, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// PROVIDER_GROQ_BASE_URL -> providers.groq.base_url
	if err := k.Load(env.Provider(providerEnvPrefix, ".", func(s string) string {
		rest := strings.ToLower(strings.TrimPrefix(s, providerEnvPrefix))
		tag, field, ok := strings.Cut(rest, "_")
		if !ok {
			return ""
		}
		return "providers." + tag + "." + field
	}), nil); err != nil {
		return nil, fmt.Errorf("loading provider env: %w", err)
	}

	var overrides map[string]providers.Endpoint
	if err := k.Unmarshal("providers", &overrides); err != nil {
		return nil, fmt.Errorf("unmarshaling providers: %w", err)
	}

	endpoints := providers.DefaultEndpoints()
	for name, o := range overrides {
		tag, err := providers.ParseTag(name)
		if err != nil {
			return nil, err
		}
		ep := endpoints[tag]
		if o.BaseURL != "" {
			ep.BaseURL = strings.TrimRight(o.BaseURL, "/")
		}
		if o.Model != "" {
			ep.Model = o.Model
		}
		endpoints[tag] = ep
	}
	return endpoints, nil
}
