package config

import "encoding/json"

const redacted = "***REDACTED***"

// Sanitize returns a deep copy of cfg with provider API keys, the admin
// bearer token, and datasource password/api_key fields redacted, suitable
// for logging.
func Sanitize(cfg *Config) *Config {
	out := deepCopy(cfg)
	if out == nil {
		return cfg
	}

	redactProviders(out.Inference)
	redactProviders(out.Embedding)
	redactProviders(out.Reranker)
	redactProviders(out.Vision)

	if out.Admin.BearerToken != "" {
		out.Admin.BearerToken = redacted
	}

	for name, ds := range out.Datasources {
		if _, ok := ds.Extra["password"]; ok {
			ds.Extra["password"] = redacted
		}
		if _, ok := ds.Extra["api_key"]; ok {
			ds.Extra["api_key"] = redacted
		}
		out.Datasources[name] = ds
	}

	return out
}

func redactProviders(providers map[string]ProviderConfig) {
	for name, p := range providers {
		if p.APIKey != "" {
			p.APIKey = redacted
		}
		providers[name] = p
	}
}

// deepCopy creates a deep copy of cfg using JSON round-tripping, the same
// approach the teacher's config sanitizer uses to avoid mutating the
// original in place.
func deepCopy(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copied Config
	if err := json.Unmarshal(data, &copied); err != nil {
		return cfg
	}
	return &copied
}
