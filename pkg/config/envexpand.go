package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR_NAME} references inside a raw YAML document,
// the same convention tarsy's pkg/config/envexpand.go uses for provider
// secrets (api_key_env indirection aside, some fields — base URLs, ports —
// are expanded inline).
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv substitutes ${VAR} references in raw with the environment's
// values, leaving unset variables as an empty string substitution (the
// caller's validation pass is expected to catch resulting empty-required
// fields).
func ExpandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
