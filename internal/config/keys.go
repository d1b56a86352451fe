package config

import (
	"strings"
)

const secretKeyPrefix = "secrets."

// KeyMapper translates dotted configuration keys into the identifiers each
// backing store uses.
type KeyMapper struct {
	App         string
	Environment string
}

// ParameterPath maps a key to /{app}/{env}/{key with dots as slashes}.
func (m KeyMapper) ParameterPath(key string) string {
	return "/" + m.App + "/" + m.Environment + "/" + strings.ReplaceAll(key, ".", "/")
}

// ParameterPrefix returns the hierarchy path that holds every key under prefix.
func (m KeyMapper) ParameterPrefix(prefix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return "/" + m.App + "/" + m.Environment
	}
	return m.ParameterPath(prefix)
}

// SecretID maps a key to {app}/{key without "secrets." and dots as hyphens}.
func (m KeyMapper) SecretID(key string) string {
	id := strings.ReplaceAll(strings.TrimPrefix(key, secretKeyPrefix), ".", "-")
	return m.App + "/" + id
}

// ObjectKey maps a key to the {env}/{first-segment}-config.json document and
// the path of the value inside it.
func (m KeyMapper) ObjectKey(key string) (string, []string) {
	segments := strings.Split(key, ".")
	return m.Environment + "/" + segments[0] + "-config.json", segments[1:]
}

// EnvVarName maps a key to its environment variable: upper-cased, dots as
// underscores.
func EnvVarName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
