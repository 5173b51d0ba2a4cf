package secrets

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNotConfigured marks a secret that none of its sources provided.
var ErrNotConfigured = errors.New("secret is not configured")

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// File points to a file containing the secret value. When set it takes
	// precedence over Env.
	File string
	// Env names an environment variable consulted when File is not set.
	Env string
}

// Load returns the resolved secret value from the provided source. The lookup
// order is File, Env. The returned secret is always trimmed. Errors
// about missing values are marked with ErrNotConfigured.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, "reading %s from file %q", name, file)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", errors.Mark(errors.Newf("%s file %q is empty", name, file), ErrNotConfigured)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", errors.Mark(errors.Newf("%s is not configured (set %s)", name, env), ErrNotConfigured)
	}

	return "", errors.Mark(errors.Newf("%s is not configured", name), ErrNotConfigured)
}

// Optional is Load that treats a missing secret as empty.
func Optional(src Source) (string, error) {
	secret, err := Load(src)
	if errors.Is(err, ErrNotConfigured) {
		return "", nil
	}
	return secret, err
}
