package secret

import (
	"context"
	"os"

	"github.com/vitalyst/enrich/pkg/errors"
)

// EnvResolver reads secrets from environment variables.
type EnvResolver struct{}

func (EnvResolver) Get(_ context.Context, path string) (string, error) {
	val, ok := os.LookupEnv(path)
	if !ok || val == "" {
		return "", errors.NewConfigError("environment variable " + path + " not set")
	}
	return val, nil
}

func (EnvResolver) Close() error { return nil }
