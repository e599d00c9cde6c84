package authz

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/autoassign/pkg/configuration"
)

type Config struct {
	ModelPath  string
	PolicyPath string
	// Flags overrides the file-backed provider built from FlagPath and FlagMode.
	Flags    FlagProvider
	FlagPath string
	FlagMode Mode
	Logger   *logrus.Logger
}

func (c Config) flags() (FlagProvider, error) {
	if c.Flags != nil {
		return c.Flags, nil
	}
	if c.FlagPath == "" {
		return nil, fmt.Errorf("authz: flag file path is required")
	}
	return NewFileFlagProvider(filepath.Clean(c.FlagPath), c.FlagMode), nil
}

// NewFromConfig returns AllowAll when AUTHZ_MODE=disabled and a casbin-backed Service otherwise.
func NewFromConfig(conf *configuration.Configuration) (Authorizer, error) {
	mode := ParseMode(conf.Authz.Mode)
	if mode == ModeDisabled {
		return AllowAll(), nil
	}
	return NewService(Config{
		ModelPath:  conf.Authz.ModelPath,
		PolicyPath: conf.Authz.PolicyPath,
		FlagPath:   conf.Authz.FlagConfigPath,
		FlagMode:   mode,
		Logger:     conf.Logger(),
	})
}
