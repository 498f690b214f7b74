package config

import (
	"context"
	"fmt"

	"github.com/databricks/databricks-sdk-go/config"
	"gopkg.in/ini.v1"
)

// Registry reads workspace profiles from a .databrickscfg file.
type Registry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetConfig(ctx context.Context, profile string) (*config.Config, error)
}

type cfgRegistry struct {
	cfg *ini.File
}

func NewRegistry(path string) (Registry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return &cfgRegistry{cfg: cfg}, nil
}

func (cr *cfgRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range cr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (cr *cfgRegistry) GetConfig(_ context.Context, profile string) (*config.Config, error) {
	section, err := cr.cfg.GetSection(profile)
	if err != nil {
		return nil, fmt.Errorf("profile %s not found", profile)
	}

	host := section.Key("host").String()
	if host == "" {
		return nil, fmt.Errorf("profile %s has no host", profile)
	}

	return &config.Config{
		Profile: profile,
		Host:    host,
		Token:   section.Key("token").String(),
	}, nil
}
