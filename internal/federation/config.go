package federation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultCoreType = "tcp"

// FederateConfig is the on-disk federate description. JSON files are read
// through the YAML decoder.
type FederateConfig struct {
	FederateInfo  `yaml:",inline"`
	Publications  []PublicationSpec  `yaml:"publications"`
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`
}

func LoadFederateConfig(path string) (*FederateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("federate config load failed (%s): %w", path, err)
	}
	return ParseFederateConfig(data)
}

func ParseFederateConfig(data []byte) (*FederateConfig, error) {
	cfg := &FederateConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("federate config parse failed: %w", err)
	}
	if cfg.CoreType == "" {
		cfg.CoreType = DefaultCoreType
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
