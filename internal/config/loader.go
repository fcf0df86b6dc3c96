package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCoordinatorConfig reads and parses a coordinator config file.
// Defaults are applied for the gRPC listen address and the tick
// interval when the file leaves them unset.
func LoadCoordinatorConfig(path string) (*CoordinatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &CoordinatorConfig{
		GRPC:    GRPCConfig{Address: "0.0.0.0:19090"},
		Metrics: MetricsConfig{Address: ""},
		Tick:    TickConfig{IntervalMillis: 1000},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
