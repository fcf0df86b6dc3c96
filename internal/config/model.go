package config

import "github.com/nyxdb/contractcoord/internal/contract"

// CoordinatorConfig is the coordinator process's static configuration:
// its own identity, where to keep durable state, and where to listen.
type CoordinatorConfig struct {
	Self    string        `yaml:"self"`
	Data    DataConfig    `yaml:"data"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tick    TickConfig    `yaml:"tick"`
	Table   TableConfig   `yaml:"table"`
}

// DataConfig points at the directory coordstate persists its bbolt
// file and lock under.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// GRPCConfig is the ack-ingestion / connectivity / diff-inspection
// listen address.
type GRPCConfig struct {
	Address string `yaml:"address"`
}

// MetricsConfig is the Prometheus exposition listen address. An empty
// address disables the metrics server.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// TickConfig controls how often CalculateAllContracts is re-run.
type TickConfig struct {
	IntervalMillis int `yaml:"intervalMillis"`
}

// SelfServerID parses Self as the coordinator's own server id.
func (c *CoordinatorConfig) SelfServerID() (contract.ServerID, error) {
	var id contract.ServerID
	if err := id.UnmarshalText([]byte(c.Self)); err != nil {
		return contract.NilServer, err
	}
	return id, nil
}
