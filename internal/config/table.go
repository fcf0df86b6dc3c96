package config

import (
	"encoding/hex"
	"fmt"

	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/region"
)

// TableConfig is the YAML form of the table's desired configuration:
// an ordered list of key-range shards, each with its replica set and
// optional designated primary.
type TableConfig struct {
	Shards []ShardConfig `yaml:"shards"`
}

// ShardConfig is one shard entry. RangeStart/RangeEnd are hex-encoded
// key bounds; an empty RangeEnd means unbounded.
type ShardConfig struct {
	RangeStart        string   `yaml:"rangeStart"`
	RangeEnd          string   `yaml:"rangeEnd"`
	Replicas          []string `yaml:"replicas"`
	NonvotingReplicas []string `yaml:"nonvotingReplicas"`
	PrimaryReplica    string   `yaml:"primaryReplica"`
}

// ToContractConfig parses the YAML shard list into the domain's
// contract.TableConfig.
func (t TableConfig) ToContractConfig() (contract.TableConfig, error) {
	out := contract.TableConfig{Shards: make([]contract.Shard, 0, len(t.Shards))}
	for i, sc := range t.Shards {
		start, err := hex.DecodeString(sc.RangeStart)
		if err != nil {
			return contract.TableConfig{}, fmt.Errorf("config: shard %d rangeStart: %w", i, err)
		}
		var end []byte
		if sc.RangeEnd != "" {
			end, err = hex.DecodeString(sc.RangeEnd)
			if err != nil {
				return contract.TableConfig{}, fmt.Errorf("config: shard %d rangeEnd: %w", i, err)
			}
		}

		replicas, err := parseServerIDs(sc.Replicas)
		if err != nil {
			return contract.TableConfig{}, fmt.Errorf("config: shard %d replicas: %w", i, err)
		}
		nonvoting, err := parseServerIDs(sc.NonvotingReplicas)
		if err != nil {
			return contract.TableConfig{}, fmt.Errorf("config: shard %d nonvotingReplicas: %w", i, err)
		}

		shard := contract.Shard{
			Range:             region.KeyRange{Start: start, End: end},
			AllReplicas:       replicas,
			NonvotingReplicas: nonvoting,
		}
		if sc.PrimaryReplica != "" {
			var id contract.ServerID
			if err := id.UnmarshalText([]byte(sc.PrimaryReplica)); err != nil {
				return contract.TableConfig{}, fmt.Errorf("config: shard %d primaryReplica: %w", i, err)
			}
			shard.PrimaryReplica = id
		}
		out.Shards = append(out.Shards, shard)
	}
	return out, nil
}

func parseServerIDs(raw []string) (contract.ServerSet, error) {
	out := contract.NewServerSet()
	for _, s := range raw {
		var id contract.ServerID
		if err := id.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		out.Add(id)
	}
	return out, nil
}
