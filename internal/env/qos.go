package env

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

const (
	HistoryKeepLast = "keep_last"
	HistoryKeepAll  = "keep_all"
)

var ErrInvalidQoS = errors.New("Invalid QoS profile")

// QoS is the subset of DDS reader QoS that governs the instance cache.
//
//   history:
//     kind: keep_last
//     depth: 8
//   resourceLimits:
//     maxInstances: 1000
//     maxSamplesPerInstance: 0
type QoS struct {
	History        HistoryQoS        `yaml:"history"`
	ResourceLimits ResourceLimitsQoS `yaml:"resourceLimits"`
}

type HistoryQoS struct {
	Kind  string `yaml:"kind"`
	Depth int    `yaml:"depth"`
}

// ResourceLimitsQoS limits are unlimited when zero.
type ResourceLimitsQoS struct {
	MaxInstances          int `yaml:"maxInstances"`
	MaxSamplesPerInstance int `yaml:"maxSamplesPerInstance"`
}

// DefaultQoS keeps the last depth samples of every instance.
func DefaultQoS(depth int) *QoS {
	return &QoS{
		History: HistoryQoS{Kind: HistoryKeepLast, Depth: depth},
	}
}

// LoadQoS reads a QoS profile. Without a path the default profile is used.
// Fields the profile leaves out keep their defaults.
func LoadQoS(path string, defaultDepth int) (*QoS, error) {
	qos := DefaultQoS(defaultDepth)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, qos); err != nil {
			return nil, fmt.Errorf("Failed to parse QoS profile %s: %w", path, err)
		}
	}

	if err := qos.Validate(); err != nil {
		return nil, err
	}

	return qos, nil
}

func (q *QoS) Validate() error {
	switch q.History.Kind {
	case HistoryKeepLast:
		if q.History.Depth < 1 {
			return fmt.Errorf("history depth %d must be at least 1: %w", q.History.Depth, ErrInvalidQoS)
		}

	case HistoryKeepAll:

	default:
		return fmt.Errorf("unknown history kind '%s': %w", q.History.Kind, ErrInvalidQoS)
	}

	if q.ResourceLimits.MaxInstances < 0 || q.ResourceLimits.MaxSamplesPerInstance < 0 {
		return fmt.Errorf("resource limits must not be negative: %w", ErrInvalidQoS)
	}

	return nil
}
