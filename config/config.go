// Package config loads and validates model hyperparameters. The upstream
// project kept these in a config.yml and evaluated the tuple-valued entries
// as Python expressions; here the tuples are a structured Dims type parsed
// and validated at load time instead.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dims is a fixed [height, width] pair used for kernel, pool, and stride
// sizes. In YAML it may be written as a two-element list or as a tuple-style
// string like "(3, 3)".
type Dims [2]int

// ParseDims parses a tuple-style string such as "(3, 3)" or "3,3".
func ParseDims(s string) (Dims, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return Dims{}, fmt.Errorf("expected two comma-separated values, got %q", s)
	}

	var d Dims
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Dims{}, fmt.Errorf("invalid dimension %q in %q", part, s)
		}
		d[i] = v
	}
	return d, nil
}

// UnmarshalYAML accepts either a sequence ([3, 3]) or a scalar string
// ("(3, 3)").
func (d *Dims) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var values []int
		if err := node.Decode(&values); err != nil {
			return err
		}
		if len(values) != 2 {
			return fmt.Errorf("expected two values, got %d", len(values))
		}
		copy(d[:], values)
		return nil
	case yaml.ScalarNode:
		parsed, err := ParseDims(node.Value)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("unsupported YAML node for dimension pair")
	}
}

func (d Dims) String() string {
	return fmt.Sprintf("(%d, %d)", d[0], d[1])
}

// Positive reports whether both dimensions are positive.
func (d Dims) Positive() bool {
	return d[0] > 0 && d[1] > 0
}

// ModelConfig holds the architecture hyperparameters. YAML keys keep the
// upstream config.yml names.
type ModelConfig struct {
	NodesDense0   int     `yaml:"NODES_DENSE0"`
	LR            float32 `yaml:"LR"`
	Dropout       float32 `yaml:"DROPOUT"`
	L2Lambda      float32 `yaml:"L2_LAMBDA"`
	InitFilters   int     `yaml:"INIT_FILTERS"`
	FilterExpBase int     `yaml:"FILTER_EXP_BASE"`
	ConvBlocks    int     `yaml:"CONV_BLOCKS"`
	KernelSize    Dims    `yaml:"KERNEL_SIZE"`
	MaxPoolSize   Dims    `yaml:"MAXPOOL_SIZE"`
	Strides       Dims    `yaml:"STRIDES"`
}

// Load reads a ModelConfig from a YAML file and validates it.
func Load(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var cfg ModelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %v", path, err)
	}
	return &cfg, nil
}

// Validate checks that the hyperparameters are well-formed and mutually
// consistent. A zero block count is rejected here: a model with no
// spatial-reduction stages in front of the dense head is never built
// silently.
func (c *ModelConfig) Validate() error {
	if c.NodesDense0 <= 0 {
		return fmt.Errorf("NODES_DENSE0 must be positive, got %d", c.NodesDense0)
	}
	if c.LR <= 0 {
		return fmt.Errorf("LR must be positive, got %g", c.LR)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("DROPOUT must be in [0, 1), got %g", c.Dropout)
	}
	if c.L2Lambda < 0 {
		return fmt.Errorf("L2_LAMBDA must be non-negative, got %g", c.L2Lambda)
	}
	if c.InitFilters <= 0 {
		return fmt.Errorf("INIT_FILTERS must be positive, got %d", c.InitFilters)
	}
	if c.FilterExpBase < 1 {
		return fmt.Errorf("FILTER_EXP_BASE must be at least 1, got %d", c.FilterExpBase)
	}
	if c.ConvBlocks < 1 {
		return fmt.Errorf("CONV_BLOCKS must be at least 1, got %d", c.ConvBlocks)
	}
	if !c.KernelSize.Positive() {
		return fmt.Errorf("KERNEL_SIZE must be positive, got %s", c.KernelSize)
	}
	if !c.MaxPoolSize.Positive() {
		return fmt.Errorf("MAXPOOL_SIZE must be positive, got %s", c.MaxPoolSize)
	}
	if !c.Strides.Positive() {
		return fmt.Errorf("STRIDES must be positive, got %s", c.Strides)
	}
	return nil
}

// InputShape builds the 4D NCHW model input shape from image dimensions.
func InputShape(batch, height, width, channels int) []int {
	return []int{batch, channels, height, width}
}
