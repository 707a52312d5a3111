// Package training holds the training configuration attached to a compiled
// model: loss function, optimizer hyperparameters, and tracked metrics. It is
// pure configuration - executing the training loop is the caller's concern.
package training

import "fmt"

// LossType identifies the loss function a model is compiled with.
type LossType int

const (
	BinaryCrossEntropy LossType = iota
	CategoricalCrossEntropy
)

func (lt LossType) String() string {
	switch lt {
	case BinaryCrossEntropy:
		return "binary_crossentropy"
	case CategoricalCrossEntropy:
		return "categorical_crossentropy"
	default:
		return "unknown"
	}
}

// OptimizerType identifies the gradient descent variant.
type OptimizerType int

const (
	Adam OptimizerType = iota
	SGD
	RMSProp
)

func (ot OptimizerType) String() string {
	switch ot {
	case Adam:
		return "Adam"
	case SGD:
		return "SGD"
	case RMSProp:
		return "RMSProp"
	default:
		return "Unknown"
	}
}

// OptimizerConfig holds optimizer hyperparameters.
type OptimizerConfig struct {
	Type         OptimizerType `json:"type"`
	LearningRate float32       `json:"learning_rate"`
	Beta1        float32       `json:"beta1"`
	Beta2        float32       `json:"beta2"`
	Epsilon      float32       `json:"epsilon"`
	WeightDecay  float32       `json:"weight_decay"`
}

// NewAdam returns an Adam configuration with standard moment defaults and the
// given learning rate.
func NewAdam(learningRate float32) OptimizerConfig {
	return OptimizerConfig{
		Type:         Adam,
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Validate checks optimizer hyperparameters for well-formedness.
func (oc OptimizerConfig) Validate() error {
	if oc.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", oc.LearningRate)
	}
	if oc.Type == Adam {
		if oc.Beta1 < 0 || oc.Beta1 >= 1 {
			return fmt.Errorf("beta1 must be in [0, 1), got %g", oc.Beta1)
		}
		if oc.Beta2 < 0 || oc.Beta2 >= 1 {
			return fmt.Errorf("beta2 must be in [0, 1), got %g", oc.Beta2)
		}
		if oc.Epsilon <= 0 {
			return fmt.Errorf("epsilon must be positive, got %g", oc.Epsilon)
		}
	}
	return nil
}

// Metric identifiers accepted by ValidateMetrics.
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricAUC       = "auc"
	MetricLoss      = "loss"
)

var knownMetrics = map[string]bool{
	MetricAccuracy:  true,
	MetricPrecision: true,
	MetricRecall:    true,
	MetricAUC:       true,
	MetricLoss:      true,
}

// ValidateMetrics checks that every metric identifier is recognized.
func ValidateMetrics(metrics []string) error {
	for _, m := range metrics {
		if !knownMetrics[m] {
			return fmt.Errorf("unknown metric %q", m)
		}
	}
	return nil
}

// CompileConfig is the training configuration a built model carries: the
// loss, optimizer, and metric set it should be trained with.
type CompileConfig struct {
	Loss      LossType        `json:"loss"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Metrics   []string        `json:"metrics"`
}

// Validate checks the full compile configuration.
func (cc CompileConfig) Validate() error {
	if err := cc.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %v", err)
	}
	if err := ValidateMetrics(cc.Metrics); err != nil {
		return err
	}
	return nil
}
