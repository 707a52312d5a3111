// Package models defines the deep convolutional architectures used for
// chest X-ray classification. Each builder assembles a layer stack from a
// ModelConfig, runs shape inference, and attaches the training configuration
// (loss, Adam optimizer, metrics) the model is compiled with.
package models

import (
	"fmt"

	"github.com/KamelbelguidoumG2/covid-cxr/config"
	"github.com/KamelbelguidoumG2/covid-cxr/layers"
	"github.com/KamelbelguidoumG2/covid-cxr/training"
)

const modelName = "covid-19-cxr-custom1"

// leakySlope is the activation slope for negative inputs used throughout the
// architectures.
const leakySlope = 0.3

// Model is a compiled network: the architecture graph plus the training
// configuration it was compiled with. Ownership transfers to the caller;
// training and evaluation live outside this package.
type Model struct {
	Spec    *layers.ModelSpec      `json:"spec"`
	Compile training.CompileConfig `json:"compile"`
}

// Summary returns the human-readable architecture summary.
func (m *Model) Summary() string {
	s := m.Spec.Summary()
	s += fmt.Sprintf("Loss: %s\n", m.Compile.Loss)
	s += fmt.Sprintf("Optimizer: %s (lr=%g)\n", m.Compile.Optimizer.Type, m.Compile.Optimizer.LearningRate)
	s += fmt.Sprintf("Metrics: %v\n", m.Compile.Metrics)
	return s
}

func validateInputs(cfg *config.ModelConfig, inputShape []int, metrics []string) error {
	if cfg == nil {
		return fmt.Errorf("model config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(inputShape) != 4 {
		return fmt.Errorf("input shape must be 4D [batch, channels, height, width], got %v", inputShape)
	}
	if err := training.ValidateMetrics(metrics); err != nil {
		return err
	}
	return nil
}

// filtersAt returns the filter count of block i: INIT_FILTERS * base^i.
func filtersAt(cfg *config.ModelConfig, i int) int {
	filters := cfg.InitFilters
	for j := 0; j < i; j++ {
		filters *= cfg.FilterExpBase
	}
	return filters
}

func intPow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// DCNNBinary builds the binary classifier: CONV_BLOCKS convolutional blocks
// (conv -> batch norm -> leaky ReLU -> max pool) with exponentially growing
// filter counts, then flatten, dropout, one dense hidden layer, and a single
// sigmoid output. outputBias, when given, seeds the output layer bias to
// reflect class imbalance; nil keeps the default zero initialization.
// Compiled with binary cross-entropy and Adam.
func DCNNBinary(cfg *config.ModelConfig, inputShape []int, metrics []string, outputBias *float32) (*Model, error) {
	if err := validateInputs(cfg, inputShape, metrics); err != nil {
		return nil, err
	}

	b := layers.NewModelBuilder(inputShape, modelName)

	for i := 0; i < cfg.ConvBlocks; i++ {
		filters := filtersAt(cfg, i)
		b.AddConv2D(filters, [2]int(cfg.KernelSize), [2]int(cfg.Strides), layers.PaddingSame,
			layers.InitHeUniform, cfg.L2Lambda, fmt.Sprintf("conv%d", i)).
			AddBatchNorm(filters, fmt.Sprintf("bn%d", i)).
			AddLeakyReLU(leakySlope, fmt.Sprintf("leaky%d", i)).
			AddMaxPool2D([2]int(cfg.MaxPoolSize), [2]int{}, layers.PaddingSame, fmt.Sprintf("pool%d", i))
	}

	b.AddFlatten("flatten").
		AddDropout(cfg.Dropout, "dropout").
		AddDense(cfg.NodesDense0, layers.InitHeUniform, cfg.L2Lambda, "dense0").
		AddLeakyReLU(leakySlope, "leaky_dense0")

	output := layers.LayerSpec{
		Type: layers.Dense,
		Name: "output",
		Parameters: map[string]interface{}{
			"output_size": 1,
			"use_bias":    true,
			"weight_init": layers.InitGlorotUniform,
		},
	}
	if outputBias != nil {
		output.Parameters["bias_init"] = *outputBias
	}
	b.AddLayer(output).AddSigmoid("output_activation")

	spec, err := b.Compile()
	if err != nil {
		return nil, err
	}
	fmt.Println(spec.Summary())

	return &Model{
		Spec: spec,
		Compile: training.CompileConfig{
			Loss:      training.BinaryCrossEntropy,
			Optimizer: training.NewAdam(cfg.LR),
			Metrics:   metrics,
		},
	}, nil
}

// DCNNMulticlass builds the multiclass classifier: the same block stack as
// DCNNBinary, a dense head with an extra dropout before the final activation,
// and a softmax output over numClasses. Compiled with categorical
// cross-entropy and Adam.
func DCNNMulticlass(cfg *config.ModelConfig, inputShape []int, numClasses int, metrics []string) (*Model, error) {
	if err := validateInputs(cfg, inputShape, metrics); err != nil {
		return nil, err
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("multiclass model requires at least 2 classes, got %d", numClasses)
	}

	b := layers.NewModelBuilder(inputShape, modelName)

	for i := 0; i < cfg.ConvBlocks; i++ {
		filters := filtersAt(cfg, i)
		kernel := [2]int(cfg.KernelSize)
		if i == 0 {
			// Upstream quirk kept for parity with previously trained
			// checkpoints: the first block uses FILTER_EXP_BASE^0 as its
			// kernel size instead of KERNEL_SIZE.
			k := intPow(cfg.FilterExpBase, i)
			kernel = [2]int{k, k}
		}
		b.AddConv2D(filters, kernel, [2]int(cfg.Strides), layers.PaddingSame,
			layers.InitHeUniform, cfg.L2Lambda, fmt.Sprintf("conv%d", i)).
			AddBatchNorm(filters, fmt.Sprintf("bn%d", i)).
			AddLeakyReLU(leakySlope, fmt.Sprintf("leaky%d", i)).
			AddMaxPool2D([2]int(cfg.MaxPoolSize), [2]int{}, layers.PaddingSame, fmt.Sprintf("pool%d", i))
	}

	b.AddFlatten("flatten").
		AddDropout(cfg.Dropout, "dropout").
		AddDense(cfg.NodesDense0, layers.InitHeUniform, cfg.L2Lambda, "dense0").
		AddDropout(cfg.Dropout, "dropout_dense0").
		AddLeakyReLU(leakySlope, "leaky_dense0").
		AddDense(numClasses, layers.InitGlorotUniform, 0, "output").
		AddSoftmax(-1, "output_activation")

	spec, err := b.Compile()
	if err != nil {
		return nil, err
	}
	fmt.Println(spec.Summary())

	return &Model{
		Spec: spec,
		Compile: training.CompileConfig{
			Loss:      training.CategoricalCrossEntropy,
			Optimizer: training.NewAdam(cfg.LR),
			Metrics:   metrics,
		},
	}, nil
}

// DCNNMulticlassResnet builds the residual multiclass classifier. Each block
// preserves its input as a shortcut, runs two successive convolutions, and
// concatenates the result with the untransformed shortcut on the channel axis
// before normalization, activation, and pooling. This branching requires the
// explicit graph builder: the block input feeds both the convolution path and
// the concat. Head as DCNNMulticlass but without the extra dropout.
func DCNNMulticlassResnet(cfg *config.ModelConfig, inputShape []int, numClasses int, metrics []string) (*Model, error) {
	if err := validateInputs(cfg, inputShape, metrics); err != nil {
		return nil, err
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("multiclass model requires at least 2 classes, got %d", numClasses)
	}

	g := layers.NewGraphBuilder(inputShape, modelName)
	x := g.Input()
	channels := inputShape[1]

	for i := 0; i < cfg.ConvBlocks; i++ {
		filters := filtersAt(cfg, i)
		shortcut := x

		x = g.Conv2D(x, filters, [2]int(cfg.KernelSize), [2]int(cfg.Strides), layers.PaddingSame,
			layers.InitHeUniform, cfg.L2Lambda, fmt.Sprintf("conv%d_0", i))
		x = g.BatchNorm(x, filters, fmt.Sprintf("bn%d_0", i))
		x = g.LeakyReLU(x, leakySlope, fmt.Sprintf("leaky%d_0", i))
		x = g.Conv2D(x, filters, [2]int(cfg.KernelSize), [2]int(cfg.Strides), layers.PaddingSame,
			layers.InitHeUniform, cfg.L2Lambda, fmt.Sprintf("conv%d_1", i))

		x = g.Concat(x, shortcut, fmt.Sprintf("concat%d", i))
		channels += filters

		x = g.BatchNorm(x, channels, fmt.Sprintf("bn%d_1", i))
		x = g.LeakyReLU(x, leakySlope, fmt.Sprintf("leaky%d_1", i))
		x = g.MaxPool2D(x, [2]int(cfg.MaxPoolSize), [2]int{}, layers.PaddingSame, fmt.Sprintf("pool%d", i))
	}

	x = g.Flatten(x, "flatten")
	x = g.Dropout(x, cfg.Dropout, "dropout")
	x = g.Dense(x, cfg.NodesDense0, layers.InitHeUniform, cfg.L2Lambda, "dense0")
	x = g.LeakyReLU(x, leakySlope, "leaky_dense0")
	x = g.Dense(x, numClasses, layers.InitGlorotUniform, 0, "output")
	g.Softmax(x, -1, "output_activation")

	spec, err := g.Compile()
	if err != nil {
		return nil, err
	}
	fmt.Println(spec.Summary())

	return &Model{
		Spec: spec,
		Compile: training.CompileConfig{
			Loss:      training.CategoricalCrossEntropy,
			Optimizer: training.NewAdam(cfg.LR),
			Metrics:   metrics,
		},
	}, nil
}
