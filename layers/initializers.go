package layers

import (
	"fmt"
	"math"
	"math/rand"
)

// Global random source for deterministic initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight initialization
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Parameter is one initialized model parameter tensor, stored row-major.
type Parameter struct {
	Layer string    `json:"layer"`
	Name  string    `json:"name"` // "weight", "bias", "gamma", "beta"
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// heUniformBound returns the He uniform sampling bound sqrt(6 / fan_in).
func heUniformBound(fanIn int) float64 {
	return math.Sqrt(6.0 / float64(fanIn))
}

// glorotUniformBound returns the Glorot uniform sampling bound
// sqrt(6 / (fan_in + fan_out)).
func glorotUniformBound(fanIn, fanOut int) float64 {
	return math.Sqrt(6.0 / float64(fanIn+fanOut))
}

func sampleUniform(n int, bound float64) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}
	return data
}

func fill(n int, value float32) []float32 {
	data := make([]float32, n)
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return data
}

func numElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// InitializeParameters materializes initial values for every learnable
// parameter in the model: weights per each layer's weight_init, biases at
// their constant seed (bias_init) or zero, BatchNorm gamma at one and beta
// at zero.
func (ms *ModelSpec) InitializeParameters() ([]Parameter, error) {
	if !ms.Compiled {
		return nil, fmt.Errorf("model not compiled")
	}

	var params []Parameter

	for _, layer := range ms.Layers {
		switch layer.Type {
		case Conv2D:
			kernelH := getIntParam(layer.Parameters, "kernel_h", 0)
			kernelW := getIntParam(layer.Parameters, "kernel_w", 0)
			inputChannels := getIntParam(layer.Parameters, "input_channels", 0)
			outputChannels := getIntParam(layer.Parameters, "output_channels", 0)
			fanIn := inputChannels * kernelH * kernelW
			fanOut := outputChannels * kernelH * kernelW

			weightShape := []int{outputChannels, inputChannels, kernelH, kernelW}
			weight, err := initWeight(layer, weightShape, fanIn, fanOut)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %v", layer.Name, err)
			}
			params = append(params, weight)

			if getBoolParam(layer.Parameters, "use_bias", true) {
				params = append(params, initBias(layer, outputChannels))
			}

		case Dense:
			inputSize := getIntParam(layer.Parameters, "input_size", 0)
			outputSize := getIntParam(layer.Parameters, "output_size", 0)

			weight, err := initWeight(layer, []int{inputSize, outputSize}, inputSize, outputSize)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %v", layer.Name, err)
			}
			params = append(params, weight)

			if getBoolParam(layer.Parameters, "use_bias", true) {
				params = append(params, initBias(layer, outputSize))
			}

		case BatchNorm:
			if !getBoolParam(layer.Parameters, "affine", true) {
				continue
			}
			numFeatures := getIntParam(layer.Parameters, "num_features", 0)
			params = append(params,
				Parameter{Layer: layer.Name, Name: "gamma", Shape: []int{numFeatures}, Data: fill(numFeatures, 1.0)},
				Parameter{Layer: layer.Name, Name: "beta", Shape: []int{numFeatures}, Data: fill(numFeatures, 0.0)},
			)
		}
	}

	return params, nil
}

func initWeight(layer LayerSpec, shape []int, fanIn, fanOut int) (Parameter, error) {
	if fanIn <= 0 || fanOut <= 0 {
		return Parameter{}, fmt.Errorf("invalid fan dimensions %d/%d", fanIn, fanOut)
	}

	var bound float64
	switch init := getStringParam(layer.Parameters, "weight_init", InitGlorotUniform); init {
	case InitHeUniform:
		bound = heUniformBound(fanIn)
	case InitGlorotUniform:
		bound = glorotUniformBound(fanIn, fanOut)
	default:
		return Parameter{}, fmt.Errorf("unknown weight initializer %q", init)
	}

	return Parameter{
		Layer: layer.Name,
		Name:  "weight",
		Shape: shape,
		Data:  sampleUniform(numElements(shape), bound),
	}, nil
}

func initBias(layer LayerSpec, size int) Parameter {
	seed := getFloatParam(layer.Parameters, "bias_init", 0.0)
	return Parameter{
		Layer: layer.Name,
		Name:  "bias",
		Shape: []int{size},
		Data:  fill(size, seed),
	}
}
