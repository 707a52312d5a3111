package layers

import (
	"fmt"
	"strings"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Conv2D LayerType = iota
	Dense
	BatchNorm
	LeakyReLU
	MaxPool2D
	Flatten
	Dropout
	Softmax
	Sigmoid
	Concat
)

func (lt LayerType) String() string {
	switch lt {
	case Conv2D:
		return "Conv2D"
	case Dense:
		return "Dense"
	case BatchNorm:
		return "BatchNorm"
	case LeakyReLU:
		return "LeakyReLU"
	case MaxPool2D:
		return "MaxPool2D"
	case Flatten:
		return "Flatten"
	case Dropout:
		return "Dropout"
	case Softmax:
		return "Softmax"
	case Sigmoid:
		return "Sigmoid"
	case Concat:
		return "Concat"
	default:
		return "Unknown"
	}
}

// Padding selects the spatial padding rule for Conv2D and MaxPool2D layers.
type Padding string

const (
	PaddingSame  Padding = "same"
	PaddingValid Padding = "valid"
)

// Weight initializer identifiers recognized by InitializeParameters.
const (
	InitHeUniform     = "he_uniform"
	InitGlorotUniform = "glorot_uniform"
)

// LayerSpec defines layer configuration only - no execution logic.
// Inputs names the layers feeding this one; when empty the layer consumes
// the output of the previous layer in the list (sequential models never set
// it). A layer with two entries in Inputs (Concat) is what turns the flat
// layer list into a directed acyclic graph.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
	Inputs     []string               `json:"inputs,omitempty"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec defines a complete neural network model as layer configuration.
// Layers are stored in topological order; shape inference walks them once.
type ModelSpec struct {
	Name   string      `json:"name"`
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder constructs sequential models where every layer consumes the
// output of the one before it.
type ModelBuilder struct {
	name       string
	layers     []LayerSpec
	inputShape []int
}

// NewModelBuilder creates a new model builder for the given 4D input shape
// [batch, channels, height, width].
func NewModelBuilder(inputShape []int, name string) *ModelBuilder {
	return &ModelBuilder{
		name:       name,
		layers:     make([]LayerSpec, 0),
		inputShape: inputShape,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddConv2D adds a Conv2D layer. kernel and stride are [height, width]
// pairs; weightInit names the initializer and l2Lambda is the activity
// regularization coefficient recorded for the training stage.
func (mb *ModelBuilder) AddConv2D(outputChannels int, kernel, stride [2]int, padding Padding, weightInit string, l2Lambda float32, name string) *ModelBuilder {
	return mb.AddLayer(conv2DSpec(outputChannels, kernel, stride, padding, weightInit, l2Lambda, name))
}

// AddDense adds a fully connected layer. Input size is computed during
// compilation; higher-dimensional inputs are flattened automatically.
func (mb *ModelBuilder) AddDense(outputSize int, weightInit string, l2Lambda float32, name string) *ModelBuilder {
	return mb.AddLayer(denseSpec(outputSize, weightInit, l2Lambda, name))
}

// AddBatchNorm adds a Batch Normalization layer. numFeatures must match the
// channel dimension of the incoming tensor and is validated at compile time.
func (mb *ModelBuilder) AddBatchNorm(numFeatures int, name string) *ModelBuilder {
	return mb.AddLayer(batchNormSpec(numFeatures, name))
}

// AddLeakyReLU adds a Leaky ReLU activation.
// negativeSlope: slope for negative input values
func (mb *ModelBuilder) AddLeakyReLU(negativeSlope float32, name string) *ModelBuilder {
	return mb.AddLayer(leakyReLUSpec(negativeSlope, name))
}

// AddMaxPool2D adds a 2D max pooling layer. pool and stride are
// [height, width] pairs; pass a zero stride to default it to the pool size.
func (mb *ModelBuilder) AddMaxPool2D(pool, stride [2]int, padding Padding, name string) *ModelBuilder {
	return mb.AddLayer(maxPool2DSpec(pool, stride, padding, name))
}

// AddFlatten adds a layer reshaping input to [batch, features].
func (mb *ModelBuilder) AddFlatten(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Flatten, Name: name, Parameters: map[string]interface{}{}})
}

// AddDropout adds a Dropout layer.
// rate: dropout probability (0.0 = no dropout, 1.0 = drop all)
func (mb *ModelBuilder) AddDropout(rate float32, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dropout,
		Name: name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	})
}

// AddSoftmax adds a Softmax activation
func (mb *ModelBuilder) AddSoftmax(axis int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Softmax,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	})
}

// AddSigmoid adds a Sigmoid activation
func (mb *ModelBuilder) AddSigmoid(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Sigmoid, Name: name, Parameters: map[string]interface{}{}})
}

// Compile computes shapes and parameter counts for the model
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	return compileLayers(mb.name, mb.inputShape, mb.layers)
}

// Layer spec constructors shared by ModelBuilder and GraphBuilder.

func conv2DSpec(outputChannels int, kernel, stride [2]int, padding Padding, weightInit string, l2Lambda float32, name string) LayerSpec {
	return LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_h":        kernel[0],
			"kernel_w":        kernel[1],
			"stride_h":        stride[0],
			"stride_w":        stride[1],
			"padding":         string(padding),
			"use_bias":        true,
			"weight_init":     weightInit,
			"l2_lambda":       l2Lambda,
		},
	}
}

func denseSpec(outputSize int, weightInit string, l2Lambda float32, name string) LayerSpec {
	return LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    true,
			"weight_init": weightInit,
			"l2_lambda":   l2Lambda,
		},
	}
}

func batchNormSpec(numFeatures int, name string) LayerSpec {
	return LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"num_features": numFeatures,
			"eps":          float32(1e-3),
			"momentum":     float32(0.99),
			"affine":       true,
		},
	}
}

func leakyReLUSpec(negativeSlope float32, name string) LayerSpec {
	return LayerSpec{
		Type: LeakyReLU,
		Name: name,
		Parameters: map[string]interface{}{
			"negative_slope": negativeSlope,
		},
	}
}

func maxPool2DSpec(pool, stride [2]int, padding Padding, name string) LayerSpec {
	if stride == [2]int{} {
		stride = pool
	}
	return LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_h":   pool[0],
			"pool_w":   pool[1],
			"stride_h": stride[0],
			"stride_w": stride[1],
			"padding":  string(padding),
		},
	}
}

// compileLayers runs shape inference and parameter counting over layers in
// insertion order. Named inputs must refer to layers appearing earlier in the
// list, so insertion order doubles as topological order.
func compileLayers(name string, inputShape []int, specs []LayerSpec) (*ModelSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("model input must be 4D [batch, channels, height, width], got %v", inputShape)
	}

	model := &ModelSpec{
		Name:       name,
		Layers:     make([]LayerSpec, len(specs)),
		InputShape: inputShape,
	}
	copy(model.Layers, specs)

	outputShapes := map[string][]int{graphInputName: inputShape}
	currentShape := inputShape

	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]

		inputShapes, err := resolveInputShapes(layer, currentShape, outputShapes)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %v", i, layer.Name, err)
		}
		layer.InputShape = make([]int, len(inputShapes[0]))
		copy(layer.InputShape, inputShapes[0])

		outputShape, paramShapes, paramCount, err := computeLayerInfo(layer, inputShapes)
		if err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %v", i, layer.Name, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount

		if _, exists := outputShapes[layer.Name]; exists {
			return nil, fmt.Errorf("duplicate layer name %q", layer.Name)
		}
		outputShapes[layer.Name] = outputShape
		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true

	return model, nil
}

func resolveInputShapes(layer *LayerSpec, previous []int, outputShapes map[string][]int) ([][]int, error) {
	if len(layer.Inputs) == 0 {
		return [][]int{previous}, nil
	}
	shapes := make([][]int, 0, len(layer.Inputs))
	for _, name := range layer.Inputs {
		shape, ok := outputShapes[name]
		if !ok {
			return nil, fmt.Errorf("unknown input %q", name)
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}

// computeLayerInfo computes output shape and parameter information for a layer
func computeLayerInfo(layer *LayerSpec, inputs [][]int) ([]int, [][]int, int64, error) {
	if layer.Type != Concat && len(inputs) != 1 {
		return nil, nil, 0, fmt.Errorf("%s layer expects exactly one input, got %d", layer.Type, len(inputs))
	}

	switch layer.Type {
	case Conv2D:
		return computeConv2DInfo(layer, inputs[0])
	case Dense:
		return computeDenseInfo(layer, inputs[0])
	case BatchNorm:
		return computeBatchNormInfo(layer, inputs[0])
	case MaxPool2D:
		return computeMaxPool2DInfo(layer, inputs[0])
	case Flatten:
		return computeFlattenInfo(layer, inputs[0])
	case Concat:
		return computeConcatInfo(layer, inputs)
	case LeakyReLU, Dropout, Softmax, Sigmoid:
		return computeActivationInfo(layer, inputs[0])
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("Conv2D layer requires 4D input [batch, channels, height, width]")
	}

	outputChannels, ok := layer.Parameters["output_channels"].(int)
	if !ok || outputChannels <= 0 {
		return nil, nil, 0, fmt.Errorf("missing or invalid output_channels parameter")
	}
	kernelH := getIntParam(layer.Parameters, "kernel_h", 0)
	kernelW := getIntParam(layer.Parameters, "kernel_w", 0)
	if kernelH <= 0 || kernelW <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid kernel size %dx%d", kernelH, kernelW)
	}
	strideH := getIntParam(layer.Parameters, "stride_h", 1)
	strideW := getIntParam(layer.Parameters, "stride_w", 1)
	if strideH <= 0 || strideW <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid stride %dx%d", strideH, strideW)
	}
	useBias := getBoolParam(layer.Parameters, "use_bias", true)
	padding := Padding(getStringParam(layer.Parameters, "padding", string(PaddingValid)))

	batchSize := inputShape[0]
	inputChannels := inputShape[1]
	inputHeight := inputShape[2]
	inputWidth := inputShape[3]

	layer.Parameters["input_channels"] = inputChannels

	outputHeight, err := spatialOutput(inputHeight, kernelH, strideH, padding)
	if err != nil {
		return nil, nil, 0, err
	}
	outputWidth, err := spatialOutput(inputWidth, kernelW, strideW, padding)
	if err != nil {
		return nil, nil, 0, err
	}

	outputShape := []int{batchSize, outputChannels, outputHeight, outputWidth}

	var paramShapes [][]int
	paramCount := int64(0)

	// Weight tensor: [outputChannels, inputChannels, kernelH, kernelW]
	weightShape := []int{outputChannels, inputChannels, kernelH, kernelW}
	paramShapes = append(paramShapes, weightShape)
	paramCount += int64(outputChannels * inputChannels * kernelH * kernelW)

	if useBias {
		paramShapes = append(paramShapes, []int{outputChannels})
		paramCount += int64(outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

// spatialOutput computes one spatial output dimension. "same" padding keeps
// ceil(in/stride) positions; "valid" drops partial windows.
func spatialOutput(input, window, stride int, padding Padding) (int, error) {
	switch padding {
	case PaddingSame:
		return (input + stride - 1) / stride, nil
	case PaddingValid:
		out := (input-window)/stride + 1
		if out <= 0 {
			return 0, fmt.Errorf("window %d larger than input %d with valid padding", window, input)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("unknown padding mode %q", padding)
	}
}

func computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("dense layer requires at least 2D input")
	}

	outputSize, ok := layer.Parameters["output_size"].(int)
	if !ok || outputSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing or invalid output_size parameter")
	}
	useBias := getBoolParam(layer.Parameters, "use_bias", true)

	// Flatten all dimensions except batch
	inputSize := 1
	for i := 1; i < len(inputShape); i++ {
		inputSize *= inputShape[i]
	}
	layer.Parameters["input_size"] = inputSize

	outputShape := []int{inputShape[0], outputSize}

	var paramShapes [][]int
	paramCount := int64(0)

	// Weight matrix: [inputSize, outputSize]
	paramShapes = append(paramShapes, []int{inputSize, outputSize})
	paramCount += int64(inputSize * outputSize)

	if useBias {
		paramShapes = append(paramShapes, []int{outputSize})
		paramCount += int64(outputSize)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeBatchNormInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("batch norm layer requires at least 2D input")
	}

	numFeatures, ok := layer.Parameters["num_features"].(int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("missing num_features parameter")
	}
	affine := getBoolParam(layer.Parameters, "affine", true)

	// Normalizes along the feature dimension without changing shape
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)

	if numFeatures != inputShape[1] {
		return nil, nil, 0, fmt.Errorf("num_features (%d) doesn't match input feature dimension (%d)", numFeatures, inputShape[1])
	}

	var paramShapes [][]int
	var paramCount int64
	if affine {
		paramShapes = append(paramShapes, []int{numFeatures}) // gamma (scale)
		paramShapes = append(paramShapes, []int{numFeatures}) // beta (shift)
		paramCount = int64(numFeatures * 2)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeMaxPool2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D layer requires 4D input [batch, channels, height, width]")
	}

	poolH := getIntParam(layer.Parameters, "pool_h", 0)
	poolW := getIntParam(layer.Parameters, "pool_w", 0)
	if poolH <= 0 || poolW <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid pool size %dx%d", poolH, poolW)
	}
	strideH := getIntParam(layer.Parameters, "stride_h", poolH)
	strideW := getIntParam(layer.Parameters, "stride_w", poolW)
	padding := Padding(getStringParam(layer.Parameters, "padding", string(PaddingValid)))

	outputHeight, err := spatialOutput(inputShape[2], poolH, strideH, padding)
	if err != nil {
		return nil, nil, 0, err
	}
	outputWidth, err := spatialOutput(inputShape[3], poolW, strideW, padding)
	if err != nil {
		return nil, nil, 0, err
	}

	return []int{inputShape[0], inputShape[1], outputHeight, outputWidth}, [][]int{}, 0, nil
}

func computeFlattenInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("flatten layer requires at least 2D input")
	}
	features := 1
	for i := 1; i < len(inputShape); i++ {
		features *= inputShape[i]
	}
	return []int{inputShape[0], features}, [][]int{}, 0, nil
}

// computeConcatInfo joins two branches along the channel axis. Batch and
// spatial dimensions must agree; the output channel count is the sum of the
// branch channel counts.
func computeConcatInfo(layer *LayerSpec, inputs [][]int) ([]int, [][]int, int64, error) {
	if len(inputs) != 2 {
		return nil, nil, 0, fmt.Errorf("concat layer expects exactly two inputs, got %d", len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if len(a) != 4 || len(b) != 4 {
		return nil, nil, 0, fmt.Errorf("concat layer requires 4D inputs, got %v and %v", a, b)
	}
	if a[0] != b[0] || a[2] != b[2] || a[3] != b[3] {
		return nil, nil, 0, fmt.Errorf("concat branches disagree outside the channel axis: %v vs %v", a, b)
	}
	return []int{a[0], a[1] + b[1], a[2], a[3]}, [][]int{}, 0, nil
}

func computeActivationInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	// Activation layers don't change shape and have no parameters
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)
	return outputShape, [][]int{}, 0, nil
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\n", ms.Name)
	fmt.Fprintf(&sb, "Input Shape: %v\n", ms.InputShape)
	fmt.Fprintf(&sb, "Output Shape: %v\n", ms.OutputShape)
	fmt.Fprintf(&sb, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&sb, "Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		fmt.Fprintf(&sb, "Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String())
		if len(layer.Inputs) > 0 {
			fmt.Fprintf(&sb, "  From:   %v\n", layer.Inputs)
		}
		fmt.Fprintf(&sb, "  Input:  %v\n", layer.InputShape)
		fmt.Fprintf(&sb, "  Output: %v\n", layer.OutputShape)
		fmt.Fprintf(&sb, "  Params: %d\n\n", layer.ParameterCount)
	}

	return sb.String()
}

// Layer returns the named layer spec, or nil if no such layer exists.
func (ms *ModelSpec) Layer(name string) *LayerSpec {
	for i := range ms.Layers {
		if ms.Layers[i].Name == name {
			return &ms.Layers[i]
		}
	}
	return nil
}

// Helper functions for parameter extraction
func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if val, exists := params[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
		// JSON decoding turns numbers into float64
		if floatVal, ok := val.(float64); ok {
			return int(floatVal)
		}
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatParam(params map[string]interface{}, key string, defaultValue float32) float32 {
	if val, exists := params[key]; exists {
		if floatVal, ok := val.(float32); ok {
			return floatVal
		}
		if floatVal, ok := val.(float64); ok {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getStringParam(params map[string]interface{}, key string, defaultValue string) string {
	if val, exists := params[key]; exists {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return defaultValue
}
