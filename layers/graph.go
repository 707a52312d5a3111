package layers

import "fmt"

// graphInputName is the reserved tensor name for the model input.
const graphInputName = "input"

// GraphBuilder constructs models as an explicit computation graph. Unlike
// ModelBuilder, every layer names the tensor(s) it consumes, so the same
// intermediate value can feed more than one downstream path (residual
// shortcuts). Each add method returns the name of the layer it created, which
// callers thread through as the input of the next one.
type GraphBuilder struct {
	name       string
	inputShape []int
	layers     []LayerSpec
}

// NewGraphBuilder creates a graph builder for the given 4D input shape
// [batch, channels, height, width].
func NewGraphBuilder(inputShape []int, name string) *GraphBuilder {
	return &GraphBuilder{
		name:       name,
		inputShape: inputShape,
		layers:     make([]LayerSpec, 0),
	}
}

// Input returns the name of the model input tensor.
func (gb *GraphBuilder) Input() string {
	return graphInputName
}

func (gb *GraphBuilder) add(layer LayerSpec, inputs ...string) string {
	layer.Inputs = inputs
	gb.layers = append(gb.layers, layer)
	return layer.Name
}

// Conv2D adds a Conv2D layer consuming the named tensor.
func (gb *GraphBuilder) Conv2D(input string, outputChannels int, kernel, stride [2]int, padding Padding, weightInit string, l2Lambda float32, name string) string {
	return gb.add(conv2DSpec(outputChannels, kernel, stride, padding, weightInit, l2Lambda, name), input)
}

// BatchNorm adds a Batch Normalization layer consuming the named tensor.
func (gb *GraphBuilder) BatchNorm(input string, numFeatures int, name string) string {
	return gb.add(batchNormSpec(numFeatures, name), input)
}

// LeakyReLU adds a Leaky ReLU activation consuming the named tensor.
func (gb *GraphBuilder) LeakyReLU(input string, negativeSlope float32, name string) string {
	return gb.add(leakyReLUSpec(negativeSlope, name), input)
}

// MaxPool2D adds a max pooling layer consuming the named tensor.
func (gb *GraphBuilder) MaxPool2D(input string, pool, stride [2]int, padding Padding, name string) string {
	return gb.add(maxPool2DSpec(pool, stride, padding, name), input)
}

// Concat joins two named tensors along the channel axis.
func (gb *GraphBuilder) Concat(a, b string, name string) string {
	return gb.add(LayerSpec{
		Type: Concat,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": 1,
		},
	}, a, b)
}

// Flatten adds a flatten layer consuming the named tensor.
func (gb *GraphBuilder) Flatten(input string, name string) string {
	return gb.add(LayerSpec{Type: Flatten, Name: name, Parameters: map[string]interface{}{}}, input)
}

// Dropout adds a dropout layer consuming the named tensor.
func (gb *GraphBuilder) Dropout(input string, rate float32, name string) string {
	return gb.add(LayerSpec{
		Type: Dropout,
		Name: name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	}, input)
}

// Dense adds a fully connected layer consuming the named tensor.
func (gb *GraphBuilder) Dense(input string, outputSize int, weightInit string, l2Lambda float32, name string) string {
	return gb.add(denseSpec(outputSize, weightInit, l2Lambda, name), input)
}

// Softmax adds a softmax activation consuming the named tensor.
func (gb *GraphBuilder) Softmax(input string, axis int, name string) string {
	return gb.add(LayerSpec{
		Type: Softmax,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	}, input)
}

// AddLayer adds an arbitrary layer spec consuming the named tensors.
func (gb *GraphBuilder) AddLayer(layer LayerSpec, inputs ...string) string {
	if len(inputs) == 0 {
		return gb.add(layer, gb.last())
	}
	return gb.add(layer, inputs...)
}

func (gb *GraphBuilder) last() string {
	if len(gb.layers) == 0 {
		return graphInputName
	}
	return gb.layers[len(gb.layers)-1].Name
}

// Compile runs shape inference over the graph. The model output is the output
// of the last layer added; dangling branches are allowed (the shortcut of the
// final block feeds only its Concat) but every referenced input must exist.
func (gb *GraphBuilder) Compile() (*ModelSpec, error) {
	for i := range gb.layers {
		if len(gb.layers[i].Inputs) == 0 {
			return nil, fmt.Errorf("layer %d (%s) has no inputs", i, gb.layers[i].Name)
		}
	}
	return compileLayers(gb.name, gb.inputShape, gb.layers)
}
