package checkpoints

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/KamelbelguidoumG2/covid-cxr/layers"
)

// ONNX wire schema subset used by the exporter. Field numbers follow
// onnx.proto3; messages are encoded directly with protowire rather than
// generated bindings since only the export direction is needed.
const (
	// ModelProto
	modelIrVersion       = 1
	modelProducerName    = 2
	modelProducerVersion = 3
	modelVersion         = 5
	modelGraph           = 7
	modelOpsetImport     = 8

	// OperatorSetIdProto
	opsetDomain  = 1
	opsetVersion = 2

	// GraphProto
	graphNode        = 1
	graphName        = 2
	graphInitializer = 5
	graphInput       = 11
	graphOutput      = 12

	// NodeProto
	nodeInput     = 1
	nodeOutput    = 2
	nodeName      = 3
	nodeOpType    = 4
	nodeAttribute = 5

	// AttributeProto
	attrName = 1
	attrF    = 2
	attrI    = 3
	attrS    = 4
	attrInts = 8
	attrType = 20

	// AttributeProto.AttributeType values
	attrTypeFloat  = 1
	attrTypeInt    = 2
	attrTypeString = 3
	attrTypeInts   = 7

	// TensorProto
	tensorDims      = 1
	tensorDataType  = 2
	tensorFloatData = 4
	tensorName      = 8

	// TensorProto.DataType
	dataTypeFloat = 1

	// ValueInfoProto
	valueInfoName = 1
	valueInfoType = 2

	// TypeProto / TypeProto.Tensor / TensorShapeProto / Dimension
	typeTensorType  = 1
	tensorElemType  = 1
	tensorShape     = 2
	shapeDim        = 1
	dimValue        = 1
)

const onnxOpsetVersion = 13

// ONNXExporter converts checkpoints to ONNX format
type ONNXExporter struct{}

// NewONNXExporter creates a new ONNX exporter
func NewONNXExporter() *ONNXExporter {
	return &ONNXExporter{}
}

// ExportToONNX writes the checkpoint's architecture and weights as an ONNX
// model file.
func (oe *ONNXExporter) ExportToONNX(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil || checkpoint.ModelSpec == nil {
		return fmt.Errorf("checkpoint has no model spec")
	}
	if !checkpoint.ModelSpec.Compiled {
		return fmt.Errorf("model must be compiled before export")
	}

	graph, err := oe.buildGraph(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to build ONNX graph: %v", err)
	}

	var model []byte
	model = appendVarintField(model, modelIrVersion, 7)
	model = appendStringField(model, modelProducerName, "covid-cxr")
	model = appendStringField(model, modelProducerVersion, "1.0.0")
	model = appendVarintField(model, modelVersion, 1)
	model = appendMessageField(model, modelGraph, graph)

	var opset []byte
	opset = appendStringField(opset, opsetDomain, "")
	opset = appendVarintField(opset, opsetVersion, onnxOpsetVersion)
	model = appendMessageField(model, modelOpsetImport, opset)

	if err := os.WriteFile(path, model, 0644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %v", err)
	}
	return nil
}

func (oe *ONNXExporter) buildGraph(checkpoint *Checkpoint) ([]byte, error) {
	spec := checkpoint.ModelSpec

	weightByName := make(map[string]layers.Parameter)
	for _, w := range checkpoint.Weights {
		weightByName[w.Layer+"."+w.Name] = w
	}

	var graph []byte
	graph = appendStringField(graph, graphName, spec.Name)
	graph = appendMessageField(graph, graphInput, valueInfo("input", spec.InputShape))

	previous := "input"
	for i := range spec.Layers {
		layer := &spec.Layers[i]

		inputs := layer.Inputs
		if len(inputs) == 0 {
			inputs = []string{previous}
		}

		node, initializers, err := oe.convertLayer(layer, inputs, weightByName)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %v", layer.Name, err)
		}

		graph = appendMessageField(graph, graphNode, node)
		for _, init := range initializers {
			graph = appendMessageField(graph, graphInitializer, init)
		}
		previous = layer.Name
	}

	graph = appendMessageField(graph, graphOutput, valueInfo(previous, spec.OutputShape))
	return graph, nil
}

// convertLayer encodes one layer as an ONNX node plus any weight
// initializers it references.
func (oe *ONNXExporter) convertLayer(layer *layers.LayerSpec, inputs []string, weights map[string]layers.Parameter) ([]byte, [][]byte, error) {
	var initializers [][]byte

	requireWeight := func(suffix string) (string, error) {
		key := layer.Name + "." + suffix
		w, ok := weights[key]
		if !ok {
			return "", fmt.Errorf("missing parameter tensor %s", key)
		}
		initializers = append(initializers, tensorProto(key, w.Shape, w.Data))
		return key, nil
	}

	var node []byte
	addAttr := func(attr []byte) { node = appendMessageField(node, nodeAttribute, attr) }

	nodeInputs := append([]string{}, inputs...)

	var opType string
	switch layer.Type {
	case layers.Conv2D:
		opType = "Conv"
		wName, err := requireWeight("weight")
		if err != nil {
			return nil, nil, err
		}
		bName, err := requireWeight("bias")
		if err != nil {
			return nil, nil, err
		}
		nodeInputs = append(nodeInputs, wName, bName)
		addAttr(attrIntsProto("kernel_shape", []int64{
			int64(paramInt(layer, "kernel_h")), int64(paramInt(layer, "kernel_w")),
		}))
		addAttr(attrIntsProto("strides", []int64{
			int64(paramInt(layer, "stride_h")), int64(paramInt(layer, "stride_w")),
		}))
		addAttr(attrStringProto("auto_pad", autoPad(layer)))

	case layers.Dense:
		opType = "Gemm"
		wName, err := requireWeight("weight")
		if err != nil {
			return nil, nil, err
		}
		bName, err := requireWeight("bias")
		if err != nil {
			return nil, nil, err
		}
		nodeInputs = append(nodeInputs, wName, bName)
		addAttr(attrFloatProto("alpha", 1.0))
		addAttr(attrFloatProto("beta", 1.0))

	case layers.BatchNorm:
		opType = "BatchNormalization"
		gName, err := requireWeight("gamma")
		if err != nil {
			return nil, nil, err
		}
		bName, err := requireWeight("beta")
		if err != nil {
			return nil, nil, err
		}
		// Fresh models carry identity running statistics.
		numFeatures := paramInt(layer, "num_features")
		meanName := layer.Name + ".running_mean"
		varName := layer.Name + ".running_var"
		initializers = append(initializers,
			tensorProto(meanName, []int{numFeatures}, make([]float32, numFeatures)),
			tensorProto(varName, []int{numFeatures}, ones(numFeatures)))
		nodeInputs = append(nodeInputs, gName, bName, meanName, varName)
		addAttr(attrFloatProto("epsilon", paramFloat(layer, "eps", 1e-3)))
		addAttr(attrFloatProto("momentum", paramFloat(layer, "momentum", 0.99)))

	case layers.LeakyReLU:
		opType = "LeakyRelu"
		addAttr(attrFloatProto("alpha", paramFloat(layer, "negative_slope", 0.3)))

	case layers.MaxPool2D:
		opType = "MaxPool"
		addAttr(attrIntsProto("kernel_shape", []int64{
			int64(paramInt(layer, "pool_h")), int64(paramInt(layer, "pool_w")),
		}))
		addAttr(attrIntsProto("strides", []int64{
			int64(paramInt(layer, "stride_h")), int64(paramInt(layer, "stride_w")),
		}))
		addAttr(attrStringProto("auto_pad", autoPad(layer)))

	case layers.Flatten:
		opType = "Flatten"
		addAttr(attrIntProto("axis", 1))

	case layers.Dropout:
		opType = "Dropout"
		addAttr(attrFloatProto("ratio", paramFloat(layer, "rate", 0.5)))

	case layers.Softmax:
		opType = "Softmax"
		addAttr(attrIntProto("axis", int64(paramInt(layer, "axis"))))

	case layers.Sigmoid:
		opType = "Sigmoid"

	case layers.Concat:
		opType = "Concat"
		addAttr(attrIntProto("axis", 1))

	default:
		return nil, nil, fmt.Errorf("unsupported layer type for ONNX export: %s", layer.Type)
	}

	var encoded []byte
	for _, in := range nodeInputs {
		encoded = appendStringField(encoded, nodeInput, in)
	}
	encoded = appendStringField(encoded, nodeOutput, layer.Name)
	encoded = appendStringField(encoded, nodeName, layer.Name)
	encoded = appendStringField(encoded, nodeOpType, opType)
	encoded = append(encoded, node...)

	return encoded, initializers, nil
}

func autoPad(layer *layers.LayerSpec) string {
	if padding, ok := layer.Parameters["padding"].(string); ok && padding == string(layers.PaddingSame) {
		return "SAME_UPPER"
	}
	return "VALID"
}

func paramInt(layer *layers.LayerSpec, key string) int {
	if v, ok := layer.Parameters[key].(int); ok {
		return v
	}
	if v, ok := layer.Parameters[key].(float64); ok {
		return int(v)
	}
	return 0
}

func paramFloat(layer *layers.LayerSpec, key string, def float32) float32 {
	if v, ok := layer.Parameters[key].(float32); ok {
		return v
	}
	if v, ok := layer.Parameters[key].(float64); ok {
		return float32(v)
	}
	return def
}

func ones(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = 1.0
	}
	return data
}

// Protobuf wire encoding helpers.

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendPackedVarints(b []byte, num protowire.Number, vals []int64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendMessageField(b, num, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendMessageField(b, num, packed)
}

// tensorProto encodes a TensorProto initializer with float data.
func tensorProto(name string, shape []int, data []float32) []byte {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	var t []byte
	t = appendPackedVarints(t, tensorDims, dims)
	t = appendVarintField(t, tensorDataType, dataTypeFloat)
	t = appendPackedFloats(t, tensorFloatData, data)
	t = appendStringField(t, tensorName, name)
	return t
}

// valueInfo encodes a ValueInfoProto for a float tensor of the given shape.
func valueInfo(name string, shape []int) []byte {
	var shapeProto []byte
	for _, d := range shape {
		var dim []byte
		dim = appendVarintField(dim, dimValue, int64(d))
		shapeProto = appendMessageField(shapeProto, shapeDim, dim)
	}

	var tensorType []byte
	tensorType = appendVarintField(tensorType, tensorElemType, dataTypeFloat)
	tensorType = appendMessageField(tensorType, tensorShape, shapeProto)

	var typeProto []byte
	typeProto = appendMessageField(typeProto, typeTensorType, tensorType)

	var vi []byte
	vi = appendStringField(vi, valueInfoName, name)
	vi = appendMessageField(vi, valueInfoType, typeProto)
	return vi
}

// AttributeProto builders.

func attrFloatProto(name string, v float32) []byte {
	var a []byte
	a = appendStringField(a, attrName, name)
	a = appendFloatField(a, attrF, v)
	a = appendVarintField(a, attrType, attrTypeFloat)
	return a
}

func attrIntProto(name string, v int64) []byte {
	var a []byte
	a = appendStringField(a, attrName, name)
	a = appendVarintField(a, attrI, v)
	a = appendVarintField(a, attrType, attrTypeInt)
	return a
}

func attrStringProto(name, s string) []byte {
	var a []byte
	a = appendStringField(a, attrName, name)
	a = appendStringField(a, attrS, s)
	a = appendVarintField(a, attrType, attrTypeString)
	return a
}

func attrIntsProto(name string, vals []int64) []byte {
	var a []byte
	a = appendStringField(a, attrName, name)
	a = appendPackedVarints(a, attrInts, vals)
	a = appendVarintField(a, attrType, attrTypeInts)
	return a
}
