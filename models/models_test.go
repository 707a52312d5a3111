package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamelbelguidoumG2/covid-cxr/config"
	"github.com/KamelbelguidoumG2/covid-cxr/layers"
	"github.com/KamelbelguidoumG2/covid-cxr/training"
)

func testConfig() *config.ModelConfig {
	return &config.ModelConfig{
		NodesDense0:   128,
		LR:            0.0001,
		Dropout:       0.4,
		L2Lambda:      0.0001,
		InitFilters:   16,
		FilterExpBase: 2,
		ConvBlocks:    3,
		KernelSize:    config.Dims{3, 3},
		MaxPoolSize:   config.Dims{2, 2},
		Strides:       config.Dims{1, 1},
	}
}

var testInputShape = config.InputShape(32, 224, 224, 3)

func TestDCNNBinaryArchitecture(t *testing.T) {
	model, err := DCNNBinary(testConfig(), testInputShape, []string{"accuracy"}, nil)
	require.NoError(t, err)

	spec := model.Spec
	require.True(t, spec.Compiled)

	// One conv stage per configured block, filters doubling from 16
	for i, want := range []int{16, 32, 64} {
		conv := spec.Layer(fmt.Sprintf("conv%d", i))
		require.NotNil(t, conv, "conv%d missing", i)
		assert.Equal(t, want, conv.Parameters["output_channels"], "conv%d filters", i)
		assert.Equal(t, 3, conv.Parameters["kernel_h"], "conv%d kernel", i)
		assert.Equal(t, layers.InitHeUniform, conv.Parameters["weight_init"])
		assert.NotNil(t, spec.Layer(fmt.Sprintf("bn%d", i)))
		assert.NotNil(t, spec.Layer(fmt.Sprintf("leaky%d", i)))
		assert.NotNil(t, spec.Layer(fmt.Sprintf("pool%d", i)))
	}
	assert.Nil(t, spec.Layer("conv3"))

	// Single sigmoid output unit
	output := spec.Layer("output")
	require.NotNil(t, output)
	assert.Equal(t, 1, output.Parameters["output_size"])
	assert.Equal(t, layers.InitGlorotUniform, output.Parameters["weight_init"])
	last := spec.Layers[len(spec.Layers)-1]
	assert.Equal(t, layers.Sigmoid, last.Type)
	assert.Equal(t, []int{32, 1}, spec.OutputShape)

	assert.Equal(t, training.BinaryCrossEntropy, model.Compile.Loss)
	assert.Equal(t, training.Adam, model.Compile.Optimizer.Type)
	assert.InDelta(t, 0.0001, model.Compile.Optimizer.LearningRate, 1e-9)
}

func TestDCNNBinaryOutputBiasSeed(t *testing.T) {
	bias := float32(-1.2)
	model, err := DCNNBinary(testConfig(), testInputShape, []string{"accuracy"}, &bias)
	require.NoError(t, err)

	output := model.Spec.Layer("output")
	require.NotNil(t, output)
	assert.Equal(t, bias, output.Parameters["bias_init"])

	params, err := model.Spec.InitializeParameters()
	require.NoError(t, err)
	for _, p := range params {
		if p.Layer == "output" && p.Name == "bias" {
			require.Len(t, p.Data, 1)
			assert.Equal(t, bias, p.Data[0])
			return
		}
	}
	t.Fatal("output bias parameter missing")
}

func TestDCNNBinaryDefaultBiasUnset(t *testing.T) {
	model, err := DCNNBinary(testConfig(), testInputShape, []string{"accuracy"}, nil)
	require.NoError(t, err)

	_, seeded := model.Spec.Layer("output").Parameters["bias_init"]
	assert.False(t, seeded)
}

func TestDCNNMulticlassArchitecture(t *testing.T) {
	model, err := DCNNMulticlass(testConfig(), testInputShape, 3, []string{"accuracy", "auc"})
	require.NoError(t, err)

	spec := model.Spec

	// First block uses the degenerate 1x1 kernel, later blocks the configured one
	conv0 := spec.Layer("conv0")
	require.NotNil(t, conv0)
	assert.Equal(t, 1, conv0.Parameters["kernel_h"])
	assert.Equal(t, 1, conv0.Parameters["kernel_w"])
	conv1 := spec.Layer("conv1")
	require.NotNil(t, conv1)
	assert.Equal(t, 3, conv1.Parameters["kernel_h"])

	// Extra dropout between the hidden dense layer and its activation
	assert.NotNil(t, spec.Layer("dropout_dense0"))

	output := spec.Layer("output")
	require.NotNil(t, output)
	assert.Equal(t, 3, output.Parameters["output_size"])
	last := spec.Layers[len(spec.Layers)-1]
	assert.Equal(t, layers.Softmax, last.Type)
	assert.Equal(t, []int{32, 3}, spec.OutputShape)

	assert.Equal(t, training.CategoricalCrossEntropy, model.Compile.Loss)
}

func TestDCNNMulticlassResnetArchitecture(t *testing.T) {
	model, err := DCNNMulticlassResnet(testConfig(), testInputShape, 3, []string{"accuracy"})
	require.NoError(t, err)

	spec := model.Spec

	// Concat adds each block's filters onto the running channel count:
	// 3 -> 3+16 -> 19+32 -> 51+64
	for i, want := range []int{19, 51, 115} {
		concat := spec.Layer(fmt.Sprintf("concat%d", i))
		require.NotNil(t, concat, "concat%d missing", i)
		assert.Equal(t, want, concat.OutputShape[1], "concat%d channels", i)
		assert.NotNil(t, spec.Layer(fmt.Sprintf("conv%d_0", i)))
		assert.NotNil(t, spec.Layer(fmt.Sprintf("conv%d_1", i)))
	}

	// No extra dropout in the residual head
	assert.Nil(t, spec.Layer("dropout_dense0"))

	output := spec.Layer("output")
	require.NotNil(t, output)
	assert.Equal(t, 3, output.Parameters["output_size"])
	assert.Equal(t, []int{32, 3}, spec.OutputShape)
	assert.Equal(t, training.CategoricalCrossEntropy, model.Compile.Loss)
}

func TestDCNNMulticlassResnetStrideMismatchFails(t *testing.T) {
	// A stride that shrinks the conv path makes the shortcut concat impossible.
	cfg := testConfig()
	cfg.Strides = config.Dims{2, 2}

	_, err := DCNNMulticlassResnet(cfg, testInputShape, 3, []string{"accuracy"})
	assert.Error(t, err)
}

func TestZeroBlocksRejected(t *testing.T) {
	cfg := testConfig()
	cfg.ConvBlocks = 0

	_, err := DCNNBinary(cfg, testInputShape, []string{"accuracy"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONV_BLOCKS")
}

func TestInvalidMetricRejected(t *testing.T) {
	_, err := DCNNBinary(testConfig(), testInputShape, []string{"f1"}, nil)
	assert.Error(t, err)
}

func TestBadInputShapeRejected(t *testing.T) {
	_, err := DCNNMulticlass(testConfig(), []int{224, 224, 3}, 3, []string{"accuracy"})
	assert.Error(t, err)
}

func TestTooFewClassesRejected(t *testing.T) {
	_, err := DCNNMulticlass(testConfig(), testInputShape, 1, []string{"accuracy"})
	assert.Error(t, err)

	_, err = DCNNMulticlassResnet(testConfig(), testInputShape, 0, []string{"accuracy"})
	assert.Error(t, err)
}

func TestNilConfigRejected(t *testing.T) {
	_, err := DCNNBinary(nil, testInputShape, []string{"accuracy"}, nil)
	assert.Error(t, err)
}

func TestModelSummaryIncludesCompileConfig(t *testing.T) {
	model, err := DCNNBinary(testConfig(), testInputShape, []string{"accuracy", "auc"}, nil)
	require.NoError(t, err)

	s := model.Summary()
	assert.Contains(t, s, "binary_crossentropy")
	assert.Contains(t, s, "Adam")
	assert.Contains(t, s, "accuracy")
}
