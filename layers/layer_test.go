package layers_test

import (
	"testing"

	"github.com/KamelbelguidoumG2/covid-cxr/layers"
)

func TestModelBuilderCompile(t *testing.T) {
	inputShape := []int{32, 3, 224, 224}

	builder := layers.NewModelBuilder(inputShape, "test-cnn")
	model, err := builder.
		AddConv2D(16, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0.0001, "conv0").
		AddBatchNorm(16, "bn0").
		AddLeakyReLU(0.3, "leaky0").
		AddMaxPool2D([2]int{2, 2}, [2]int{}, layers.PaddingSame, "pool0").
		AddFlatten("flatten").
		AddDropout(0.4, "dropout").
		AddDense(10, layers.InitHeUniform, 0.0001, "dense0").
		AddSoftmax(-1, "softmax").
		Compile()

	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}

	if !model.Compiled {
		t.Error("model should be marked compiled")
	}

	// Same padding with stride 1 keeps spatial dims; pool halves them
	conv := model.Layer("conv0")
	if conv == nil {
		t.Fatal("conv0 layer missing")
	}
	expectShape(t, "conv0", conv.OutputShape, []int{32, 16, 224, 224})

	pool := model.Layer("pool0")
	expectShape(t, "pool0", pool.OutputShape, []int{32, 16, 112, 112})

	flat := model.Layer("flatten")
	expectShape(t, "flatten", flat.OutputShape, []int{32, 16 * 112 * 112})

	expectShape(t, "model output", model.OutputShape, []int{32, 10})

	// conv weights+bias: 16*3*3*3 + 16
	if conv.ParameterCount != 448 {
		t.Errorf("conv0 parameter count: expected 448, got %d", conv.ParameterCount)
	}

	// batch norm gamma+beta
	bn := model.Layer("bn0")
	if bn.ParameterCount != 32 {
		t.Errorf("bn0 parameter count: expected 32, got %d", bn.ParameterCount)
	}

	// dense weights+bias
	dense := model.Layer("dense0")
	if want := int64(16*112*112*10 + 10); dense.ParameterCount != want {
		t.Errorf("dense0 parameter count: expected %d, got %d", want, dense.ParameterCount)
	}

	var total int64
	for _, layer := range model.Layers {
		total += layer.ParameterCount
	}
	if model.TotalParameters != total {
		t.Errorf("parameter count mismatch: expected %d, got %d", total, model.TotalParameters)
	}
}

func TestConvPaddingArithmetic(t *testing.T) {
	// Same padding with stride 2 keeps ceil(in/stride) positions
	model, err := layers.NewModelBuilder([]int{1, 1, 7, 7}, "pad-same").
		AddConv2D(4, [2]int{3, 3}, [2]int{2, 2}, layers.PaddingSame, layers.InitGlorotUniform, 0, "conv").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	expectShape(t, "same conv", model.OutputShape, []int{1, 4, 4, 4})

	// Valid padding drops partial windows
	model, err = layers.NewModelBuilder([]int{1, 1, 7, 7}, "pad-valid").
		AddConv2D(4, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingValid, layers.InitGlorotUniform, 0, "conv").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	expectShape(t, "valid conv", model.OutputShape, []int{1, 4, 5, 5})
}

func TestMaxPoolStrideDefaultsToPoolSize(t *testing.T) {
	model, err := layers.NewModelBuilder([]int{1, 8, 9, 9}, "pool-default").
		AddMaxPool2D([2]int{3, 3}, [2]int{}, layers.PaddingSame, "pool").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	expectShape(t, "pool", model.OutputShape, []int{1, 8, 3, 3})
}

func TestCompileEmptyModel(t *testing.T) {
	_, err := layers.NewModelBuilder([]int{1, 3, 32, 32}, "empty").Compile()
	if err == nil {
		t.Fatal("expected error compiling empty model")
	}
}

func TestBatchNormFeatureMismatch(t *testing.T) {
	_, err := layers.NewModelBuilder([]int{1, 3, 32, 32}, "bad-bn").
		AddConv2D(8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "conv").
		AddBatchNorm(16, "bn").
		Compile()
	if err == nil {
		t.Fatal("expected error for mismatched batch norm features")
	}
}

func TestDuplicateLayerName(t *testing.T) {
	_, err := layers.NewModelBuilder([]int{1, 3, 32, 32}, "dup").
		AddConv2D(8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "conv").
		AddConv2D(8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "conv").
		Compile()
	if err == nil {
		t.Fatal("expected error for duplicate layer name")
	}
}

func TestDenseFlattensHigherDimensionalInput(t *testing.T) {
	model, err := layers.NewModelBuilder([]int{2, 4, 5, 5}, "dense-4d").
		AddDense(3, layers.InitGlorotUniform, 0, "dense").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	expectShape(t, "dense", model.OutputShape, []int{2, 3})

	dense := model.Layer("dense")
	if got := dense.Parameters["input_size"].(int); got != 100 {
		t.Errorf("dense input_size: expected 100, got %d", got)
	}
}

func TestWindowLargerThanInputFails(t *testing.T) {
	_, err := layers.NewModelBuilder([]int{1, 1, 2, 2}, "too-small").
		AddConv2D(4, [2]int{5, 5}, [2]int{1, 1}, layers.PaddingValid, layers.InitHeUniform, 0, "conv").
		Compile()
	if err == nil {
		t.Fatal("expected error for window larger than input with valid padding")
	}
}

func expectShape(t *testing.T, name string, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s shape: expected %v, got %v", name, want, got)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s shape: expected %v, got %v", name, want, got)
			return
		}
	}
}
