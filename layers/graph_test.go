package layers_test

import (
	"strings"
	"testing"

	"github.com/KamelbelguidoumG2/covid-cxr/layers"
)

func TestGraphConcatSumsChannels(t *testing.T) {
	g := layers.NewGraphBuilder([]int{1, 3, 8, 8}, "res-block")
	x := g.Input()
	conv := g.Conv2D(x, 16, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "conv")
	cat := g.Concat(conv, x, "concat")
	g.BatchNorm(cat, 19, "bn")

	model, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	concat := model.Layer("concat")
	expectShape(t, "concat", concat.OutputShape, []int{1, 19, 8, 8})
	expectShape(t, "model output", model.OutputShape, []int{1, 19, 8, 8})
}

func TestGraphSharedIntermediateFeedsTwoPaths(t *testing.T) {
	// The same conv output feeds a second conv and the concat shortcut.
	g := layers.NewGraphBuilder([]int{1, 3, 8, 8}, "shared")
	x := g.Input()
	c0 := g.Conv2D(x, 8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "c0")
	c1 := g.Conv2D(c0, 8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "c1")
	g.Concat(c1, c0, "concat")

	model, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}
	expectShape(t, "concat", model.Layer("concat").OutputShape, []int{1, 16, 8, 8})
}

func TestGraphUnknownInput(t *testing.T) {
	g := layers.NewGraphBuilder([]int{1, 3, 8, 8}, "bad")
	g.Conv2D("missing", 8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "conv")

	_, err := g.Compile()
	if err == nil {
		t.Fatal("expected error for unknown input tensor")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the unknown input, got: %v", err)
	}
}

func TestGraphConcatSpatialMismatch(t *testing.T) {
	// A strided conv shrinks spatial dims, so the shortcut no longer lines up.
	g := layers.NewGraphBuilder([]int{1, 3, 8, 8}, "mismatch")
	x := g.Input()
	conv := g.Conv2D(x, 8, [2]int{3, 3}, [2]int{2, 2}, layers.PaddingSame, layers.InitHeUniform, 0, "conv")
	g.Concat(conv, x, "concat")

	_, err := g.Compile()
	if err == nil {
		t.Fatal("expected error for concat spatial mismatch")
	}
}

func TestGraphForwardReferenceRejected(t *testing.T) {
	g := layers.NewGraphBuilder([]int{1, 3, 8, 8}, "forward")
	g.Concat("late", g.Input(), "concat")
	g.Conv2D(g.Input(), 8, [2]int{3, 3}, [2]int{1, 1}, layers.PaddingSame, layers.InitHeUniform, 0, "late")

	_, err := g.Compile()
	if err == nil {
		t.Fatal("expected error for forward reference in graph")
	}
}
