// Command cxrmodel builds one of the chest X-ray classifier architectures
// from a YAML config, prints its summary, and optionally writes the model to
// a JSON checkpoint or ONNX file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/KamelbelguidoumG2/covid-cxr/checkpoints"
	"github.com/KamelbelguidoumG2/covid-cxr/config"
	"github.com/KamelbelguidoumG2/covid-cxr/models"
)

func main() {
	var (
		configPath = flag.String("config", "config.yml", "path to the model config YAML")
		modelType  = flag.String("model", "binary", "architecture to build: binary, multiclass, or resnet")
		height     = flag.Int("height", 224, "input image height")
		width      = flag.Int("width", 224, "input image width")
		channels   = flag.Int("channels", 3, "input image channels")
		batch      = flag.Int("batch", 32, "batch size recorded in the input shape")
		classes    = flag.Int("classes", 3, "number of classes (multiclass variants)")
		metricsArg = flag.String("metrics", "accuracy,auc", "comma-separated metric identifiers")
		outputBias = flag.Float64("output-bias", 0, "initial output bias seed (binary only; 0 = default init)")
		jsonPath   = flag.String("checkpoint", "", "write a JSON checkpoint to this path")
		onnxPath   = flag.String("onnx", "", "write an ONNX model to this path")
	)
	flag.Parse()

	if err := run(*configPath, *modelType, *height, *width, *channels, *batch, *classes,
		*metricsArg, *outputBias, *jsonPath, *onnxPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, modelType string, height, width, channels, batch, classes int,
	metricsArg string, outputBias float64, jsonPath, onnxPath string) error {

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	inputShape := config.InputShape(batch, height, width, channels)
	metrics := strings.Split(metricsArg, ",")

	var model *models.Model
	switch modelType {
	case "binary":
		var bias *float32
		if outputBias != 0 {
			b := float32(outputBias)
			bias = &b
		}
		model, err = models.DCNNBinary(cfg, inputShape, metrics, bias)
	case "multiclass":
		model, err = models.DCNNMulticlass(cfg, inputShape, classes, metrics)
	case "resnet":
		model, err = models.DCNNMulticlassResnet(cfg, inputShape, classes, metrics)
	default:
		return fmt.Errorf("unknown model type %q (want binary, multiclass, or resnet)", modelType)
	}
	if err != nil {
		return fmt.Errorf("failed to build %s model: %v", modelType, err)
	}

	if jsonPath == "" && onnxPath == "" {
		return nil
	}

	checkpoint, err := checkpoints.FromModel(model, fmt.Sprintf("%s model built from %s", modelType, configPath))
	if err != nil {
		return err
	}

	if jsonPath != "" {
		saver := checkpoints.NewCheckpointSaver(checkpoints.FormatJSON)
		if err := saver.SaveCheckpoint(checkpoint, jsonPath); err != nil {
			return err
		}
		fmt.Println("wrote JSON checkpoint to", jsonPath)
	}
	if onnxPath != "" {
		saver := checkpoints.NewCheckpointSaver(checkpoints.FormatONNX)
		if err := saver.SaveCheckpoint(checkpoint, onnxPath); err != nil {
			return err
		}
		fmt.Println("wrote ONNX model to", onnxPath)
	}
	return nil
}
