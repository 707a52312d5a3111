// Package checkpoints serializes built models: a JSON format carrying the
// full architecture, compile configuration, and weights, and an ONNX export
// for interoperability with other frameworks.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/KamelbelguidoumG2/covid-cxr/layers"
	"github.com/KamelbelguidoumG2/covid-cxr/models"
	"github.com/KamelbelguidoumG2/covid-cxr/training"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// Checkpoint is a complete model state: architecture, compile configuration,
// parameter values, and metadata.
type Checkpoint struct {
	ModelSpec *layers.ModelSpec      `json:"model_spec"`
	Compile   training.CompileConfig `json:"compile"`
	Weights   []layers.Parameter     `json:"weights"`
	Metadata  CheckpointMetadata     `json:"metadata"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// FromModel builds a checkpoint from a compiled model, materializing its
// initial parameter values.
func FromModel(m *models.Model, description string) (*Checkpoint, error) {
	if m == nil || m.Spec == nil {
		return nil, fmt.Errorf("model is required")
	}

	weights, err := m.Spec.InitializeParameters()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize parameters: %v", err)
	}

	return &Checkpoint{
		ModelSpec: m.Spec,
		Compile:   m.Compile,
		Weights:   weights,
		Metadata: CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "covid-cxr",
			CreatedAt:   time.Now(),
			Description: description,
		},
	}, nil
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{format: format}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatONNX:
		return NewONNXExporter().ExportToONNX(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// LoadCheckpoint loads a JSON checkpoint from disk.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %v", err)
	}

	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint has no model spec")
	}
	return &checkpoint, nil
}
