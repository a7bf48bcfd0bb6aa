package nn

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// checkpointVersion is bumped on incompatible format changes.
const checkpointVersion = 1

// OptimizerState is the slice of the optimizer surface a checkpoint needs.
// Defined here rather than importing the optim package to avoid a cycle.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	GetLR() float64
}

// Checkpoint bundles the model, optimizer state and training position for
// persistence. Files are CBOR-encoded.
type Checkpoint[B tensor.Backend] struct {
	Model     Module[B]
	Optimizer OptimizerState // may be nil for inference-only snapshots
	Arch      string
	Epoch     int
	Step      int64
	Metric    float64 // best validation accuracy at save time
	Metadata  map[string]string
	CreatedAt time.Time
}

// tensorBlob is the wire form of one tensor.
type tensorBlob struct {
	Shape []int  `cbor:"shape"`
	DType string `cbor:"dtype"`
	Data  []byte `cbor:"data"`
}

// checkpointFile is the wire form of a checkpoint.
type checkpointFile struct {
	Version   int                   `cbor:"version"`
	Arch      string                `cbor:"arch"`
	Epoch     int                   `cbor:"epoch"`
	Step      int64                 `cbor:"step"`
	Metric    float64               `cbor:"metric"`
	Metadata  map[string]string     `cbor:"metadata,omitempty"`
	CreatedAt time.Time             `cbor:"created_at"`
	Model     map[string]tensorBlob `cbor:"model"`
	Optimizer map[string]tensorBlob `cbor:"optimizer,omitempty"`
}

func toBlobs(stateDict map[string]*tensor.RawTensor) map[string]tensorBlob {
	blobs := make(map[string]tensorBlob, len(stateDict))
	for name, raw := range stateDict {
		blobs[name] = tensorBlob{
			Shape: append([]int(nil), raw.Shape()...),
			DType: raw.DType().String(),
			Data:  append([]byte(nil), raw.Bytes()...),
		}
	}
	return blobs
}

func fromBlobs(blobs map[string]tensorBlob, device tensor.Device) (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(blobs))
	for name, blob := range blobs {
		dtype, ok := tensor.ParseDataType(blob.DType)
		if !ok {
			return nil, fmt.Errorf("tensor %q: unknown dtype %q", name, blob.DType)
		}
		raw, err := tensor.NewRaw(tensor.Shape(blob.Shape), dtype, device)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if len(blob.Data) != len(raw.Bytes()) {
			return nil, fmt.Errorf("tensor %q: data size %d does not match shape %v",
				name, len(blob.Data), blob.Shape)
		}
		copy(raw.Bytes(), blob.Data)
		stateDict[name] = raw
	}
	return stateDict, nil
}

// Save writes the checkpoint to path.
func (c *Checkpoint[B]) Save(path string) error {
	file := checkpointFile{
		Version:   checkpointVersion,
		Arch:      c.Arch,
		Epoch:     c.Epoch,
		Step:      c.Step,
		Metric:    c.Metric,
		Metadata:  c.Metadata,
		CreatedAt: time.Now().UTC(),
		Model:     toBlobs(c.Model.StateDict()),
	}
	if c.Optimizer != nil {
		file.Optimizer = toBlobs(c.Optimizer.StateDict())
	}

	encoded, err := cbor.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores model weights, and optimizer state when optimizer
// is non-nil, from a checkpoint file. The model must already be constructed
// with the matching architecture; shape or dtype mismatches are errors.
func LoadCheckpoint[B tensor.Backend](
	path string,
	backend B,
	model Module[B],
	optimizer OptimizerState,
) (*Checkpoint[B], error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var file checkpointFile
	if err := cbor.Unmarshal(encoded, &file); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if file.Version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", file.Version)
	}

	modelState, err := fromBlobs(file.Model, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("model state: %w", err)
	}
	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("load model state: %w", err)
	}

	if optimizer != nil && file.Optimizer != nil {
		optimState, err := fromBlobs(file.Optimizer, backend.Device())
		if err != nil {
			return nil, fmt.Errorf("optimizer state: %w", err)
		}
		if err := optimizer.LoadStateDict(optimState); err != nil {
			return nil, fmt.Errorf("load optimizer state: %w", err)
		}
	}

	return &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Arch:      file.Arch,
		Epoch:     file.Epoch,
		Step:      file.Step,
		Metric:    file.Metric,
		Metadata:  file.Metadata,
		CreatedAt: file.CreatedAt,
	}, nil
}
