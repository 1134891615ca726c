package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Registry owns the single process-wide model artifact. Train operations
// are serialized through a mutex (single writer); scorers read the
// current model through an atomic pointer, so a train never blocks or
// tears a concurrent score. The on-disk artifact is replaced by writing
// a temp file and renaming it into place.
type Registry struct {
	mu      sync.Mutex
	cfg     domain.ModelConfig
	current atomic.Pointer[Forest]
}

// NewRegistry creates a registry and loads the persisted artifact if one
// exists. A missing artifact is not an error: scoring falls back to an
// ephemeral fit until an explicit training run produces one.
func NewRegistry(cfg domain.ModelConfig) *Registry {
	r := &Registry{cfg: cfg}

	forest, err := loadArtifact(cfg.ArtifactPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to load model artifact",
				"path", cfg.ArtifactPath,
				"error", err,
			)
		}
		return r
	}

	r.current.Store(forest)
	slog.Info("model artifact loaded",
		"path", cfg.ArtifactPath,
		"trees", len(forest.Trees),
		"trained_at", forest.TrainedAt,
	)
	return r
}

// HasSavedModel reports whether a trained artifact is currently loaded.
func (r *Registry) HasSavedModel() bool {
	return r.current.Load() != nil
}

// Train fits a new forest over the feature vectors, persists it as the
// process-wide artifact, and swaps it in for subsequent scoring runs.
func (r *Registry) Train(vectors []domain.FeatureVector) error {
	if len(vectors) == 0 {
		return fmt.Errorf("cannot train on zero accounts")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	forest := r.newForest()
	if err := forest.Fit(matrix(vectors)); err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}

	if err := saveArtifact(r.cfg.ArtifactPath, forest); err != nil {
		return fmt.Errorf("failed to persist model artifact: %w", err)
	}

	r.current.Store(forest)
	slog.Info("model trained",
		"accounts", len(vectors),
		"trees", len(forest.Trees),
		"path", r.cfg.ArtifactPath,
	)
	return nil
}

// Score produces one raw anomaly measure per vector, lower = more
// anomalous. With useSaved and a loaded artifact, the persisted model
// scores the batch; otherwise an ephemeral model is fitted on the batch
// itself (degraded mode: scores are only meaningful within that batch).
// An empty feature set yields an empty result, not an error.
func (r *Registry) Score(vectors []domain.FeatureVector, useSaved bool) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	x := matrix(vectors)

	if useSaved {
		if forest := r.current.Load(); forest != nil {
			return forest.DecisionFunction(x), nil
		}
		slog.Debug("no saved model, fitting ephemeral model on batch",
			"accounts", len(vectors),
		)
	}

	forest := r.newForest()
	if err := forest.Fit(x); err != nil {
		return nil, fmt.Errorf("failed to fit ephemeral model: %w", err)
	}
	return forest.DecisionFunction(x), nil
}

func (r *Registry) newForest() *Forest {
	return NewForest(r.cfg.Trees, r.cfg.SampleSize, r.cfg.Contamination, r.cfg.Seed)
}

func matrix(vectors []domain.FeatureVector) [][]float64 {
	x := make([][]float64, len(vectors))
	for i := range vectors {
		x[i] = vectors[i].Matrix()
	}
	return x
}

func loadArtifact(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var forest Forest
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, fmt.Errorf("corrupt model artifact: %w", err)
	}
	if len(forest.Trees) == 0 {
		return nil, fmt.Errorf("model artifact has no trees")
	}
	return &forest, nil
}

// saveArtifact writes the forest to a temp file in the target directory
// and renames it over the artifact path, so concurrent readers never see
// a partial write.
func saveArtifact(path string, forest *Forest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	data, err := json.Marshal(forest)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "iforest-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}
