package model

import (
	"path/filepath"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func clusterWithOutlier() [][]float64 {
	// A tight cluster of ordinary accounts plus one extreme point.
	x := make([][]float64, 0, 21)
	for i := 0; i < 20; i++ {
		x = append(x, []float64{1000 + float64(i*10), 0, 0, 0})
	}
	x = append(x, []float64{5000000, 8, 5, 4})
	return x
}

func TestForestOutlierScoresLower(t *testing.T) {
	x := clusterWithOutlier()

	forest := NewForest(100, 256, 0.1, 42)
	if err := forest.Fit(x); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	scores := forest.DecisionFunction(x)
	if len(scores) != len(x) {
		t.Fatalf("expected %d scores, got %d", len(x), len(scores))
	}

	outlier := scores[len(scores)-1]
	for i := 0; i < len(scores)-1; i++ {
		if outlier >= scores[i] {
			t.Fatalf("outlier score %.4f not below cluster score %.4f (index %d)",
				outlier, scores[i], i)
		}
	}
}

func TestForestDeterministicForFixedSeed(t *testing.T) {
	x := clusterWithOutlier()

	a := NewForest(50, 64, 0.1, 42)
	b := NewForest(50, 64, 0.1, 42)
	if err := a.Fit(x); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if err := b.Fit(x); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	sa := a.DecisionFunction(x)
	sb := b.DecisionFunction(x)
	for i := range sa {
		if sa[i] != sb[i] {
			t.Errorf("score %d differs: %v vs %v", i, sa[i], sb[i])
		}
	}
}

func TestForestClampsSampleSize(t *testing.T) {
	x := clusterWithOutlier()

	// Configured cap exceeds the batch; the fitted forest must record
	// the real subsample so path normalization uses c(21), not c(256).
	forest := NewForest(50, 256, 0.1, 42)
	if err := forest.Fit(x); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if forest.SampleSize != len(x) {
		t.Fatalf("expected fitted sample size %d, got %d", len(x), forest.SampleSize)
	}

	for i, s := range forest.DecisionFunction(x) {
		if s <= -0.5 || s >= 0.5 {
			t.Errorf("score %d outside (-0.5, 0.5): %v", i, s)
		}
	}
}

func TestForestFitEmpty(t *testing.T) {
	forest := NewForest(10, 16, 0.1, 42)
	if err := forest.Fit(nil); err == nil {
		t.Error("expected error fitting on empty matrix")
	}
}

func TestForestSinglePoint(t *testing.T) {
	forest := NewForest(10, 16, 0.1, 42)
	if err := forest.Fit([][]float64{{100, 0, 0, 0}}); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	scores := forest.DecisionFunction([][]float64{{100, 0, 0, 0}})
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
}

func testConfig(t *testing.T) domain.ModelConfig {
	t.Helper()
	return domain.ModelConfig{
		ArtifactPath:  filepath.Join(t.TempDir(), "models", "isolation_forest.json"),
		Trees:         50,
		SampleSize:    64,
		Contamination: 0.1,
		Seed:          42,
	}
}

func testVectors() []domain.FeatureVector {
	vectors := make([]domain.FeatureVector, 0, 12)
	for i := 0; i < 11; i++ {
		vectors = append(vectors, domain.FeatureVector{
			AccountID:        "ACC-" + string(rune('A'+i)),
			TotalVolume:      1000 + float64(i*50),
			TransactionCount: 3,
		})
	}
	vectors = append(vectors, domain.FeatureVector{
		AccountID:        "ACC-HOT",
		TotalVolume:      9000000,
		TransactionCount: 40,
		StructuringCount: 6,
		MuleScore:        3,
		RoundTripCount:   2,
	})
	return vectors
}

func TestRegistryScoreEmpty(t *testing.T) {
	registry := NewRegistry(testConfig(t))
	scores, err := registry.Score(nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("expected empty result, got %d scores", len(scores))
	}
}

func TestRegistryEphemeralFallback(t *testing.T) {
	registry := NewRegistry(testConfig(t))
	if registry.HasSavedModel() {
		t.Fatal("registry should start without a saved model")
	}

	scores, err := registry.Score(testVectors(), true)
	if err != nil {
		t.Fatalf("fallback scoring failed: %v", err)
	}
	if len(scores) != 12 {
		t.Errorf("expected 12 scores, got %d", len(scores))
	}
}

func TestRegistryTrainPersistsAndReloads(t *testing.T) {
	cfg := testConfig(t)
	vectors := testVectors()

	registry := NewRegistry(cfg)
	if err := registry.Train(vectors); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if !registry.HasSavedModel() {
		t.Fatal("expected saved model after train")
	}

	first, err := registry.Score(vectors, true)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}

	// A fresh registry over the same artifact path must load the trained
	// model and reproduce its scores exactly.
	reloaded := NewRegistry(cfg)
	if !reloaded.HasSavedModel() {
		t.Fatal("expected artifact to load in fresh registry")
	}
	second, err := reloaded.Score(vectors, true)
	if err != nil {
		t.Fatalf("score after reload failed: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("score %d differs after reload: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRegistryTrainOverwritesArtifact(t *testing.T) {
	cfg := testConfig(t)
	registry := NewRegistry(cfg)

	if err := registry.Train(testVectors()); err != nil {
		t.Fatalf("first train failed: %v", err)
	}
	firstTrained := registry.current.Load().TrainedAt

	if err := registry.Train(testVectors()); err != nil {
		t.Fatalf("second train failed: %v", err)
	}
	if registry.current.Load().TrainedAt.Before(firstTrained) {
		t.Error("expected artifact to be overwritten by later train")
	}
}

func TestRegistryTrainEmpty(t *testing.T) {
	registry := NewRegistry(testConfig(t))
	if err := registry.Train(nil); err == nil {
		t.Error("expected error training on zero accounts")
	}
}
