package cmd

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ollama/aegan/pipeline"
	"github.com/ollama/aegan/summary"
)

func writeNoise(t *testing.T, path string, size int, seed uint64) {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, color.RGBA{uint8(r.IntN(256)), uint8(r.IntN(256)), uint8(r.IntN(256)), 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestNewCLI(t *testing.T) {
	root := NewCLI()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	if diff := cmp.Diff([]string{"serve", "msssim", "analyze", "eval", "train", "summaries"}, names); diff != "" {
		t.Errorf("Commands falsch (-want +got):\n%s", diff)
	}

	eval, _, err := root.Find([]string{"eval"})
	require.NoError(t, err)
	require.Contains(t, eval.UsageTemplate(), "AEGAN_SUMMARY_DB")
	require.Contains(t, eval.UsageTemplate(), "AEGAN_BATCH_SIZE")

	train, _, err := root.Find([]string{"train"})
	require.NoError(t, err)
	require.Contains(t, train.UsageTemplate(), "AEGAN_LR_D")
	require.Contains(t, train.UsageTemplate(), "AEGAN_EPOCHS_GAN")
}

func TestToValues(t *testing.T) {
	got := toValues([]pipeline.Scalar{{Tag: pipeline.TagBits, Value: 12}, {Tag: pipeline.TagAccuracy, Value: 0.5}})
	want := []summary.Value{{Tag: pipeline.TagBits, Value: 12}, {Tag: pipeline.TagAccuracy, Value: 0.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toValues falsch (-want +got):\n%s", diff)
	}
}

func TestAnalysisRows(t *testing.T) {
	a := analysis{bits: 1, accuracy: 0.9, latent: []int{1, 2, 2, 4}}
	require.Len(t, a.rows(), 8)

	ae, delta := 0.95, -0.05
	a.aeAccuracy, a.delta = &ae, &delta
	rows := a.rows()
	require.Len(t, rows, 10)
	require.Equal(t, []string{pipeline.TagDeltaAccuracy, "-0.050000"}, rows[4])
}

func TestEvalRecordsScalars(t *testing.T) {
	dir := t.TempDir()
	writeNoise(t, filepath.Join(dir, "a.png"), 136, 1)
	writeNoise(t, filepath.Join(dir, "a.ae.png"), 136, 1)

	db := filepath.Join(t.TempDir(), "summaries.db")
	t.Setenv("AEGAN_SUMMARY_DB", db)
	t.Setenv("AEGAN_IMAGE_SIZE", "136")
	t.Setenv("AEGAN_BATCH_SIZE", "1")
	t.Setenv("AEGAN_CHANNELS", "64")

	root := NewCLI()
	root.SetArgs([]string{"eval", "--epochs", "2", "--name", "noise", dir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	store := &summary.Store{DBPath: db}
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "noise", runs[0].Name)
	require.Equal(t, 1, runs[0].LastStep)
	require.Equal(t, "64", runs[0].Config["AEGAN_CHANNELS"])

	points, err := store.Scalars(runs[0].ID, pipeline.TagDeltaAccuracy)
	require.NoError(t, err)
	require.Len(t, points, 2)
	// identische AE-Bilder: delta ist Accuracy - 1
	require.LessOrEqual(t, points[0].Value, 0.0)
}

func TestTrainRecordsScalars(t *testing.T) {
	dir := t.TempDir()
	writeNoise(t, filepath.Join(dir, "a.png"), 136, 1)
	writeNoise(t, filepath.Join(dir, "a.ae.png"), 136, 2)

	db := filepath.Join(t.TempDir(), "summaries.db")
	t.Setenv("AEGAN_SUMMARY_DB", db)
	t.Setenv("AEGAN_IMAGE_SIZE", "136")
	t.Setenv("AEGAN_BATCH_SIZE", "1")
	t.Setenv("AEGAN_CHANNELS", "64")

	root := NewCLI()
	root.SetArgs([]string{"train", "--epochs-d", "1", "--epochs-gan", "2", "--lr-g", "1e-3", "--name", "noise", dir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	store := &summary.Store{DBPath: db}
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 2, runs[0].LastStep)
	require.Equal(t, "0.001", runs[0].Config["lr_generator"])

	// loss_discriminator in jedem Schritt, der Rate-Verlust nur in GAN-Schritten
	points, err := store.Scalars(runs[0].ID, pipeline.TagDiscriminatorLoss)
	require.NoError(t, err)
	require.Len(t, points, 3)

	points, err = store.Scalars(runs[0].ID, pipeline.TagRateLoss)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, 1, points[0].Step)
}

func TestTrainInvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	writeNoise(t, filepath.Join(dir, "a.png"), 136, 1)
	t.Setenv("AEGAN_SUMMARY_DB", filepath.Join(t.TempDir(), "summaries.db"))

	root := NewCLI()
	root.SetArgs([]string{"train", "--lr-d", "0", dir})
	require.ErrorIs(t, root.ExecuteContext(context.Background()), pipeline.ErrConfig)
}
