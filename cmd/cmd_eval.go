// cmd_eval.go - Referenz-Pipeline ueber einen Bildordner laufen lassen
// Hauptfunktionen: EvalHandler, newEvalCmd
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollama/aegan/dataset"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/pipeline"
	"github.com/ollama/aegan/summary"
	"github.com/ollama/aegan/towers"
)

func toValues(scalars []pipeline.Scalar) []summary.Value {
	values := make([]summary.Value, len(scalars))
	for i, s := range scalars {
		values[i] = summary.Value{Tag: s.Tag, Value: s.Value}
	}
	return values
}

// EvalHandler - Schreibt pro Batch die Summary-Werte in einen neuen Run
func EvalHandler(cmd *cobra.Command, args []string) error {
	epochs, err := cmd.Flags().GetInt("epochs")
	if err != nil {
		return err
	}
	maxSteps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(filepath.Clean(args[0]))
	}

	src, err := dataset.NewDirSource(args[0], dataset.OptionsFromEnv())
	if err != nil {
		return err
	}

	p, err := towers.NewPipeline(pipeline.ConfigFromEnv())
	if err != nil {
		return err
	}

	store := &summary.Store{}
	defer store.Close()

	run, err := store.NewRun(name, envconfig.Values())
	if err != nil {
		return err
	}
	fmt.Printf("run %s (%d pairs, %d batches per epoch)\n", run.ID, len(src.Pairs()), src.Batches())

	ctx := cmd.Context()
	start := time.Now()
	step := 0
	for epoch := 0; epoch < epochs; epoch++ {
		if epoch > 0 {
			src.Reset()
		}

		for maxSteps <= 0 || step < maxSteps {
			batch, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return err
			}

			res, err := p.Step(ctx, batch.X, batch.XAE)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if err := store.Record(run.ID, step, toValues(res.Scalars())); err != nil {
				return err
			}

			slog.Info("eval step", "epoch", epoch, "step", step,
				"bits", res.MeanBits(), "ms-ssim", res.Accuracy, "delta", res.DeltaAccuracy)
			step++
		}
	}

	fmt.Printf("%d steps in %s\n", step, time.Since(start).Round(time.Millisecond))
	return nil
}

// newEvalCmd - Erstellt den eval Command
func newEvalCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "eval DIR",
		Short: "Run the reference pipeline over image pairs and record summaries",
		Args:  cobra.ExactArgs(1),
		RunE:  EvalHandler,
	}

	c.Flags().Int("epochs", 1, "Number of passes over the directory")
	c.Flags().Int("steps", 0, "Stop after STEPS batches (0 = no limit)")
	c.Flags().String("name", "", "Run name (default directory name)")

	return c
}
