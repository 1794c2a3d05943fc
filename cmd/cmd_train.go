// cmd_train.go - Referenz-Tuerme und Kontextmodell ueber einen Bildordner trainieren
// Hauptfunktionen: TrainHandler, newTrainCmd
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

// scheduleFromFlags - Flags ueberschreiben die AEGAN_* Defaults
func scheduleFromFlags(cmd *cobra.Command) (pipeline.Schedule, error) {
	s := pipeline.ScheduleFromEnv()
	var err error
	if cmd.Flags().Changed("lr-d") {
		if s.DiscriminatorLR, err = cmd.Flags().GetFloat64("lr-d"); err != nil {
			return s, err
		}
	}
	if cmd.Flags().Changed("lr-g") {
		if s.GeneratorLR, err = cmd.Flags().GetFloat64("lr-g"); err != nil {
			return s, err
		}
	}
	if cmd.Flags().Changed("epochs-d") {
		if s.DiscriminatorEpochs, err = cmd.Flags().GetInt("epochs-d"); err != nil {
			return s, err
		}
	}
	if cmd.Flags().Changed("epochs-gan") {
		if s.GANEpochs, err = cmd.Flags().GetInt("epochs-gan"); err != nil {
			return s, err
		}
	}
	return s, s.Validate()
}

// TrainHandler - Erst nur der Diskriminator, dann GAN-Schritte mit Rate-Term
func TrainHandler(cmd *cobra.Command, args []string) error {
	schedule, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}
	perEpoch, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(filepath.Clean(args[0])) + "-train"
	}

	src, err := dataset.NewDirSource(args[0], dataset.OptionsFromEnv())
	if err != nil {
		return err
	}

	p, err := towers.NewPipeline(pipeline.ConfigFromEnv())
	if err != nil {
		return err
	}
	trainer := pipeline.NewTrainer(p)

	store := &summary.Store{}
	defer store.Close()

	config := envconfig.Values()
	config["lr_discriminator"] = fmt.Sprint(schedule.DiscriminatorLR)
	config["lr_generator"] = fmt.Sprint(schedule.GeneratorLR)
	config["epochs_discriminator"] = fmt.Sprint(schedule.DiscriminatorEpochs)
	config["epochs_gan"] = fmt.Sprint(schedule.GANEpochs)
	run, err := store.NewRun(name, config)
	if err != nil {
		return err
	}
	fmt.Printf("run %s (%d pairs, %d+%d epochs)\n", run.ID, len(src.Pairs()), schedule.DiscriminatorEpochs, schedule.GANEpochs)

	ctx := cmd.Context()
	start := time.Now()
	step := 0
	for epoch := range schedule.Epochs() {
		if epoch > 0 {
			src.Reset()
		}
		phase, lrD, lrG := schedule.At(epoch)
		slog.Info("train epoch", "epoch", epoch, "phase", phase, "lr_d", lrD, "lr_g", lrG)

		for i := 0; perEpoch <= 0 || i < perEpoch; i++ {
			batch, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return err
			}

			res, err := trainer.Train(ctx, batch.X, batch.XAE, phase, lrD, lrG)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if err := store.Record(run.ID, step, toValues(res.Scalars())); err != nil {
				return err
			}

			slog.Debug("train step", "epoch", epoch, "step", step, "phase", phase,
				"rate_loss", res.RateLoss, "loss_discriminator", res.Discriminator.Total)
			step++
		}
	}

	fmt.Printf("%d steps in %s\n", step, time.Since(start).Round(time.Millisecond))
	return nil
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	def := pipeline.DefaultSchedule()
	c := &cobra.Command{
		Use:   "train DIR",
		Short: "Train the discriminator, importance map and context model on image pairs",
		Args:  cobra.ExactArgs(1),
		RunE:  TrainHandler,
	}

	c.Flags().Int("epochs-d", def.DiscriminatorEpochs, "Epochs with discriminator-only steps")
	c.Flags().Int("epochs-gan", def.GANEpochs, "Epochs with discriminator and generator steps")
	c.Flags().Float64("lr-d", def.DiscriminatorLR, "Initial discriminator learning rate, halved every second GAN epoch")
	c.Flags().Float64("lr-g", def.GeneratorLR, "Initial generator learning rate, halved every second GAN epoch")
	c.Flags().Int("steps", 0, "Batches per epoch (0 = whole directory)")
	c.Flags().String("name", "", "Run name (default directory name with -train suffix)")

	return c
}
