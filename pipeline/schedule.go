// schedule.go - Lernraten-Plan: erst Diskriminator allein, dann GAN
package pipeline

import (
	"fmt"
	"math"

	"github.com/ollama/aegan/envconfig"
)

// Schedule beschreibt die Epochen beider Phasen. In der GAN-Phase werden
// beide Lernraten nach jeder zweiten Epoche halbiert.
type Schedule struct {
	DiscriminatorLR     float64
	GeneratorLR         float64
	DiscriminatorEpochs int
	GANEpochs           int
}

func DefaultSchedule() Schedule {
	return Schedule{
		DiscriminatorLR:     5e-4,
		GeneratorLR:         5e-4,
		DiscriminatorEpochs: 1,
		GANEpochs:           10,
	}
}

// ScheduleFromEnv liest AEGAN_LR_D, AEGAN_LR_G, AEGAN_EPOCHS_D und AEGAN_EPOCHS_GAN
func ScheduleFromEnv() Schedule {
	return Schedule{
		DiscriminatorLR:     envconfig.DiscriminatorLR(),
		GeneratorLR:         envconfig.GeneratorLR(),
		DiscriminatorEpochs: int(envconfig.DiscriminatorEpochs()),
		GANEpochs:           int(envconfig.GANEpochs()),
	}
}

func (s Schedule) Validate() error {
	if !(s.DiscriminatorLR > 0) || math.IsInf(s.DiscriminatorLR, 0) {
		return fmt.Errorf("%w: discriminator learning rate %v", ErrConfig, s.DiscriminatorLR)
	}
	if !(s.GeneratorLR > 0) || math.IsInf(s.GeneratorLR, 0) {
		return fmt.Errorf("%w: generator learning rate %v", ErrConfig, s.GeneratorLR)
	}
	if s.DiscriminatorEpochs < 0 || s.GANEpochs < 0 {
		return fmt.Errorf("%w: negative epochs %d/%d", ErrConfig, s.DiscriminatorEpochs, s.GANEpochs)
	}
	if s.Epochs() == 0 {
		return fmt.Errorf("%w: schedule has no epochs", ErrConfig)
	}
	return nil
}

func (s Schedule) Epochs() int {
	return s.DiscriminatorEpochs + s.GANEpochs
}

// At gibt Phase und Lernraten fuer die globale Epoche epoch zurueck
func (s Schedule) At(epoch int) (Phase, float64, float64) {
	if epoch < s.DiscriminatorEpochs {
		return PhaseDiscriminator, s.DiscriminatorLR, s.GeneratorLR
	}

	decay := math.Pow(0.5, float64((epoch-s.DiscriminatorEpochs)/2))
	return PhaseGAN, s.DiscriminatorLR * decay, s.GeneratorLR * decay
}
