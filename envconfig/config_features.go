// config_features.go - Modell-Konstanten, Feature-Flags und Parallelitaet
//
// Dieses Modul enthaelt:
// - Quantisierungs- und Rate-Konstanten (K, L, t_primo, beta)
// - Feature-Flags (unmaskierte Rate-Variante)
// - Dataset- und Parallelitaets-Einstellungen
// - Trainingsplan (Lernraten, Epochen)
package envconfig

// =============================================================================
// Quantisierung und Rate
// =============================================================================

var (
	// Channels ist die Kanaltiefe K des Latent-Tensors
	Channels = Uint("AEGAN_CHANNELS", 32)

	// Centroids ist die Palettengroesse L
	Centroids = Uint("AEGAN_CENTROIDS", 6)

	// RateTarget ist die Bit-Schwelle t_primo der Hinge-Rate
	RateTarget = Float("AEGAN_RATE_TARGET", 0.4)

	// RateBeta ist das Hinge-Gewicht beta
	RateBeta = Float("AEGAN_RATE_BETA", 500)

	// Seed initialisiert Palette und Kontextmodell
	Seed = Uint64("AEGAN_SEED", 666)
)

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// UnmaskedRate schaltet auf die Rate-Variante ohne Masken-Gewichtung
	UnmaskedRate = Bool("AEGAN_UNMASKED_RATE")
)

// =============================================================================
// Dataset- und Parallelitaets-Einstellungen
// =============================================================================

var (
	// NumParallel setzt die Anzahl paralleler Worker entlang der Batch-Achse
	// Konfigurierbar via AEGAN_NUM_PARALLEL, 0 = GOMAXPROCS
	NumParallel = Uint("AEGAN_NUM_PARALLEL", 0)

	// ImageSize ist die quadratische Zielgroesse beim Laden von Bildern
	ImageSize = Uint("AEGAN_IMAGE_SIZE", 160)

	// BatchSize ist die Anzahl Bildpaare pro Batch
	BatchSize = Uint("AEGAN_BATCH_SIZE", 30)
)

// =============================================================================
// Training
// =============================================================================

var (
	// DiscriminatorLR ist die Start-Lernrate des Diskriminators
	DiscriminatorLR = Float("AEGAN_LR_D", 5e-4)

	// GeneratorLR ist die Start-Lernrate der Generator-Seite
	GeneratorLR = Float("AEGAN_LR_G", 5e-4)

	// DiscriminatorEpochs ist die Anzahl Epochen, in denen nur D lernt
	DiscriminatorEpochs = Uint("AEGAN_EPOCHS_D", 1)

	// GANEpochs ist die Anzahl Epochen mit D- und G-Schritt
	GANEpochs = Uint("AEGAN_EPOCHS_GAN", 10)
)
