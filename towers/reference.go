// reference.go - Pipeline mit Referenz-Tuermen
package towers

import (
	"github.com/ollama/aegan/pipeline"
)

// Colors ist die Anzahl der Farbkanaele der Referenz-Tuerme
const Colors = 3

// NewPipeline baut eine Pipeline aus BlockEncoder, BlockDecoder und
// StatsDiscriminator. Die Projektion wird aus cfg.Seed gezogen.
func NewPipeline(cfg pipeline.Config) (*pipeline.Pipeline, error) {
	proj, err := NewProjection(cfg.Channels, Colors, cfg.Seed)
	if err != nil {
		return nil, err
	}

	enc := &BlockEncoder{Projection: proj, Parallel: cfg.Context.Parallel}
	dec := &BlockDecoder{Projection: proj, Parallel: cfg.Context.Parallel}
	return pipeline.New(cfg, enc, dec, DefaultStatsDiscriminator(), nil)
}
