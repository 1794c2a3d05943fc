// MODUL: source
// ZWECK: Batches aus Bildpaaren (Original und Autoencoder-Rekonstruktion)
// INPUT: Verzeichnis mit <name>.<ext> und <name>.ae.<ext>
// OUTPUT: Batch{X, XAE} mit [B,S,S,3] in [0,1]
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: golang.org/x/sync (errgroup, semaphore)
// HINWEISE: Der Rest-Batch am Epochenende wird verworfen, Reihenfolge pro Epoche neu gemischt

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/ml"
)

// aeSuffix markiert die Rekonstruktion des unveraenderten Autoencoders
const aeSuffix = ".ae"

var ErrNoPairs = errors.New("keine Bildpaare gefunden")

// Batch ist ein Stapel Originale mit optionalen Autoencoder-Bildern
type Batch struct {
	X   *ml.Tensor
	XAE *ml.Tensor
	// Names sind die Basisnamen der Paare in Batch-Reihenfolge
	Names []string
}

// Source liefert Batches bis io.EOF am Ende einer Epoche
type Source interface {
	Next(ctx context.Context) (*Batch, error)
}

// Pair sind die Pfade eines Bildpaars
type Pair struct {
	Name  string
	Image string
	AE    string
}

// FindPairs sucht Paare in dir, sortiert nach Name. Bilder ohne
// Gegenstueck werden uebersprungen.
func FindPairs(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	originals := map[string]string{}
	reconstructions := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || FormatFromName(e.Name()) == FormatUnknown {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(dir, e.Name())
		if name, ok := strings.CutSuffix(stem, aeSuffix); ok {
			reconstructions[name] = path
		} else {
			originals[stem] = path
		}
	}

	var pairs []Pair
	for name, img := range originals {
		ae, ok := reconstructions[name]
		if !ok {
			slog.Debug("image without autoencoder pair", "image", img)
			continue
		}
		pairs = append(pairs, Pair{Name: name, Image: img, AE: ae})
	}
	slices.SortFunc(pairs, func(a, b Pair) int { return strings.Compare(a.Name, b.Name) })
	return pairs, nil
}

type Options struct {
	// Size ist die Kantenlaenge nach dem Skalieren
	Size int
	// BatchSize ist die Anzahl Paare pro Batch
	BatchSize int
	Seed      uint64
	// Parallel begrenzt gleichzeitig dekodierte Dateien, 0 = GOMAXPROCS
	Parallel int
}

// OptionsFromEnv liest AEGAN_IMAGE_SIZE, AEGAN_BATCH_SIZE, AEGAN_SEED und AEGAN_NUM_PARALLEL
func OptionsFromEnv() Options {
	return Options{
		Size:      int(envconfig.ImageSize()),
		BatchSize: int(envconfig.BatchSize()),
		Seed:      envconfig.Seed(),
		Parallel:  int(envconfig.NumParallel()),
	}
}

// DirSource liest Paare aus einem Verzeichnis
type DirSource struct {
	opts  Options
	pairs []Pair
	sem   *semaphore.Weighted

	mu    sync.Mutex
	rng   *rand.Rand
	order []int
	pos   int
	epoch int
}

func NewDirSource(dir string, opts Options) (*DirSource, error) {
	if opts.Size <= 0 || opts.BatchSize <= 0 {
		return nil, fmt.Errorf("ungueltige Optionen: size %d, batch %d", opts.Size, opts.BatchSize)
	}
	if opts.Parallel <= 0 {
		opts.Parallel = runtime.GOMAXPROCS(0)
	}

	pairs, err := FindPairs(dir)
	if err != nil {
		return nil, err
	}
	if len(pairs) < opts.BatchSize {
		return nil, fmt.Errorf("%w in %s: %d paare, batch %d", ErrNoPairs, dir, len(pairs), opts.BatchSize)
	}

	s := &DirSource{
		opts:  opts,
		pairs: pairs,
		sem:   semaphore.NewWeighted(int64(opts.Parallel)),
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed)),
	}
	s.shuffle()
	return s, nil
}

// Pairs gibt die gefundenen Paare zurueck
func (s *DirSource) Pairs() []Pair { return slices.Clone(s.pairs) }

// Batches ist die Anzahl voller Batches pro Epoche
func (s *DirSource) Batches() int { return len(s.pairs) / s.opts.BatchSize }

// Epoch gibt die Nummer der laufenden Epoche zurueck
func (s *DirSource) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *DirSource) shuffle() {
	s.order = make([]int, len(s.pairs))
	for i := range s.order {
		s.order[i] = i
	}
	s.rng.Shuffle(len(s.order), func(i, j int) { s.order[i], s.order[j] = s.order[j], s.order[i] })
	s.pos = 0
}

// Reset beginnt eine neue Epoche mit neuer Reihenfolge
func (s *DirSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle()
	s.epoch++
}

// Next dekodiert den naechsten vollen Batch. Am Epochenende gibt es io.EOF.
func (s *DirSource) Next(ctx context.Context) (*Batch, error) {
	s.mu.Lock()
	if s.pos+s.opts.BatchSize > len(s.order) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	idx := slices.Clone(s.order[s.pos : s.pos+s.opts.BatchSize])
	s.pos += s.opts.BatchSize
	s.mu.Unlock()

	size, n := s.opts.Size, s.opts.Size*s.opts.Size*Channels
	b := &Batch{
		X:     ml.Zeros(len(idx), size, size, Channels),
		XAE:   ml.Zeros(len(idx), size, size, Channels),
		Names: make([]string, len(idx)),
	}

	g, gctx := errgroup.WithContext(ctx)
	var acquireErr error
outer:
	for i, j := range idx {
		pair := s.pairs[j]
		b.Names[i] = pair.Name
		for _, f := range []struct {
			path string
			dst  []float32
		}{
			{pair.Image, b.X.Data()[i*n : (i+1)*n]},
			{pair.AE, b.XAE.Data()[i*n : (i+1)*n]},
		} {
			if acquireErr = s.sem.Acquire(gctx, 1); acquireErr != nil {
				break outer
			}
			g.Go(func() error {
				defer s.sem.Release(1)
				return s.load(f.path, f.dst)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}

	slog.Debug("dataset batch", "epoch", s.Epoch(), "names", b.Names)
	return b, nil
}

func (s *DirSource) load(path string, dst []float32) error {
	img, err := LoadImage(path)
	if err != nil {
		return err
	}
	rgba, err := Resize(img, s.opts.Size, s.opts.Size)
	if err != nil {
		return err
	}
	ToTensor(rgba, dst)
	return nil
}
