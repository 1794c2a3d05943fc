// handlers.go - HTTP-Handler fuer Metrik, Analyse und Summaries
package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/dataset"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/msssim"
	"github.com/ollama/aegan/summary"
	"github.com/ollama/aegan/towers"
)

func decodeImage(data api.ImageData, size int, field string) (*ml.Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is required", errInvalidRequest, field)
	}
	x, err := dataset.DecodeTensor(data, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return x, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, summary.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ml.ErrNonFinite):
		return http.StatusInternalServerError
	case errors.Is(err, errInvalidRequest), errors.Is(err, errSizeMismatch),
		errors.Is(err, dataset.ErrUnknownFormat), errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, msssim.ErrImageTooSmall), errors.Is(err, ml.ErrShape):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// MSSSIMHandler vergleicht zwei Bilder
func (s *Server) MSSSIMHandler(c *gin.Context) {
	var req api.MSSSIMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	if req.Size < 0 {
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: size %d", errInvalidRequest, req.Size))
		return
	}

	a, err := decodeImage(req.A, req.Size, "a")
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	b, err := decodeImage(req.B, req.Size, "b")
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	if !slices.Equal(a.Shape(), b.Shape()) {
		err := fmt.Errorf("%w: %v and %v", errSizeMismatch, a.Shape()[1:3], b.Shape()[1:3])
		writeError(c, http.StatusBadRequest, err)
		return
	}

	acc, err := msssim.Accuracy(c.Request.Context(), a, b, s.cfg.MSSSIM)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, api.MSSSIMResponse{MSSSIM: acc, Width: a.Dim(2), Height: a.Dim(1)})
}

// AnalyzeHandler laesst ein Bild durch die Referenz-Pipeline laufen
func (s *Server) AnalyzeHandler(c *gin.Context) {
	var req api.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	size := req.Size
	if size == 0 {
		size = int(envconfig.ImageSize())
	}
	if size < 0 || size%towers.BlockSize != 0 {
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: size %d must be a positive multiple of %d", errInvalidRequest, size, towers.BlockSize))
		return
	}

	x, err := decodeImage(req.Image, size, "image")
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	var xAE *ml.Tensor
	if len(req.AE) > 0 {
		if xAE, err = decodeImage(req.AE, size, "ae"); err != nil {
			writeError(c, statusFor(err), err)
			return
		}
	}

	p, err := s.referencePipeline()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.analyze.Acquire(ctx, 1); err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	res, err := p.Step(ctx, x, xAE)
	s.analyze.Release(1)
	if err != nil {
		slog.Warn("analyze failed", "error", err)
		writeError(c, statusFor(err), err)
		return
	}

	var png bytes.Buffer
	if err := dataset.EncodePNG(&png, res.Reconstruction, 0); err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	resp := api.AnalyzeResponse{
		Bits:              res.MeanBits(),
		RateLoss:          res.RateLoss,
		MSSSIM:            res.Accuracy,
		Alpha:             res.Generator.Alpha,
		GeneratorLoss:     res.Generator.Total,
		DiscriminatorLoss: res.Discriminator.Total,
		Latent:            res.Quantized.ZHat.Shape(),
		Active:            res.ActiveFraction(),
		Reconstruction:    png.Bytes(),
	}
	if res.HasAE {
		resp.AEMSSSIM = &res.AEAccuracy
		resp.DeltaMSSSIM = &res.DeltaAccuracy
	}
	c.JSON(http.StatusOK, resp)
}

func toAPIRun(r summary.Run) api.Run {
	return api.Run{
		ID:        r.ID,
		Name:      r.Name,
		Config:    r.Config,
		CreatedAt: r.CreatedAt,
		Scalars:   r.Scalars,
		LastStep:  r.LastStep,
	}
}

// RunsHandler listet alle Laeufe
func (s *Server) RunsHandler(c *gin.Context) {
	runs, err := s.store.Runs()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	resp := api.RunsResponse{Runs: make([]api.Run, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, toAPIRun(r))
	}
	c.JSON(http.StatusOK, resp)
}

// ScalarsHandler gibt die Werte eines Tags zurueck, ohne Tag nur die Tag-Liste
func (s *Server) ScalarsHandler(c *gin.Context) {
	id, tag := c.Param("id"), c.Query("tag")

	if _, err := s.store.Run(id); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	tags, err := s.store.Tags(id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	if tags == nil {
		tags = []string{}
	}

	resp := api.ScalarsResponse{Run: id, Tag: tag, Tags: tags, Points: []api.Point{}}
	if tag != "" {
		points, err := s.store.Scalars(id, tag)
		if err != nil {
			writeError(c, statusFor(err), err)
			return
		}
		for _, p := range points {
			resp.Points = append(resp.Points, api.Point{Step: p.Step, Value: p.Value, Time: p.Time})
		}
	}
	c.JSON(http.StatusOK, resp)
}
