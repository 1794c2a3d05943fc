// types.go - Request- und Response-Typen der HTTP-API
// Enthaelt: StatusError, ImageData, MSSSIM-, Analyze- und Summary-Typen
package api

import (
	"fmt"
	"time"
)

// StatusError ist ein Fehler mit HTTP-Status, Code und Nachricht
type StatusError struct {
	StatusCode   int
	Status       string
	Code         string `json:"code"`
	ErrorMessage string `json:"message"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the aegan server logs for details"
	}
}

// ImageData sind die Rohbytes einer Bilddatei, in JSON base64-kodiert
type ImageData []byte

type VersionResponse struct {
	Version string `json:"version"`
}

// MSSSIMRequest vergleicht A mit B. Mit Size > 0 werden beide auf
// Size x Size skaliert, sonst muessen sie gleich gross sein.
type MSSSIMRequest struct {
	A    ImageData `json:"a"`
	B    ImageData `json:"b"`
	Size int       `json:"size,omitempty"`
}

type MSSSIMResponse struct {
	MSSSIM float64 `json:"ms_ssim"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// AnalyzeRequest laesst ein Bild durch die Pipeline laufen. AE ist optional
// die Rekonstruktion eines unveraenderten Autoencoders.
type AnalyzeRequest struct {
	Image ImageData `json:"image"`
	AE    ImageData `json:"ae,omitempty"`
	Size  int       `json:"size,omitempty"`
}

type AnalyzeResponse struct {
	Bits              float64  `json:"bits"`
	RateLoss          float64  `json:"rate_loss"`
	MSSSIM            float64  `json:"ms_ssim"`
	AEMSSSIM          *float64 `json:"ae_ms_ssim,omitempty"`
	DeltaMSSSIM       *float64 `json:"delta_ms_ssim,omitempty"`
	Alpha             float64  `json:"alpha"`
	GeneratorLoss     float64  `json:"loss_generator"`
	DiscriminatorLoss float64  `json:"loss_discriminator"`

	// Latent ist die Form [B,h,w,K] des quantisierten Latents
	Latent []int `json:"latent"`
	// Active ist der Anteil der von der Maske durchgelassenen Elemente
	Active float64 `json:"active"`
	// Reconstruction ist das rekonstruierte Bild als PNG
	Reconstruction ImageData `json:"reconstruction,omitempty"`
}

type Run struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Config    map[string]string `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
	Scalars   int               `json:"scalars"`
	LastStep  int               `json:"last_step"`
}

type RunsResponse struct {
	Runs []Run `json:"runs"`
}

type Point struct {
	Step  int       `json:"step"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

type ScalarsResponse struct {
	Run    string   `json:"run"`
	Tag    string   `json:"tag"`
	Tags   []string `json:"tags"`
	Points []Point  `json:"points"`
}
