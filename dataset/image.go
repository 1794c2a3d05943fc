// MODUL: image
// ZWECK: Bilder laden, auf die Zielgroesse skalieren und in Tensoren wandeln
// INPUT: Dateipfad oder Bytes
// OUTPUT: *ml.Tensor [H,W,3] bzw. [B,H,W,3] mit Werten in [0,1]
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei LoadImage
// ABHAENGIGKEITEN: golang.org/x/image (draw, bmp, tiff, webp)
// HINWEISE: Alpha wird ignoriert, Bilder werden ohne Seitenverhaeltnis gestreckt

package dataset

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ollama/aegan/ml"
)

// Channels ist die Anzahl der Farbkanaele der Tensoren
const Channels = 3

// Decode dekodiert ein Bild aus Byte-Daten
func Decode(data []byte) (image.Image, ImageFormat, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, format, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}
	return img, format, nil
}

// LoadImage laedt ein Bild von einem Dateipfad
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Resize skaliert bilinear auf width x height
func Resize(img image.Image, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst, nil
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// ToTensor schreibt ein RGBA-Bild als [H,W,3] in dst
func ToTensor(img *image.RGBA, dst []float32) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := range b.Dx() {
			px := row[x*4 : x*4+3]
			dst[i] = float32(px[0]) / 255
			dst[i+1] = float32(px[1]) / 255
			dst[i+2] = float32(px[2]) / 255
			i += Channels
		}
	}
}

// FromTensor wandelt Bild i eines Stapels [B,H,W,3] zurueck in RGBA.
// Werte ausserhalb von [0,1] werden geklemmt.
func FromTensor(x *ml.Tensor, i int) (*image.RGBA, error) {
	if err := ml.CheckShape("from tensor", x.Shape(), -1, -1, -1, Channels); err != nil {
		return nil, err
	}
	if i < 0 || i >= x.Dim(0) {
		return nil, fmt.Errorf("bild %d ausserhalb des Stapels (%d)", i, x.Dim(0))
	}

	h, w := x.Dim(1), x.Dim(2)
	n := h * w * Channels
	src := x.Data()[i*n : (i+1)*n]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for p := range h * w {
		for c := range Channels {
			v := min(max(src[p*Channels+c], 0), 1)
			img.Pix[p*4+c] = uint8(v*255 + 0.5)
		}
		img.Pix[p*4+3] = 0xFF
	}
	return img, nil
}

// EncodePNG schreibt Bild i eines Stapels als PNG
func EncodePNG(w io.Writer, x *ml.Tensor, i int) error {
	img, err := FromTensor(x, i)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Stack skaliert Bilder auf size x size und stapelt sie zu [B,size,size,3]
func Stack(size int, imgs ...image.Image) (*ml.Tensor, error) {
	x := ml.Zeros(len(imgs), size, size, Channels)
	n := size * size * Channels
	for i, img := range imgs {
		rgba, err := Resize(img, size, size)
		if err != nil {
			return nil, err
		}
		ToTensor(rgba, x.Data()[i*n:(i+1)*n])
	}
	return x, nil
}

// DecodeTensor dekodiert Bytes zu einem Stapel [1,H,W,3]. Mit size > 0 wird
// auf size x size skaliert, sonst bleibt die Originalgroesse.
func DecodeTensor(data []byte, size int) (*ml.Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if size > 0 {
		w, h = size, size
	}
	rgba, err := Resize(img, w, h)
	if err != nil {
		return nil, err
	}

	x := ml.Zeros(1, h, w, Channels)
	ToTensor(rgba, x.Data())
	return x, nil
}
