// f16.go - Export von Tensoren in halber Genauigkeit
// Format (little-endian): Magic "AQF1", uint32 Rang, uint32 Dimensionen, uint16 Werte.
// Wird fuer die Weitergabe der Kontext-Verteilung an externe Entropie-Coder genutzt.
package ml

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/x448/float16"
)

var f16Magic = [4]byte{'A', 'Q', 'F', '1'}

// maxF16Rank begrenzt den Rang beim Lesen fremder Dateien
const maxF16Rank = 8

// ErrF16Format wird bei ungueltigen Export-Dateien zurueckgegeben
var ErrF16Format = errors.New("invalid f16 tensor file")

// WriteF16 schreibt t in halber Genauigkeit nach w
func WriteF16(w io.Writer, t *Tensor) error {
	bw := bufio.NewWriter(w)

	header := []uint32{uint32(len(t.shape))}
	for _, d := range t.shape {
		header = append(header, uint32(d))
	}

	if _, err := bw.Write(f16Magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bits := make([]uint16, len(t.data))
	for i, v := range t.data {
		bits[i] = float16.Fromfloat32(v).Bits()
	}
	if err := binary.Write(bw, binary.LittleEndian, bits); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return bw.Flush()
}

// ReadF16 liest einen mit WriteF16 geschriebenen Tensor
func ReadF16(r io.Reader) (*Tensor, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != f16Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrF16Format, magic[:])
	}

	var rank uint32
	if err := binary.Read(br, binary.LittleEndian, &rank); err != nil {
		return nil, fmt.Errorf("read rank: %w", err)
	}
	if rank == 0 || rank > maxF16Rank {
		return nil, fmt.Errorf("%w: rank %d", ErrF16Format, rank)
	}

	dims := make([]uint32, rank)
	if err := binary.Read(br, binary.LittleEndian, dims); err != nil {
		return nil, fmt.Errorf("read dims: %w", err)
	}

	shape := make([]int, rank)
	for i, d := range dims {
		shape[i] = int(d)
	}
	n, err := numElements(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrF16Format, err)
	}

	bits := make([]uint16, n)
	if err := binary.Read(br, binary.LittleEndian, bits); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	data := make([]float32, n)
	for i, b := range bits {
		data[i] = float16.Frombits(b).Float32()
	}
	return New(shape, data)
}
