// stencil.go - Kausale 3x3x3 Masken fuer das Kontextmodell
// Enthaelt: Stencil, StencilA, StencilB, Taps
//
// Die Raster-Reihenfolge ist (Hoehe, Breite, Kanal). Ein Tap (dh, dw, dk) ist
// erlaubt, wenn er lexikographisch vor der aktuellen Position liegt.
package contextmodel

import "strings"

// KernelSize ist die Kantenlaenge der kausalen Nachbarschaft
const KernelSize = 3

// Stencil marks which taps of a 3x3x3 kernel may be read. Index [a][b][c]
// is the offset (a-1, b-1, c-1) along (height, width, channel).
type Stencil [KernelSize][KernelSize][KernelSize]bool

// Tap is one readable kernel position.
type Tap struct {
	// Index is the flat kernel position a*9 + b*3 + c
	Index      int
	DH, DW, DK int
}

func causalStencil(self bool) Stencil {
	var s Stencil
	for a := range KernelSize {
		for b := range KernelSize {
			for c := range KernelSize {
				dh, dw, dk := a-1, b-1, c-1
				switch {
				case dh < 0:
					s[a][b][c] = true
				case dh == 0 && dw < 0:
					s[a][b][c] = true
				case dh == 0 && dw == 0 && dk < 0:
					s[a][b][c] = true
				case dh == 0 && dw == 0 && dk == 0:
					s[a][b][c] = self
				}
			}
		}
	}
	return s
}

var (
	// StencilA excludes the current position and everything after it.
	StencilA = causalStencil(false)

	// StencilB additionally permits the current position.
	StencilB = causalStencil(true)
)

// Taps gibt die erlaubten Kernel-Positionen in Kernel-Reihenfolge zurueck
func (s Stencil) Taps() []Tap {
	var taps []Tap
	for a := range KernelSize {
		for b := range KernelSize {
			for c := range KernelSize {
				if s[a][b][c] {
					taps = append(taps, Tap{
						Index: (a*KernelSize+b)*KernelSize + c,
						DH:    a - 1,
						DW:    b - 1,
						DK:    c - 1,
					})
				}
			}
		}
	}
	return taps
}

// String rendert den Stencil als drei 3x3 Ebenen
func (s Stencil) String() string {
	var sb strings.Builder
	for a := range KernelSize {
		for b := range KernelSize {
			for c := range KernelSize {
				if s[a][b][c] {
					sb.WriteByte('1')
				} else {
					sb.WriteByte('0')
				}
			}
			sb.WriteByte(' ')
		}
		if a < KernelSize-1 {
			sb.WriteString("| ")
		}
	}
	return strings.TrimSpace(sb.String())
}
