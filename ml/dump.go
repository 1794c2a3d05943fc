// dump.go - Lesbare Ausgabe von Tensoren fuer Trace-Logs und die CLI
package ml

import (
	"strconv"
	"strings"
)

// DumpOptions veraendert die Ausgabe von Dump und DumpIndices
type DumpOptions func(*dumpOptions)

type dumpOptions struct {
	precision int
	threshold int
	edgeItems int
}

// DumpWithPrecision setzt die Nachkommastellen
func DumpWithPrecision(n int) DumpOptions {
	return func(o *dumpOptions) { o.precision = n }
}

// DumpWithThreshold: bis zu n Elemente werden vollstaendig ausgegeben,
// darueber nur die Raender jeder Achse.
func DumpWithThreshold(n int) DumpOptions {
	return func(o *dumpOptions) { o.threshold = n }
}

// DumpWithEdgeItems setzt die Anzahl Elemente am Anfang und Ende jeder Achse
func DumpWithEdgeItems(n int) DumpOptions {
	return func(o *dumpOptions) { o.edgeItems = n }
}

func resolveDumpOptions(n int, fns []DumpOptions) dumpOptions {
	o := dumpOptions{precision: 4, threshold: 1000, edgeItems: 3}
	for _, fn := range fns {
		fn(&o)
	}
	if n <= o.threshold {
		o.edgeItems = n
	}
	return o
}

// printer schreibt einen row-major Puffer verschachtelt wie [[a, b], [c, d]]
type printer struct {
	sb      strings.Builder
	shape   []int
	strides []int
	items   int
	elem    func(off int) string
}

func (p *printer) skipped(dim, i int) bool {
	return 2*p.items < dim && i >= p.items && i < dim-p.items
}

func (p *printer) separator(depth int) string {
	rest := len(p.shape) - depth - 1
	return "," + strings.Repeat("\n", rest) + strings.Repeat(" ", depth+1)
}

func (p *printer) block(depth, off int) {
	dim := p.shape[depth]
	last := depth == len(p.shape)-1

	p.sb.WriteByte('[')
	for i := 0; i < dim; i++ {
		if p.skipped(dim, i) {
			p.sb.WriteString("..., ")
			if !last {
				p.sb.WriteString(strings.Repeat("\n", len(p.shape)-depth-1) + strings.Repeat(" ", depth+1))
			}
			i = dim - p.items - 1
			continue
		}

		o := off + i*p.strides[depth]
		if last {
			text := p.elem(o)
			if !strings.HasPrefix(text, "-") {
				p.sb.WriteByte(' ')
			}
			p.sb.WriteString(text)
			if i < dim-1 {
				p.sb.WriteString(", ")
			}
			continue
		}

		p.block(depth+1, o)
		if i < dim-1 {
			p.sb.WriteString(p.separator(depth))
		}
	}
	p.sb.WriteByte(']')
}

func render(shape []int, n int, fns []DumpOptions, elem func(dumpOptions, int) string) string {
	if len(shape) == 0 {
		return "[]"
	}
	o := resolveDumpOptions(n, fns)
	p := &printer{
		shape:   shape,
		strides: rowMajorStrides(shape),
		items:   o.edgeItems,
		elem:    func(off int) string { return elem(o, off) },
	}
	p.block(0, 0)
	return p.sb.String()
}

// Dump gibt einen Tensor lesbar aus
func Dump(t *Tensor, opts ...DumpOptions) string {
	return render(t.shape, len(t.data), opts, func(o dumpOptions, off int) string {
		return strconv.FormatFloat(float64(t.data[off]), 'f', o.precision, 32)
	})
}

// DumpIndices gibt eine Zuordnungskarte lesbar aus
func DumpIndices(t *Indices, opts ...DumpOptions) string {
	return render(t.shape, len(t.data), opts, func(_ dumpOptions, off int) string {
		return strconv.FormatInt(int64(t.data[off]), 10)
	})
}
