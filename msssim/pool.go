// pool.go - 2x2 Average-Pooling mit SAME-Padding
package msssim

// plane ist ein einkanaliger Bildstapel [B,H,W] in float64
type plane struct {
	b, h, w int
	data    []float64
}

func newPlane(b, h, w int) plane {
	return plane{b: b, h: h, w: w, data: make([]float64, b*h*w)}
}

func (p plane) image(i int) []float64 {
	n := p.h * p.w
	return p.data[i*n : (i+1)*n]
}

func pooledSize(n int) int { return (n + 1) / 2 }

// avgPool2 halbiert H und W (aufgerundet). Randfenster mitteln nur ueber
// gueltige Pixel, das Padding zaehlt nicht.
func avgPool2(p plane) plane {
	out := newPlane(p.b, pooledSize(p.h), pooledSize(p.w))
	for i := range p.b {
		src, dst := p.image(i), out.image(i)
		for y := range out.h {
			for x := range out.w {
				var sum float64
				var n int
				for dy := range 2 {
					for dx := range 2 {
						yy, xx := 2*y+dy, 2*x+dx
						if yy < p.h && xx < p.w {
							sum += src[yy*p.w+xx]
							n++
						}
					}
				}
				dst[y*out.w+x] = sum / float64(n)
			}
		}
	}
	return out
}

// AvgPool2 wendet das 2x2 SAME-Pooling auf ein einzelnes Bild [H,W] an
func AvgPool2(img []float64, h, w int) ([]float64, int, int) {
	out := avgPool2(plane{b: 1, h: h, w: w, data: img})
	return out.data, out.h, out.w
}
