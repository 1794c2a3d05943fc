// dual.go - Straight-Through Werte: Vorwaertswert plus Gradienten-Stellvertreter
package ml

// Dual pairs the value an operation produces in the forward pass with the
// differentiable surrogate whose local gradient is used in the backward pass.
// Value = Proxy + stopgrad(f(Proxy) - Proxy).
type Dual struct {
	Value *Tensor
	Proxy *Tensor
}
