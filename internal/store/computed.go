package store

// Computed is a derived value recomputed synchronously whenever one of its
// dependencies changes.
type Computed[T any] struct {
	sig     *Signal[T]
	compute func() T
	cancels []func()
}

// NewComputed evaluates compute once and again after every change of deps.
func NewComputed[T any](compute func() T, deps ...Source) *Computed[T] {
	c := &Computed[T]{
		sig:     NewSignal(compute()),
		compute: compute,
	}
	for _, d := range deps {
		c.cancels = append(c.cancels, d.OnChange(c.recompute))
	}
	return c
}

func (c *Computed[T]) recompute() {
	c.sig.Set(c.compute())
}

func (c *Computed[T]) Get() T {
	return c.sig.Get()
}

func (c *Computed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return c.sig.Subscribe(fn)
}

func (c *Computed[T]) OnChange(fn func()) (cancel func()) {
	return c.sig.OnChange(fn)
}

// Close detaches the value from its dependencies. It keeps its last value.
func (c *Computed[T]) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}
