package pool

// VariantStats counts the instances of one variant.
type VariantStats struct {
	Total  int `json:"total"`
	Free   int `json:"free"`
	Active int `json:"active"`
}

// Stats is a point-in-time view of a pool's partition.
type Stats struct {
	Name     string         `json:"name"`
	Variants []VariantStats `json:"variants"`
}

// Total returns the number of instances ever created.
func (s Stats) Total() int {
	n := 0
	for _, v := range s.Variants {
		n += v.Total
	}
	return n
}

// Free returns the number of instances waiting for checkout.
func (s Stats) Free() int {
	n := 0
	for _, v := range s.Variants {
		n += v.Free
	}
	return n
}

// Active returns the number of checked out instances.
func (s Stats) Active() int {
	n := 0
	for _, v := range s.Variants {
		n += v.Active
	}
	return n
}

// Stats returns the current per-variant counts.
func (p *Pool[T, E]) Stats() Stats {
	s := Stats{
		Name:     p.name,
		Variants: make([]VariantStats, len(p.variants)),
	}
	for v := range p.variants {
		vs := &p.variants[v]
		s.Variants[v] = VariantStats{
			Total:  len(vs.all),
			Free:   vs.free.Length(),
			Active: len(vs.active),
		}
	}
	return s
}
