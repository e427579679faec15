package sim

import "sync"

// FieldPool recycles species-major concentration buffers between runs of the
// same size.
type FieldPool struct {
	pool    sync.Pool
	species int
	nodes   int
}

func NewFieldPool(species, nodes int) *FieldPool {
	return &FieldPool{
		species: species,
		nodes:   nodes,
		pool: sync.Pool{
			New: func() interface{} {
				f := make([][]float64, species)
				for i := range f {
					f[i] = make([]float64, nodes)
				}
				return f
			},
		},
	}
}

// Get returns a buffer of the pool's size, or a fresh one of the requested
// size when they differ.
func (p *FieldPool) Get(species, nodes int) [][]float64 {
	if p == nil || species != p.species || nodes != p.nodes {
		f := make([][]float64, species)
		for i := range f {
			f[i] = make([]float64, nodes)
		}
		return f
	}
	return p.pool.Get().([][]float64)
}

func (p *FieldPool) Put(f [][]float64) {
	if p == nil || len(f) != p.species || (len(f) > 0 && len(f[0]) != p.nodes) {
		return
	}
	for _, row := range f {
		clear(row)
	}
	p.pool.Put(f)
}
