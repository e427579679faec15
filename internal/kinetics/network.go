// Package kinetics implements homogeneous mass-action chemistry: rates,
// Jacobians, per-node implicit or exponential sub-steps and the conserved
// combinations of a reaction network.
package kinetics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Term is one species in a reaction with its integer order.
type Term struct {
	Species int
	Order   int
}

// Reaction is r = Kf·Π reactants − Kr·Π products. Kr = 0 is irreversible.
type Reaction struct {
	Reactants []Term
	Products  []Term
	Kf, Kr    float64
}

// Network is an immutable set of reactions over a fixed species count.
type Network struct {
	species   int
	reactions []Reaction
	stoich    *mat.Dense
	linear    bool
}

// NewNetwork copies reactions and builds the species × reactions
// stoichiometric matrix.
func NewNetwork(species int, reactions []Reaction) *Network {
	n := &Network{species: species, reactions: make([]Reaction, len(reactions))}
	for j, r := range reactions {
		n.reactions[j] = Reaction{
			Reactants: append([]Term(nil), r.Reactants...),
			Products:  append([]Term(nil), r.Products...),
			Kf:        r.Kf,
			Kr:        r.Kr,
		}
	}
	if len(reactions) > 0 && species > 0 {
		n.stoich = mat.NewDense(species, len(reactions), nil)
		for j, r := range n.reactions {
			for _, t := range r.Reactants {
				n.stoich.Set(t.Species, j, n.stoich.At(t.Species, j)-float64(t.Order))
			}
			for _, t := range r.Products {
				n.stoich.Set(t.Species, j, n.stoich.At(t.Species, j)+float64(t.Order))
			}
		}
	}
	n.linear = n.isLinear()
	return n
}

func order(terms []Term) int {
	sum := 0
	for _, t := range terms {
		sum += t.Order
	}
	return sum
}

func (n *Network) isLinear() bool {
	for _, r := range n.reactions {
		if r.Kf != 0 && order(r.Reactants) != 1 {
			return false
		}
		if r.Kr != 0 && order(r.Products) != 1 {
			return false
		}
	}
	return true
}

func (n *Network) Species() int   { return n.species }
func (n *Network) Reactions() int { return len(n.reactions) }
func (n *Network) Empty() bool    { return len(n.reactions) == 0 }

// Linear reports whether every active reaction direction is first order, in
// which case the network is dC/dt = K·C with constant K.
func (n *Network) Linear() bool { return n.linear }

// Stoichiometry returns the species × reactions matrix, or nil for an empty
// network. Callers must not modify it.
func (n *Network) Stoichiometry() mat.Matrix {
	if n.stoich == nil {
		return nil
	}
	return n.stoich
}

func ipow(x float64, k int) float64 {
	switch k {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, float64(k))
}

func product(terms []Term, c []float64) float64 {
	p := 1.0
	for _, t := range terms {
		p *= ipow(c[t.Species], t.Order)
	}
	return p
}

// Rates writes the reaction rates at c into dst (allocated when nil).
func (n *Network) Rates(c, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(n.reactions))
	}
	for j, r := range n.reactions {
		dst[j] = r.Kf*product(r.Reactants, c) - r.Kr*product(r.Products, c)
	}
	return dst
}

// Derivative writes dC/dt = S·r(c) into dst (allocated when nil).
func (n *Network) Derivative(c, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, n.species)
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, r := range n.reactions {
		rate := r.Kf*product(r.Reactants, c) - r.Kr*product(r.Products, c)
		for _, t := range r.Reactants {
			dst[t.Species] -= float64(t.Order) * rate
		}
		for _, t := range r.Products {
			dst[t.Species] += float64(t.Order) * rate
		}
	}
	return dst
}

// partial returns ∂/∂c_s of Π c^order over terms.
func partial(terms []Term, c []float64, s int) float64 {
	d := 0.0
	for k, t := range terms {
		if t.Species != s {
			continue
		}
		p := float64(t.Order) * ipow(c[s], t.Order-1)
		for m, o := range terms {
			if m != k {
				p *= ipow(c[o.Species], o.Order)
			}
		}
		d += p
	}
	return d
}

// Jacobian writes ∂(dC/dt)/∂C at c into jac, which must be species × species.
func (n *Network) Jacobian(c []float64, jac *mat.Dense) {
	jac.Zero()
	for _, r := range n.reactions {
		// dr/dc_s for every species touched by the reaction.
		touched := make(map[int]float64, len(r.Reactants)+len(r.Products))
		for _, t := range r.Reactants {
			touched[t.Species] = 0
		}
		for _, t := range r.Products {
			touched[t.Species] = 0
		}
		for s := range touched {
			touched[s] = r.Kf*partial(r.Reactants, c, s) - r.Kr*partial(r.Products, c, s)
		}
		for s, drds := range touched {
			if drds == 0 {
				continue
			}
			for _, t := range r.Reactants {
				jac.Set(t.Species, s, jac.At(t.Species, s)-float64(t.Order)*drds)
			}
			for _, t := range r.Products {
				jac.Set(t.Species, s, jac.At(t.Species, s)+float64(t.Order)*drds)
			}
		}
	}
}
