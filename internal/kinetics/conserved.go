package kinetics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const nullTol = 1e-10

// Conserved returns an orthonormal basis of the combinations w with
// wᵀ·S = 0, one per row. For an empty network every species is conserved.
func (n *Network) Conserved() *mat.Dense {
	ns := n.species
	if ns == 0 {
		return nil
	}
	if n.stoich == nil {
		id := mat.NewDense(ns, ns, nil)
		for i := 0; i < ns; i++ {
			id.Set(i, i, 1)
		}
		return id
	}

	var svd mat.SVD
	if !svd.Factorize(n.stoich.T(), mat.SVDFull) {
		return nil
	}
	values := svd.Values(nil)
	maxSV := 0.0
	for _, v := range values {
		maxSV = math.Max(maxSV, v)
	}
	rank := 0
	for _, v := range values {
		if v > nullTol*math.Max(maxSV, 1) {
			rank++
		}
	}
	if rank == ns {
		return nil
	}

	var v mat.Dense
	svd.VTo(&v)
	basis := mat.NewDense(ns-rank, ns, nil)
	for k := rank; k < ns; k++ {
		for i := 0; i < ns; i++ {
			basis.Set(k-rank, i, v.At(i, k))
		}
	}
	return basis
}

// Totals projects per-species amounts onto the conserved basis.
func Totals(basis *mat.Dense, amounts []float64) []float64 {
	if basis == nil {
		return nil
	}
	rows, _ := basis.Dims()
	out := mat.NewVecDense(rows, nil)
	out.MulVec(basis, mat.NewVecDense(len(amounts), amounts))
	return out.RawVector().Data
}
