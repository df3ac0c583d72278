package estimator

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	kmPerDegree = 111.32
	jitter      = 1e-8
)

// GaussianProcess evaluates a Gaussian-process regression with a separable
// squared-exponential kernel over space and time and an explicit polynomial
// trend. Latitude and longitude are projected to kilometres about the
// centroid of the training positions before the kernel is applied.
type GaussianProcess struct{}

// NewGaussianProcess returns the in-process estimator.
func NewGaussianProcess() *GaussianProcess { return &GaussianProcess{} }

// Estimate implements Estimator.
func (g *GaussianProcess) Estimate(ctx context.Context, in Input) (*Output, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	if in.Params.Fit {
		return nil, ErrFitUnsupported
	}
	if !in.Params.Predict {
		return &Output{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := in.Params
	proj := newProjection(in.TrainX)
	train := proj.apply(in.TrainX)
	query := proj.apply(in.Query)
	n, m := len(train), len(query)

	kData := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := kernel(p, train[i], train[j])
			if i == j {
				v += p.SigmaN*p.SigmaN + jitter
			}
			kData[i*n+j] = v
			kData[j*n+i] = v
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, kData)); !ok {
		return nil, fmt.Errorf("gp: training covariance is not positive definite")
	}

	ks := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			ks.Set(i, j, kernel(p, train[i], query[j]))
		}
	}
	var kinvKs mat.Dense
	if err := chol.SolveTo(&kinvKs, ks); err != nil {
		return nil, fmt.Errorf("gp: solve query covariance: %w", err)
	}

	// Trend: beta = (H K^-1 H^T)^-1 H K^-1 y.
	// Powers of a feature that does not vary over the batch (one time step,
	// one location) would make the trend singular; they are left out.
	full := basis(train, p.BasisDegree)
	keep := independentRows(full)
	h := selectRows(full, keep)
	hs := selectRows(basis(query, p.BasisDegree), keep)
	nb, _ := h.Dims()
	var kinvHt mat.Dense
	if err := chol.SolveTo(&kinvHt, h.T()); err != nil {
		return nil, fmt.Errorf("gp: solve basis: %w", err)
	}
	var a mat.Dense
	a.Mul(h, &kinvHt)
	aSym := mat.NewSymDense(nb, nil)
	for i := 0; i < nb; i++ {
		for j := i; j < nb; j++ {
			aSym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	var cholA mat.Cholesky
	if ok := cholA.Factorize(aSym); !ok {
		return nil, fmt.Errorf("gp: trend basis is degenerate for this training set")
	}

	y := mat.NewVecDense(n, append([]float64(nil), in.TrainY...))
	var rhs, beta mat.VecDense
	rhs.MulVec(kinvHt.T(), y)
	if err := cholA.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("gp: solve trend: %w", err)
	}

	var trend, resid, kinvResid mat.VecDense
	trend.MulVec(h.T(), &beta)
	resid.SubVec(y, &trend)
	if err := chol.SolveVecTo(&kinvResid, &resid); err != nil {
		return nil, fmt.Errorf("gp: solve residual: %w", err)
	}

	var mean, queryTrend mat.VecDense
	mean.MulVec(ks.T(), &kinvResid)
	queryTrend.MulVec(hs.T(), &beta)
	mean.AddVec(&mean, &queryTrend)

	// R = Hs - H K^-1 Ks carries the trend uncertainty into the variance.
	var r, ainvR mat.Dense
	r.Mul(h, &kinvKs)
	r.Sub(hs, &r)
	if err := cholA.SolveTo(&ainvR, &r); err != nil {
		return nil, fmt.Errorf("gp: solve trend variance: %w", err)
	}

	out := &Output{Mean: make([]float64, m), Variance: make([]float64, m)}
	prior := p.SigmaF * p.SigmaF
	for j := 0; j < m; j++ {
		explained := 0.0
		for i := 0; i < n; i++ {
			explained += ks.At(i, j) * kinvKs.At(i, j)
		}
		correction := 0.0
		for i := 0; i < nb; i++ {
			correction += r.At(i, j) * ainvR.At(i, j)
		}
		out.Mean[j] = mean.AtVec(j)
		out.Variance[j] = math.Max(prior-explained+correction, 0)
	}
	return out, nil
}

func kernel(p Hyperparameters, a, b [3]float64) float64 {
	dx, dy, dt := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	space := (dx*dx + dy*dy) / (p.LengthSpace * p.LengthSpace)
	tm := dt * dt / (p.LengthTime * p.LengthTime)
	return p.SigmaF * p.SigmaF * math.Exp(-0.5*(space+tm))
}

// basis returns the (1 + 3*degree) x len(x) matrix of per-feature powers.
func basis(x [][3]float64, degree int) *mat.Dense {
	rows := 1 + 3*degree
	h := mat.NewDense(rows, len(x), nil)
	for j, row := range x {
		h.Set(0, j, 1)
		for d := 1; d <= degree; d++ {
			for f := 0; f < 3; f++ {
				h.Set(1+(d-1)*3+f, j, math.Pow(row[f], float64(d)))
			}
		}
	}
	return h
}

// independentRows returns the rows of h that are linearly independent of
// the rows before them over the training points. The constant row always
// survives.
func independentRows(h *mat.Dense) []int {
	const tol = 1e-9
	rows, _ := h.Dims()
	var keep []int
	var ortho [][]float64
	for i := 0; i < rows; i++ {
		v := mat.Row(nil, i, h)
		norm := floats.Norm(v, 2)
		if norm == 0 {
			continue
		}
		for _, q := range ortho {
			floats.AddScaled(v, -floats.Dot(v, q), q)
		}
		rest := floats.Norm(v, 2)
		if rest <= tol*norm {
			continue
		}
		floats.Scale(1/rest, v)
		ortho = append(ortho, v)
		keep = append(keep, i)
	}
	return keep
}

func selectRows(h *mat.Dense, keep []int) *mat.Dense {
	_, cols := h.Dims()
	out := mat.NewDense(len(keep), cols, nil)
	for i, r := range keep {
		out.SetRow(i, h.RawRowView(r))
	}
	return out
}

// projection maps [lat, lng, t] to [northing km, easting km, t].
type projection struct {
	lat0, lng0 float64
	cosLat0    float64
}

func newProjection(x [][3]float64) projection {
	lats := make([]float64, len(x))
	lngs := make([]float64, len(x))
	for i, row := range x {
		lats[i], lngs[i] = row[0], row[1]
	}
	lat0 := floats.Sum(lats) / float64(len(lats))
	lng0 := floats.Sum(lngs) / float64(len(lngs))
	return projection{lat0: lat0, lng0: lng0, cosLat0: math.Cos(lat0 * math.Pi / 180)}
}

func (p projection) apply(x [][3]float64) [][3]float64 {
	out := make([][3]float64, len(x))
	for i, row := range x {
		out[i] = [3]float64{
			(row[0] - p.lat0) * kmPerDegree,
			(row[1] - p.lng0) * kmPerDegree * p.cosLat0,
			row[2],
		}
	}
	return out
}
