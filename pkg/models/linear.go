package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// fallbackRidge is the penalty used when the least squares design matrix is
// rank deficient, e.g. when every training window is identical.
const fallbackRidge = 1e-8

// LinearModel is an autoregressive linear model: the next value is an
// intercept plus a weighted sum of the window.
//
// With Ridge == 0 the weights are the ordinary least squares solution (QR).
// A positive Ridge adds an L2 penalty on the weights (not on the intercept)
// and solves the normal equations by Cholesky factorization.
type LinearModel struct {
	Ridge float64

	intercept float64
	weights   []float64
}

// NewLinearModel creates a linear model with the given L2 penalty.
func NewLinearModel(ridge float64) (*LinearModel, error) {
	if ridge < 0 {
		return nil, fmt.Errorf("ridge penalty must be >= 0, got %v", ridge)
	}
	return &LinearModel{Ridge: ridge}, nil
}

// Name returns the model identifier.
func (m *LinearModel) Name() string {
	return "linear"
}

// Fit estimates the intercept and window weights.
func (m *LinearModel) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, cols, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	design := mat.NewDense(rows, cols+1, nil)
	for r := 0; r < rows; r++ {
		design.Set(r, 0, 1)
		for c := 0; c < cols; c++ {
			design.Set(r, c+1, x.At(r, c))
		}
	}
	target := mat.NewVecDense(rows, append([]float64(nil), y...))

	var beta *mat.VecDense
	if m.Ridge > 0 {
		beta, err = solveRidge(design, target, m.Ridge)
	} else {
		beta, err = solveLeastSquares(design, target)
	}
	if err != nil {
		return fmt.Errorf("linear fit: %w", err)
	}

	m.intercept = beta.AtVec(0)
	m.weights = make([]float64, cols)
	for c := range m.weights {
		m.weights[c] = beta.AtVec(c + 1)
	}
	return nil
}

// Predict returns intercept + weights·window.
func (m *LinearModel) Predict(ctx context.Context, window []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.weights == nil {
		return 0, ErrNotFitted
	}
	if err := checkWindow(window, len(m.weights)); err != nil {
		return 0, err
	}
	return m.intercept + floats.Dot(m.weights, window), nil
}

// Coefficients returns the fitted intercept and a copy of the weights.
func (m *LinearModel) Coefficients() (float64, []float64) {
	return m.intercept, append([]float64(nil), m.weights...)
}

func solveLeastSquares(design *mat.Dense, target *mat.VecDense) (*mat.VecDense, error) {
	var beta mat.VecDense
	err := beta.SolveVec(design, target)
	if err == nil {
		return &beta, nil
	}

	var cond mat.Condition
	if !errors.As(err, &cond) {
		return nil, err
	}

	// Scale the penalty to the data and grow it until the normal equations
	// factorize.
	scale := math.Max(1, mat.Norm(design, 2))
	lambda := fallbackRidge * scale * scale
	for attempt := 0; attempt < 4; attempt++ {
		beta, ridgeErr := solveRidge(design, target, lambda)
		if ridgeErr == nil {
			return beta, nil
		}
		err = ridgeErr
		lambda *= 100
	}
	return nil, err
}

func solveRidge(design *mat.Dense, target *mat.VecDense, lambda float64) (*mat.VecDense, error) {
	_, p := design.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, design.T())
	for i := 1; i < p; i++ {
		gram.SetSym(i, i, gram.At(i, i)+lambda)
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, errors.New("normal equations are not positive definite")
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, err
	}
	return &beta, nil
}
