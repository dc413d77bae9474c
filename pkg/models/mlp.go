package models

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MLPConfig holds the hyperparameters of MLPModel.
type MLPConfig struct {
	Hidden       int     // hidden units
	Activation   string  // identity, relu or tanh
	LearningRate float64 // Adam step size
	Alpha        float64 // L2 penalty
	Epochs       int     // maximum passes over the training set
	BatchSize    int     // minibatch size, capped at the number of rows
	Tolerance    float64 // minimum loss improvement that resets Patience
	Patience     int     // epochs without improvement before stopping
}

// DefaultMLPConfig returns a six unit linear network trained for up to 100
// epochs with Adam at 0.001.
func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		Hidden:       6,
		Activation:   "identity",
		LearningRate: 0.001,
		Alpha:        0.0001,
		Epochs:       100,
		BatchSize:    200,
		Tolerance:    1e-4,
		Patience:     10,
	}
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// MLPModel is a feed-forward network with one hidden layer and a linear
// output unit, trained on squared error with minibatch Adam.
//
// All parameters live in one flat slice so the optimizer can update them in
// a single pass; w1, b1, w2 and b2 are views into it.
type MLPModel struct {
	cfg MLPConfig
	rng *rand.Rand

	width  int
	params []float64
	w1     *mat.Dense // width x hidden
	b1     []float64
	w2     []float64
	b2     []float64 // length 1

	lossCurve []float64
}

// NewMLPModel creates an untrained network. The seed fixes weight
// initialization and minibatch order.
func NewMLPModel(cfg MLPConfig, seed int64) (*MLPModel, error) {
	if cfg.Hidden < 1 {
		return nil, fmt.Errorf("hidden units must be >= 1, got %d", cfg.Hidden)
	}
	if cfg.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be >= 1, got %d", cfg.Epochs)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %v", cfg.LearningRate)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 200
	}
	if _, err := activationFor(cfg.Activation); err != nil {
		return nil, err
	}

	return &MLPModel{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}, nil
}

// Name returns the model identifier.
func (m *MLPModel) Name() string {
	return "mlp"
}

// LossCurve returns the training loss after each completed epoch.
func (m *MLPModel) LossCurve() []float64 {
	return append([]float64(nil), m.lossCurve...)
}

func (m *MLPModel) init(width int) {
	h := m.cfg.Hidden
	m.width = width
	m.params = make([]float64, width*h+h+h+1)

	off := 0
	m.w1 = mat.NewDense(width, h, m.params[off:off+width*h])
	off += width * h
	m.b1 = m.params[off : off+h]
	off += h
	m.w2 = m.params[off : off+h]
	off += h
	m.b2 = m.params[off : off+1]

	// Glorot-uniform bounds per layer, applied to weights and biases alike.
	bound1 := math.Sqrt(6 / float64(width+h))
	for i := 0; i < width*h+h; i++ {
		m.params[i] = (2*m.rng.Float64() - 1) * bound1
	}
	bound2 := math.Sqrt(6 / float64(h+1))
	for i := width*h + h; i < len(m.params); i++ {
		m.params[i] = (2*m.rng.Float64() - 1) * bound2
	}
}

// Fit trains the network on the rows of x and targets y.
func (m *MLPModel) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	rows, cols, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	act, _ := activationFor(m.cfg.Activation)

	m.init(cols)
	m.lossCurve = m.lossCurve[:0]

	h := m.cfg.Hidden
	batch := min(m.cfg.BatchSize, rows)
	grads := make([]float64, len(m.params))
	gw1 := mat.NewDense(cols, h, grads[:cols*h])
	gb1 := grads[cols*h : cols*h+h]
	gw2 := grads[cols*h+h : cols*h+2*h]
	gb2 := grads[cols*h+2*h:]

	moment1 := make([]float64, len(m.params))
	moment2 := make([]float64, len(m.params))
	step := 0

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	stale := 0

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		accum := 0.0
		for start := 0; start < rows; start += batch {
			idx := order[start:min(start+batch, rows)]
			bn := float64(len(idx))

			xb := mat.NewDense(len(idx), cols, nil)
			yb := make([]float64, len(idx))
			for r, src := range idx {
				for c := 0; c < cols; c++ {
					xb.Set(r, c, x.At(src, c))
				}
				yb[r] = y[src]
			}

			pre, hidden, out := m.forward(xb, act)

			delta := make([]float64, len(idx))
			loss := 0.0
			for r := range delta {
				delta[r] = out[r] - yb[r]
				loss += delta[r] * delta[r]
			}
			loss /= 2 * bn
			w1 := m.params[:cols*h]
			penalty := floats.Dot(w1, w1) + floats.Dot(m.w2, m.w2)
			loss += 0.5 * m.cfg.Alpha * penalty / bn
			accum += loss * bn

			// Output layer.
			deltaVec := mat.NewVecDense(len(delta), delta)
			gw2Vec := mat.NewVecDense(h, gw2)
			gw2Vec.MulVec(hidden.T(), deltaVec)
			floats.AddScaled(gw2, m.cfg.Alpha, m.w2)
			floats.Scale(1/bn, gw2)
			gb2[0] = floats.Sum(delta) / bn

			// Hidden layer.
			var dh mat.Dense
			dh.Outer(1, deltaVec, mat.NewVecDense(h, m.w2))
			dh.Apply(func(i, j int, v float64) float64 {
				return v * act.derivative(pre.At(i, j), hidden.At(i, j))
			}, &dh)

			gw1.Mul(xb.T(), &dh)
			gw1.Apply(func(i, j int, v float64) float64 {
				return (v + m.cfg.Alpha*m.w1.At(i, j)) / bn
			}, gw1)
			for j := 0; j < h; j++ {
				gb1[j] = floats.Sum(mat.Col(nil, j, &dh)) / bn
			}

			step++
			m.adam(grads, moment1, moment2, step)
		}

		epochLoss := accum / float64(rows)
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return fmt.Errorf("mlp training diverged at epoch %d", epoch+1)
		}
		m.lossCurve = append(m.lossCurve, epochLoss)

		if epochLoss > best-m.cfg.Tolerance {
			stale++
		} else {
			stale = 0
		}
		if epochLoss < best {
			best = epochLoss
		}
		if m.cfg.Patience > 0 && stale > m.cfg.Patience {
			break
		}
	}

	return nil
}

// adam applies one bias-corrected Adam update to m.params.
func (m *MLPModel) adam(grads, moment1, moment2 []float64, step int) {
	t := float64(step)
	lr := m.cfg.LearningRate * math.Sqrt(1-math.Pow(adamBeta2, t)) / (1 - math.Pow(adamBeta1, t))
	for i, g := range grads {
		moment1[i] = adamBeta1*moment1[i] + (1-adamBeta1)*g
		moment2[i] = adamBeta2*moment2[i] + (1-adamBeta2)*g*g
		m.params[i] -= lr * moment1[i] / (math.Sqrt(moment2[i]) + adamEpsilon)
	}
}

// forward returns the hidden pre-activations, hidden activations and outputs
// for the rows of xb.
func (m *MLPModel) forward(xb *mat.Dense, act activation) (*mat.Dense, *mat.Dense, []float64) {
	rows, _ := xb.Dims()

	pre := &mat.Dense{}
	pre.Mul(xb, m.w1)
	pre.Apply(func(i, j int, v float64) float64 { return v + m.b1[j] }, pre)

	hidden := &mat.Dense{}
	hidden.Apply(func(i, j int, v float64) float64 { return act.apply(v) }, pre)

	var out mat.VecDense
	out.MulVec(hidden, mat.NewVecDense(len(m.w2), m.w2))

	values := make([]float64, rows)
	for r := range values {
		values[r] = out.AtVec(r) + m.b2[0]
	}
	return pre, hidden, values
}

// Predict returns the network output for one window.
func (m *MLPModel) Predict(ctx context.Context, window []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.params == nil {
		return 0, ErrNotFitted
	}
	if err := checkWindow(window, m.width); err != nil {
		return 0, err
	}
	act, _ := activationFor(m.cfg.Activation)

	xb := mat.NewDense(1, m.width, append([]float64(nil), window...))
	_, _, out := m.forward(xb, act)
	return out[0], nil
}

type activation struct {
	apply func(z float64) float64
	// derivative takes the pre-activation z and the activation a = apply(z).
	derivative func(z, a float64) float64
}

func activationFor(name string) (activation, error) {
	switch name {
	case "", "identity":
		return activation{
			apply:      func(z float64) float64 { return z },
			derivative: func(z, a float64) float64 { return 1 },
		}, nil
	case "relu":
		return activation{
			apply: func(z float64) float64 { return math.Max(0, z) },
			derivative: func(z, a float64) float64 {
				if z > 0 {
					return 1
				}
				return 0
			},
		}, nil
	case "tanh":
		return activation{
			apply:      math.Tanh,
			derivative: func(z, a float64) float64 { return 1 - a*a },
		}, nil
	default:
		return activation{}, fmt.Errorf("unknown activation %q (must be identity, relu or tanh)", name)
	}
}
