package models

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RNNConfig holds the hyperparameters of RNNModel.
type RNNConfig struct {
	Units        int     // recurrent units
	LearningRate float64 // RMSprop step size
	Rho          float64 // RMSprop decay
	Epsilon      float64
	Epochs       int
}

// DefaultRNNConfig returns six linear recurrent units trained for 100 epochs
// with RMSprop at 0.001.
func DefaultRNNConfig() RNNConfig {
	return RNNConfig{
		Units:        6,
		LearningRate: 0.001,
		Rho:          0.9,
		Epsilon:      1e-7,
		Epochs:       100,
	}
}

// RNNModel is a simple recurrent network over the window, one value per time
// step, followed by a dense output unit:
//
//	h_t = x_t*wx + h_{t-1}·U      (linear, no bias)
//	y   = h_T·v + c
//
// It is trained on squared error one sample at a time with RMSprop and
// backpropagation through time. The input kernel and output kernel start
// Glorot-uniform, the recurrent kernel starts orthogonal, the bias at zero.
type RNNModel struct {
	cfg RNNConfig
	rng *rand.Rand

	width  int
	params []float64
	wx     []float64  // units
	u      *mat.Dense // units x units
	v      []float64  // units
	c      []float64  // length 1
}

// NewRNNModel creates an untrained recurrent network. The seed fixes weight
// initialization and sample order.
func NewRNNModel(cfg RNNConfig, seed int64) (*RNNModel, error) {
	if cfg.Units < 1 {
		return nil, fmt.Errorf("units must be >= 1, got %d", cfg.Units)
	}
	if cfg.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be >= 1, got %d", cfg.Epochs)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %v", cfg.LearningRate)
	}
	if cfg.Rho <= 0 || cfg.Rho >= 1 {
		cfg.Rho = 0.9
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-7
	}

	return &RNNModel{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x6a09e667f3bcc909)),
	}, nil
}

// Name returns the model identifier.
func (m *RNNModel) Name() string {
	return "rnn"
}

func (m *RNNModel) init(width int) {
	k := m.cfg.Units
	m.width = width
	m.params = make([]float64, k+k*k+k+1)

	m.wx = m.params[:k]
	m.u = mat.NewDense(k, k, m.params[k:k+k*k])
	m.v = m.params[k+k*k : k+k*k+k]
	m.c = m.params[k+k*k+k:]

	limit := math.Sqrt(6 / float64(1+k))
	for i := range m.wx {
		m.wx[i] = (2*m.rng.Float64() - 1) * limit
	}
	for i := range m.v {
		m.v[i] = (2*m.rng.Float64() - 1) * limit
	}
	m.u.Copy(m.orthogonal(k))
}

// orthogonal returns a k x k orthogonal matrix from the QR factorization of
// a Gaussian matrix, with signs fixed by the diagonal of R.
func (m *RNNModel) orthogonal(k int) *mat.Dense {
	g := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			g.Set(i, j, m.rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(g)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	for j := 0; j < k; j++ {
		if r.At(j, j) < 0 {
			for i := 0; i < k; i++ {
				q.Set(i, j, -q.At(i, j))
			}
		}
	}
	return &q
}

// forward runs the recurrence over window and returns the hidden states
// h_0..h_T (h_0 is the zero state) and the output.
func (m *RNNModel) forward(window []float64) ([]*mat.VecDense, float64) {
	k := m.cfg.Units
	states := make([]*mat.VecDense, len(window)+1)
	states[0] = mat.NewVecDense(k, nil)

	for t, xt := range window {
		next := mat.NewVecDense(k, nil)
		next.MulVec(m.u.T(), states[t])
		next.AddScaledVec(next, xt, mat.NewVecDense(k, m.wx))
		states[t+1] = next
	}

	last := states[len(window)]
	return states, mat.Dot(last, mat.NewVecDense(k, m.v)) + m.c[0]
}

// Fit trains the network with one RMSprop update per training row.
func (m *RNNModel) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	rows, cols, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	m.init(cols)
	k := m.cfg.Units

	grads := make([]float64, len(m.params))
	gwx := grads[:k]
	gu := mat.NewDense(k, k, grads[k:k+k*k])
	gv := grads[k+k*k : k+k*k+k]
	gc := grads[k+k*k+k:]
	cache := make([]float64, len(m.params))

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	window := make([]float64, cols)

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, row := range order {
			mat.Row(window, row, x)
			states, out := m.forward(window)

			dout := 2 * (out - y[row])
			if math.IsNaN(dout) || math.IsInf(dout, 0) {
				return fmt.Errorf("rnn training diverged at epoch %d", epoch+1)
			}

			for i := range grads {
				grads[i] = 0
			}
			gc[0] = dout
			copy(gv, states[cols].RawVector().Data)
			floats.Scale(dout, gv)

			dh := mat.NewVecDense(k, nil)
			dh.ScaleVec(dout, mat.NewVecDense(k, m.v))
			for t := cols; t >= 1; t-- {
				floats.AddScaled(gwx, window[t-1], dh.RawVector().Data)
				gu.RankOne(gu, 1, states[t-1], dh)

				prev := mat.NewVecDense(k, nil)
				prev.MulVec(m.u, dh)
				dh = prev
			}

			m.rmsprop(grads, cache)
		}
	}

	return nil
}

// rmsprop applies one RMSprop update to m.params.
func (m *RNNModel) rmsprop(grads, cache []float64) {
	for i, g := range grads {
		cache[i] = m.cfg.Rho*cache[i] + (1-m.cfg.Rho)*g*g
		m.params[i] -= m.cfg.LearningRate * g / (math.Sqrt(cache[i]) + m.cfg.Epsilon)
	}
}

// Predict returns the network output for one window.
func (m *RNNModel) Predict(ctx context.Context, window []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.params == nil {
		return 0, ErrNotFitted
	}
	if err := checkWindow(window, m.width); err != nil {
		return 0, err
	}
	_, out := m.forward(window)
	return out, nil
}
