// Package models maps the bench configuration onto a forecaster factory.
package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/m4bench/cmd/bench/config"
	"github.com/HatiCode/m4bench/pkg/models"
)

// New returns a factory building the forecaster named by cfg.Model. The
// hyperparameters are checked once here so that a bad configuration fails
// before any series is processed.
func New(cfg *config.Config, logger *slog.Logger) (models.Factory, error) {
	switch cfg.Model {
	case "mean":
		logger.Info("initializing window mean model")
		return func(int64) (models.Forecaster, error) {
			return models.NewWindowMean(), nil
		}, nil

	case "linear":
		logger.Info("initializing linear model", "ridge", cfg.Ridge)
		if _, err := models.NewLinearModel(cfg.Ridge); err != nil {
			return nil, err
		}
		return func(int64) (models.Forecaster, error) {
			return models.NewLinearModel(cfg.Ridge)
		}, nil

	case "mlp":
		mlp := models.DefaultMLPConfig()
		mlp.Hidden = cfg.Hidden
		mlp.Activation = cfg.Activation
		mlp.Epochs = cfg.Epochs
		mlp.LearningRate = cfg.LearningRate
		logger.Info("initializing MLP model",
			"hidden", mlp.Hidden,
			"activation", mlp.Activation,
			"epochs", mlp.Epochs,
			"learning_rate", mlp.LearningRate,
		)
		if _, err := models.NewMLPModel(mlp, cfg.Seed); err != nil {
			return nil, err
		}
		return func(seed int64) (models.Forecaster, error) {
			return models.NewMLPModel(mlp, seed)
		}, nil

	case "rnn":
		rnn := models.DefaultRNNConfig()
		rnn.Units = cfg.Hidden
		rnn.Epochs = cfg.Epochs
		rnn.LearningRate = cfg.LearningRate
		logger.Info("initializing RNN model",
			"units", rnn.Units,
			"epochs", rnn.Epochs,
			"learning_rate", rnn.LearningRate,
		)
		if _, err := models.NewRNNModel(rnn, cfg.Seed); err != nil {
			return nil, err
		}
		return func(seed int64) (models.Forecaster, error) {
			return models.NewRNNModel(rnn, seed)
		}, nil

	case "byom":
		if cfg.BYOMURL == "" {
			return nil, fmt.Errorf("byom model requires a service URL")
		}
		logger.Info("initializing BYOM model", "url", cfg.BYOMURL, "value_path", cfg.BYOMValuePath)
		return func(seed int64) (models.Forecaster, error) {
			return models.NewBYOMModel(cfg.BYOMURL, cfg.BYOMValuePath, seed), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown model %q", cfg.Model)
	}
}
