// Package logging builds the service logger.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
)

// New returns an ectologger backed by zap. Local environments get the
// human-readable development encoder, everything else gets JSON.
func New(environment string) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if environment == "local" {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
