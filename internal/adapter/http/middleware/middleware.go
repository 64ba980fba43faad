package middleware

import (
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
)

type Middleware struct {
	verifier authgate.Verifier
	log      logger.Logger
}

func NewMiddleware(verifier authgate.Verifier, log logger.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		log:      log,
	}
}
