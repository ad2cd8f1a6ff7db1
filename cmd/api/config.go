package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/escrowcore/internal/config"
)

type apiConfig struct {
	Port            uint16                `env:"API_PORT"`
	Postgres        config.PostgresConfig
	LogLevel        slog.Level            `env:"APP_LOG_LEVEL"`
	ShutdownTimeout time.Duration         `env:"APP_SHUTDOWN_TIMEOUT"`

	// VotingDeadline bounds how long a milestone accepts votes after
	// voting opens. "0s" disables the deadline.
	VotingDeadline time.Duration `env:"ESCROW_VOTING_DEADLINE"`
}
