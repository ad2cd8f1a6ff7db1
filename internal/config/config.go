package config

import (
	"database/sql"
	"time"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME"`
}

// ApplyPool sets the connection pool limits on an open database handle.
func (pc PostgresConfig) ApplyPool(db *sql.DB) {
	db.SetMaxOpenConns(pc.MaxOpenConns)
	db.SetMaxIdleConns(pc.MaxIdleConns)
	db.SetConnMaxIdleTime(pc.ConnMaxIdleTime)
	db.SetConnMaxLifetime(pc.ConnMaxLifetime)
}
