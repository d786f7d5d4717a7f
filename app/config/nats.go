package config

import (
	"github.com/nats-io/nats.go"
)

// InitNATS connects to NATS. It returns nil when no URL is configured.
func InitNATS(cfg NATSConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return nats.Connect(cfg.URL, nats.Name("taskd"))
}
