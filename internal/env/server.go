package environment

import (
	"log/slog"
	"net/http"

	"dinedesk/internal/config"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		API           *http.Server
	}
}

func newServers(cfg config.Config, logger *slog.Logger, clients *Clients, services *Services) *Servers {
	var servers Servers

	servers.HTTP.API = &http.Server{
		Addr:              cfg.API.ADDR(),
		Handler:           services.API.Routes(),
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}
	servers.HTTP.Observability = initObservability(logger.WithGroup("http"), cfg.Observability, clients.SQLiteDB.Ping)

	return &servers
}
