package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/rpcpool/internal/config"
)

// ConnString assembles a postgres:// URL for the audit store. Credentials go
// through url.UserPassword so reserved characters in the password survive
// parsing on the pgx side.
func ConnString(cfg config.DBConfig) string {
	mode := cfg.SSLMode
	if mode == "" {
		mode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + mode,
	}
	return u.String()
}
