// Package serverconfig parses the server's KDL configuration file
// (spec §6), mirroring configuration/configuration.go's
// section-struct-with-defaults shape but targeting KDL via
// github.com/sblinch/kdl-go instead of YAML, since no repo in the
// reference corpus parses KDL (see DESIGN.md).
package serverconfig

import (
	"os"

	"github.com/sblinch/kdl-go"

	"github.com/openindiana/pkg6/internal/ipserr"
)

// Server is the "server { ... }" section.
type Server struct {
	Bind           string `kdl:"bind"`
	Workers        int    `kdl:"workers"`
	MaxConnections int    `kdl:"max-connections"`
	ReusePort      bool   `kdl:"reuseport"`
	CacheMaxAge    int    `kdl:"cache-max-age"`
	TLSCert        string `kdl:"tls-cert"`
	TLSKey         string `kdl:"tls-key"`
}

// Repository is the "repository { ... }" section.
type Repository struct {
	Root string `kdl:"root"`
	Mode string `kdl:"mode"`
}

// Telemetry is the "telemetry { ... }" section.
type Telemetry struct {
	OTLPEndpoint string `kdl:"otlp-endpoint"`
	ServiceName  string `kdl:"service-name"`
	LogFormat    string `kdl:"log-format"`
}

// Publishers is the "publishers { list ... }" section.
type Publishers struct {
	List []string `kdl:"list"`
}

// Admin is the "admin { ... }" section.
type Admin struct {
	UnixSocket           string `kdl:"unix-socket"`
	RequireAuthForHealth bool   `kdl:"require-auth-for-health"`
}

// OAuth2 is the "oauth2 { ... }" section.
type OAuth2 struct {
	Issuer         string   `kdl:"issuer"`
	JWKSURI        string   `kdl:"jwks-uri"`
	RequiredScopes []string `kdl:"required-scopes"`
}

// Config is the full server configuration document.
type Config struct {
	Server     Server     `kdl:"server"`
	Repository Repository `kdl:"repository"`
	Telemetry  Telemetry  `kdl:"telemetry"`
	Publishers Publishers `kdl:"publishers"`
	Admin      Admin      `kdl:"admin"`
	OAuth2     OAuth2     `kdl:"oauth2"`
}

// Defaults returns the configuration applied when no file is present,
// per spec §6: bind 0.0.0.0:8080, readonly root /tmp/pkg_repo.
func Defaults() Config {
	return Config{
		Server: Server{
			Bind:    "0.0.0.0:8080",
			Workers: 0,
		},
		Repository: Repository{
			Root: "/tmp/pkg_repo",
			Mode: "readonly",
		},
		Telemetry: Telemetry{
			LogFormat: "text",
		},
	}
}

// Load reads the KDL file at path. A missing file is not an error: the
// defaults are returned, matching configuration.go's "missing file →
// defaults" behavior.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, ipserr.Wrap(ipserr.KindIO, err, "reading server config").WithDetail(path)
	}

	if err := kdl.Unmarshal(data, &cfg); err != nil {
		return Config{}, ipserr.Wrap(ipserr.KindParse, err, "parsing KDL server config").WithDetail(path)
	}
	return cfg, nil
}
