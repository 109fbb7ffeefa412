package main

import (
	"github.com/spf13/pflag"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/types"
	"localpub/internal/utils"
)

type cliFlags struct {
	port      int
	host      string
	ttl       string
	subdomain string
	relay     string
	auth      bool
	username  string
	password  string
	authPort  int
	e2ee      bool
	verbose   bool
	json      bool
	noQR      bool
	logDir    string
}

// register adds every flag to fs. Defaults come from LOCALPUB_* variables,
// so .env must be loaded first.
func (f *cliFlags) register(fs *pflag.FlagSet) {
	defaults := config.Default()

	fs.IntVarP(&f.port, "port", "p", defaults.Port, "local port to expose")
	fs.StringVarP(&f.host, "host", "H", defaults.Host, "relay server URL")
	fs.StringVarP(&f.ttl, "ttl", "t", utils.GetEnv(config.EnvTTL, constants.DefaultTTL), "tunnel lifetime, e.g. 30m or 2h")
	fs.StringVar(&f.subdomain, "subdomain", defaults.Subdomain, "request a specific subdomain")
	fs.StringVar(&f.relay, "relay", defaults.Relay, "relay provider: localtunnel or ssrok")
	fs.BoolVar(&f.auth, "auth", false, "put a login page in front of the app")
	fs.StringVar(&f.username, "username", utils.GetEnv(config.EnvUsername, constants.DefaultUsername), "login username")
	fs.StringVar(&f.password, "password", utils.GetEnv(config.EnvPassword, ""), "login password (generated when empty)")
	fs.IntVar(&f.authPort, "auth-port", 0, "local port for the login gateway (default port+1000)")
	fs.BoolVar(&f.e2ee, "e2ee", utils.GetEnvBool(config.EnvE2EE, false), "end-to-end encrypt the relay link (ssrok only)")
	fs.BoolVarP(&f.verbose, "verbose", "v", utils.GetEnvBool(config.EnvVerbose, false), "verbose output")
	fs.BoolVar(&f.json, "json", false, "log as JSON")
	fs.BoolVar(&f.noQR, "no-qr", false, "do not print a QR code")
	fs.StringVar(&f.logDir, "log-dir", defaults.LogDir, "write run and audit logs to this directory")
}

// toConfig builds a validated config. A positional "3000" or
// "localhost:3000" argument sets the port unless --port was given.
// generated reports whether the password was made up.
func (f *cliFlags) toConfig(fs *pflag.FlagSet, args []string) (cfg *config.TunnelConfig, generated bool, err error) {
	const op = "parse flags"

	port := f.port
	if len(args) > 0 && !fs.Changed("port") {
		p, err := utils.ParsePort(args[0])
		if err != nil {
			return nil, false, types.E(types.ConfigError, op, err.Error(), nil)
		}
		port = p
	}

	ttl, err := config.ParseTTL(f.ttl)
	if err != nil {
		return nil, false, err
	}

	cfg = &config.TunnelConfig{
		Port:      port,
		AuthPort:  f.authPort,
		Host:      f.host,
		Subdomain: f.subdomain,
		Relay:     f.relay,
		TTL:       ttl,
		E2EE:      f.e2ee,
		Verbose:   f.verbose,
		JSON:      f.json,
		LogDir:    f.logDir,
	}

	if f.authRequested(fs) {
		generated = cfg.EnableAuth(f.username, f.password)
		if secret := utils.GetEnv(config.EnvSecret, ""); secret != "" {
			cfg.SessionSecret = []byte(secret)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, generated, nil
}

// authRequested is true for --auth, or for explicit credentials on the
// command line.
func (f *cliFlags) authRequested(fs *pflag.FlagSet) bool {
	return f.auth || fs.Changed("username") || fs.Changed("password") || fs.Changed("auth-port")
}
