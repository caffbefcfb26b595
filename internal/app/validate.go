package app

import (
	"fmt"
	"os"
	"time"

	"parley/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, PARLEY_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// retention period must parse when set
	if p := eff.Config.Retention.Period; p != "" {
		if d, err := time.ParseDuration(p); err != nil || d <= 0 {
			return fmt.Errorf("invalid retention.period %q: expected a positive duration like 720h", p)
		}
	}

	// seeded directory entries need ids
	for i, u := range eff.Config.Directory.Users {
		if u.ID == "" {
			return fmt.Errorf("directory.users[%d] has an empty id", i)
		}
	}

	return nil
}
