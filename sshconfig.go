package simplessh

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// HostConfig is connection material resolved from an OpenSSH client
// configuration file. It carries only what Open and the Auth methods need.
type HostConfig struct {
	Host         string // resolved HostName (falls back to the alias)
	Port         int    // resolved Port (default 22)
	User         string // resolved User (falls back to the current user)
	IdentityFile string // resolved IdentityFile with ~ expanded, may be empty
}

// ResolveHost resolves alias against an OpenSSH config file. If path is
// empty, ~/.ssh/config is used.
func ResolveHost(alias, path string) (HostConfig, error) {
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ssh", "config")
	}

	f, err := os.Open(path)
	if err != nil {
		return HostConfig{}, fmt.Errorf("open ssh config: %w", err)
	}

	defer func() { _ = f.Close() }()

	return ResolveHostReader(alias, f)
}

// ResolveHostReader resolves alias against OpenSSH config data read from r.
func ResolveHostReader(alias string, r io.Reader) (HostConfig, error) {
	cfg, err := ssh_config.Decode(r)
	if err != nil {
		return HostConfig{}, fmt.Errorf("parse ssh config: %w", err)
	}

	hostName, err := cfg.Get(alias, "HostName")
	if err != nil || hostName == "" {
		hostName = alias
	}

	username, _ := cfg.Get(alias, "User")
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}

	port := 22

	if portStr, _ := cfg.Get(alias, "Port"); portStr != "" {
		_, _ = fmt.Sscanf(portStr, "%d", &port)
	}

	identityFile, _ := cfg.Get(alias, "IdentityFile")
	if strings.HasPrefix(identityFile, "~/") {
		identityFile = filepath.Join(os.Getenv("HOME"), identityFile[2:])
	}

	return HostConfig{
		Host:         hostName,
		Port:         port,
		User:         username,
		IdentityFile: identityFile,
	}, nil
}
