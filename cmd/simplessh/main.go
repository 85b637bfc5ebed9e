// Package main is the entrypoint for the simplessh CLI, a thin front end
// over the library: one-shot remote command execution and file upload.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ruffel/simplessh"
)

var (
	version = "dev"

	flagHost       string
	flagPort       int
	flagUser       string
	flagTimeout    time.Duration
	flagPassword   string
	flagKeyPath    string
	flagPassphrase string
	flagSSHConfig  string
	flagMode       string
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:           "simplessh",
	Short:         "Run remote commands and upload files over SSH",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Execute a command on the remote host and print its output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}

		defer func() { _ = sess.Close() }()

		res, err := sess.Exec(strings.Join(args, " "))
		if err != nil {
			return err
		}

		_, _ = os.Stdout.Write(res.Stdout)
		_, _ = os.Stderr.Write(res.Stderr)

		if res.ExitSignal != "" {
			log.Warnf("remote command terminated by signal %s", res.ExitSignal)
		}

		if res.ExitCode != 0 {
			os.Exit(res.ExitCode)
		}

		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local-file> <remote-path>",
	Short: "Upload a local file to the remote host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		mode, err := parseMode(flagMode, args[0])
		if err != nil {
			return err
		}

		sess, err := openSession(cmd)
		if err != nil {
			return err
		}

		defer func() { _ = sess.Close() }()

		n, err := sess.Send(mode, data, args[1])
		if err != nil {
			return fmt.Errorf("%w (after %d of %d bytes)", err, n, len(data))
		}

		log.Infof("uploaded %d bytes to %s", n, args[1])

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagHost, "host", "H", "", "remote host (or ssh config alias with --ssh-config)")
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", 22, "remote port")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user to authenticate as")
	rootCmd.PersistentFlags().DurationVarP(&flagTimeout, "timeout", "t", 10*time.Second, "connect and operation timeout")
	rootCmd.PersistentFlags().StringVar(&flagPassword, "password", "", "password authentication")
	rootCmd.PersistentFlags().StringVar(&flagKeyPath, "key", "", "private key file authentication")
	rootCmd.PersistentFlags().StringVar(&flagPassphrase, "passphrase", "", "passphrase for the private key")
	rootCmd.PersistentFlags().StringVar(&flagSSHConfig, "ssh-config", "", "resolve --host as an alias in this OpenSSH config file")

	putCmd.Flags().StringVar(&flagMode, "mode", "", "octal permission bits for the remote file (default: local file mode)")

	rootCmd.AddCommand(execCmd, putCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// target is the resolved connection destination and credential source.
type target struct {
	host    string
	port    int
	user    string
	keyPath string
}

// applyHostConfig overlays values resolved from an OpenSSH config entry onto
// the flag values. Explicit flags win: the port from the config is used only
// when the flag was left at its default.
func (tg *target) applyHostConfig(hc simplessh.HostConfig, portSet bool) {
	tg.host = hc.Host

	if !portSet && hc.Port != 0 {
		tg.port = hc.Port
	}

	if tg.user == "" {
		tg.user = hc.User
	}

	if tg.keyPath == "" {
		tg.keyPath = hc.IdentityFile
	}
}

// openSession resolves connection parameters, opens the session and runs the
// configured authentication.
func openSession(cmd *cobra.Command) (*simplessh.Session, error) {
	tg := target{host: flagHost, port: flagPort, user: flagUser, keyPath: flagKeyPath}

	if flagSSHConfig != "" {
		hc, err := simplessh.ResolveHost(flagHost, flagSSHConfig)
		if err != nil {
			return nil, err
		}

		tg.applyHostConfig(hc, cmd.Flags().Changed("port"))
	}

	if tg.host == "" {
		return nil, fmt.Errorf("--host is required")
	}

	if tg.user == "" {
		return nil, fmt.Errorf("--user is required (or a User entry in the ssh config)")
	}

	sess, err := simplessh.Open(tg.host, tg.port, flagTimeout)
	if err != nil {
		return nil, err
	}

	switch {
	case flagPassword != "":
		err = sess.AuthPassword(tg.user, flagPassword)
	case tg.keyPath != "":
		err = sess.AuthKeyFile(tg.user, "", tg.keyPath, flagPassphrase)
	default:
		err = fmt.Errorf("no authentication configured: pass --password or --key")
	}

	if err != nil {
		_ = sess.Close()

		return nil, err
	}

	return sess, nil
}

// parseMode interprets the --mode flag as octal permission bits, falling back
// to the local file's mode.
func parseMode(flag, localPath string) (fs.FileMode, error) {
	if flag == "" {
		info, err := os.Stat(localPath)
		if err != nil {
			return 0, err
		}

		return info.Mode().Perm(), nil
	}

	bits, err := strconv.ParseUint(flag, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --mode %q: %w", flag, err)
	}

	return fs.FileMode(bits).Perm(), nil
}
