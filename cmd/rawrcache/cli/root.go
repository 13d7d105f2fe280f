// Package cli implements the rawrcache command: serve runs the admin and
// metrics endpoints for a Redis-backed cache, invalidate and inspect talk to
// a running server.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Keksclan/rawrcache/config"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	addr       string
	token      string
	timeout    time.Duration
	stdout     io.Writer
	stderr     io.Writer
}

func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "rawrcache",
		Short:         "Stampede-safe read-through cache over Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to rawrcache.yaml")
	cmd.PersistentFlags().StringVar(&a.addr, "addr", "", "admin server address (default: admin.addr from config)")
	cmd.PersistentFlags().StringVar(&a.token, "token", "", "admin bearer token (default: admin.token from config)")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Second, "admin call timeout")

	cmd.AddCommand(
		newServeCmd(a),
		newInvalidateCmd(a),
		newInspectCmd(a),
		newPingCmd(a),
	)
	return cmd
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.addr != "" {
		cfg.Admin.Addr = a.addr
	}
	if a.token != "" {
		cfg.Admin.Token = a.token
	}
	if cfg.Admin.Addr == "" {
		return nil, fmt.Errorf("admin address is not configured")
	}
	return cfg, nil
}
