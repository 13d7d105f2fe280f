package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Keksclan/rawrcache/admin"
	"github.com/Keksclan/rawrcache/auth"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// dialTarget turns a listen address such as ":7070" into something a
// client can dial.
func dialTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// withAdmin dials the configured admin server and runs fn with a context
// carrying the bearer token and the call timeout.
func (a *app) withAdmin(cmd *cobra.Command, fn func(ctx context.Context, client *admin.Client) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(dialTarget(cfg.Admin.Addr),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.Admin.Addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	if cfg.Admin.Token != "" {
		ctx = metadata.NewOutgoingContext(ctx, auth.BearerToken(cfg.Admin.Token))
	}
	return fn(ctx, admin.NewClient(conn))
}

func newInvalidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <category>",
		Short: "Delete every key of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAdmin(cmd, func(ctx context.Context, client *admin.Client) error {
				resp, err := client.Invalidate(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "invalidated %s: %d keys deleted\n", resp.Target, resp.Deleted)
				return nil
			})
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show the stored record for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAdmin(cmd, func(ctx context.Context, client *admin.Client) error {
				resp, err := client.Inspect(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}
				printInspection(a, resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response as JSON")
	return cmd
}

func printInspection(a *app, resp *admin.InspectResponse) {
	fmt.Fprintf(a.stdout, "key:         %s\n", resp.Key)
	fmt.Fprintf(a.stdout, "status:      %s\n", resp.Status)
	if resp.UpdatedAtMs == 0 {
		return
	}
	fmt.Fprintf(a.stdout, "updated:     %s\n", formatMs(resp.UpdatedAtMs))
	fmt.Fprintf(a.stdout, "expires:     %s\n", formatMs(resp.ExpiresAtMs))
	fmt.Fprintf(a.stdout, "stale until: %s\n", formatMs(resp.StaleUntilMs))
	fmt.Fprintf(a.stdout, "locked:      %t\n", resp.Locked)
	fmt.Fprintf(a.stdout, "value:       %s\n", resp.Value)
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server and its store are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAdmin(cmd, func(ctx context.Context, client *admin.Client) error {
				resp, err := client.Ping(ctx, "ping")
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "server time: %s, store ready: %t\n",
					time.Unix(resp.ServerTimeUnix, 0).UTC().Format(time.RFC3339), resp.StoreReady)
				if !resp.StoreReady {
					return fmt.Errorf("store is not ready")
				}
				return nil
			})
		},
	}
}
