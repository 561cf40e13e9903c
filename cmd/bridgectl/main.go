// bridgectl queries a running bridged instance over its diagnostics API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adityalohuni/browser-bridge/internal/config"
	"github.com/adityalohuni/browser-bridge/internal/diagclient"
)

const requestTimeout = 5 * time.Second

func main() {
	var (
		configPath string
		baseURL    string
		token      string
	)

	newClient := func(cmd *cobra.Command) (*diagclient.Client, error) {
		settings, err := config.LoadOrCreate(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if !cmd.Flags().Changed("base-url") {
			baseURL = settings.TUIBaseURL
		}
		if !cmd.Flags().Changed("token") {
			token = settings.DebugToken
		}
		return diagclient.New(baseURL, token, nil), nil
	}

	root := &cobra.Command{
		Use:          "bridgectl",
		Short:        "Inspect a running browser-bridge daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/browser-bridge/config.toml)")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "diagnostics base URL (default from config)")
	root.PersistentFlags().StringVar(&token, "token", "", "debug token (default from config)")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show bridge health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			health, err := c.Health(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "status:\t%s\n", health.Status)
			fmt.Fprintf(w, "role:\t%s\n", health.Role)
			fmt.Fprintf(w, "instance:\t%s\n", health.InstanceID)
			fmt.Fprintf(w, "uptime:\t%s\n", health.Uptime)
			controller := "disconnected"
			if health.Controller.Connected {
				controller = "connected"
			}
			fmt.Fprintf(w, "controller:\t%s\n", controller)
			fmt.Fprintf(w, "drivers:\t%d\n", health.Drivers)
			fmt.Fprintf(w, "sessions:\t%d\n", health.Sessions)
			fmt.Fprintf(w, "pending:\t%d\n", health.Pending)
			return w.Flush()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "peers",
		Short: "List connected fabric peers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			state, err := c.State(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tSESSION\tREMOTE\tURL\tLAST SEEN")
			for _, p := range state.Peers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.Role, orDash(p.SessionID), orDash(p.RemoteAddr), orDash(p.CurrentURL), ago(p.LastSeen))
			}
			return w.Flush()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List automation sessions and their drivers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			state, err := c.State(ctx)
			if err != nil {
				return err
			}
			owners := make(map[string]string, len(state.Drivers))
			for _, d := range state.Drivers {
				if d.BrowserSessionID != "" {
					owners[d.BrowserSessionID] = d.TransportID
				}
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tWINDOW\tTABS\tDRIVER\tUPDATED")
			for _, s := range state.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, orDash(s.WindowHandle), len(s.Tabs), orDash(owners[s.ID]), ago(s.UpdatedAt))
			}
			return w.Flush()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Dump the full bridge state as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			state, err := c.State(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}
