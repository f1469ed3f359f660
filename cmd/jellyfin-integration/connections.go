package main

import (
	"fmt"
	"io"
	"time"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/prefs"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newConnectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List stored Jellyfin connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			sqlDB, err := db.Open(cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer sqlDB.Close()

			conns, err := prefs.New(sqlDB, cfg.AppID).Connections(cmd.Context())
			if err != nil {
				return err
			}
			writeConnections(cmd.OutOrStdout(), conns)
			return nil
		},
	}
}

func writeConnections(w io.Writer, conns []prefs.Connection) {
	if len(conns) == 0 {
		fmt.Fprintln(w, "No Jellyfin connections stored.")
		return
	}
	fmt.Fprintln(w, renderConnections(conns))
}

func renderConnections(conns []prefs.Connection) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Scope", "Server", "Name", "Jellyfin user", "Token", "Updated"})
	for _, c := range conns {
		scope := c.UserID
		if scope == "" {
			scope = "(app)"
		}
		token := "no"
		if c.HasToken {
			token = "yes"
		}
		updated := ""
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.UTC().Format(time.DateTime)
		}
		tw.AppendRow(table.Row{scope, c.ServerURL, c.ServerName, c.JellyfinUser, token, updated})
	}
	return tw.Render()
}
