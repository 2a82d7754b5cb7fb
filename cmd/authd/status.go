// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/store"
)

const probeTimeout = 2 * time.Second

// SchemaStatus is the migration state of the configured database.
type SchemaStatus struct {
	Version  uint   `json:"version"`
	Name     string `json:"name,omitempty"`
	Dirty    bool   `json:"dirty"`
	Pending  []uint `json:"pending,omitempty"`
	UpToDate bool   `json:"up_to_date"`
	Error    string `json:"error,omitempty"`
}

// ServerStatus is the health of a running authd as seen on its metrics address.
type ServerStatus struct {
	Addr  string `json:"addr,omitempty"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// StatusReport is the output of the status command.
type StatusReport struct {
	Schema SchemaStatus `json:"schema"`
	Server ServerStatus `json:"server"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd(deps *Deps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema and server health",
		Long: `Show the database schema version with pending migrations, and the
liveness and readiness of the authd serving on the metrics address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, deps, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, deps *Deps, sc *statusConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report := StatusReport{
		Schema: querySchemaStatus(deps, cfg.Database.URL),
		Server: queryServerStatus(cmd.Context(), cfg.Metrics.Addr),
	}

	if sc.jsonOutput {
		output, err := formatStatusJSON(report)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}
	cmd.Print(formatStatusTable(report))
	return nil
}

func querySchemaStatus(deps *Deps, databaseURL string) SchemaStatus {
	if databaseURL == "" {
		return SchemaStatus{Error: "database.url not configured"}
	}
	m, err := deps.NewMigrator(databaseURL)
	if err != nil {
		return SchemaStatus{Error: fmt.Sprintf("failed to open migrator: %v", err)}
	}
	defer func() { _ = m.Close() }()

	st, err := m.Status()
	if err != nil {
		return SchemaStatus{Error: fmt.Sprintf("failed to read schema version: %v", err)}
	}
	return SchemaStatus{
		Version:  st.Version,
		Name:     st.Name,
		Dirty:    st.Dirty,
		Pending:  st.Pending,
		UpToDate: st.UpToDate(),
	}
}

// queryServerStatus probes the health endpoints on metricsAddr. A wildcard
// host is probed on localhost.
func queryServerStatus(ctx context.Context, metricsAddr string) ServerStatus {
	if metricsAddr == "" {
		return ServerStatus{Error: "metrics server disabled"}
	}
	host, port, err := net.SplitHostPort(metricsAddr)
	if err != nil {
		return ServerStatus{Addr: metricsAddr, Error: fmt.Sprintf("bad metrics address: %v", err)}
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	base := "http://" + net.JoinHostPort(host, port)
	status := ServerStatus{Addr: net.JoinHostPort(host, port)}

	client := &http.Client{Timeout: probeTimeout}
	live, err := probe(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Live = live

	ready, err := probe(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// formatStatusTable formats the report as a human-readable table.
func formatStatusTable(r StatusReport) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATE\tDETAIL")
	_, _ = fmt.Fprintln(w, "---------\t-----\t------")

	switch {
	case r.Schema.Error != "":
		_, _ = fmt.Fprintf(w, "schema\tunknown\t%s\n", r.Schema.Error)
	case r.Schema.Dirty:
		_, _ = fmt.Fprintf(w, "schema\tdirty\tversion %d needs repair\n", r.Schema.Version)
	case r.Schema.UpToDate:
		_, _ = fmt.Fprintf(w, "schema\tup to date\tversion %d\n", r.Schema.Version)
	default:
		_, _ = fmt.Fprintf(w, "schema\tbehind\tversion %d, pending %s\n", r.Schema.Version, joinVersions(r.Schema.Pending))
	}

	switch {
	case r.Server.Error != "":
		_, _ = fmt.Fprintf(w, "server\tunreachable\t%s\n", r.Server.Error)
	case r.Server.Ready:
		_, _ = fmt.Fprintf(w, "server\tready\t%s\n", r.Server.Addr)
	case r.Server.Live:
		_, _ = fmt.Fprintf(w, "server\tnot ready\t%s\n", r.Server.Addr)
	default:
		_, _ = fmt.Fprintf(w, "server\tunhealthy\t%s\n", r.Server.Addr)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the report as JSON.
func formatStatusJSON(r StatusReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatMigrationStatus lists the applied version and pending migrations.
func formatMigrationStatus(s store.MigrationStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	applied := "none"
	if s.Version > 0 {
		applied = s.Name
		if applied == "" {
			applied = fmt.Sprintf("%06d (unknown)", s.Version)
		}
	}
	if s.Dirty {
		applied += " (dirty)"
	}
	_, _ = fmt.Fprintf(w, "applied:\t%s\n", applied)

	if len(s.Pending) == 0 {
		_, _ = fmt.Fprintln(w, "pending:\tnone")
	}
	for i, v := range s.Pending {
		label := ""
		if i == 0 {
			label = "pending:"
		}
		name, _ := store.MigrationName(v)
		if name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", label, name)
	}

	_ = w.Flush()
	return buf.String()
}

func joinVersions(vs []uint) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
