package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
)

type statsSnapshot struct {
	TotalPrincipals  int   `json:"total_principals"`
	TotalConnections int   `json:"total_connections"`
	MaxConnections   int   `json:"max_connections"`
	Subscriptions    int   `json:"subscriptions"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
	Shards           []struct {
		ShardID     int `json:"shard_id"`
		Principals  int `json:"principals"`
		Connections int `json:"connections"`
	} `json:"shards"`
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Live terminal dashboard of a running gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8090",
				Usage: "Base URL of the gateway admin endpoint",
			},
		},
		Action: func(c *cli.Context) error {
			return runStatsDashboard(c.String("addr"))
		},
	}
}

func fetchStats(base string) (*statsSnapshot, error) {
	resp, err := http.Get(base + "/admin/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats: unexpected status %s", resp.Status)
	}
	snap := &statsSnapshot{}
	if err := json.NewDecoder(resp.Body).Decode(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func runStatsDashboard(base string) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("stats: init terminal: %w", err)
	}
	defer ui.Close()

	summary := widgets.NewParagraph()
	summary.Title = " fleet-gateway "
	summary.SetRect(0, 0, 60, 7)

	gauge := widgets.NewGauge()
	gauge.Title = " capacity "
	gauge.SetRect(0, 7, 60, 10)

	shards := widgets.NewBarChart()
	shards.Title = " connections per shard "
	shards.SetRect(0, 10, 60, 24)
	shards.BarWidth = 3

	render := func() {
		snap, err := fetchStats(base)
		if err != nil {
			summary.Text = fmt.Sprintf("fetch failed: %v", err)
			ui.Render(summary)
			return
		}

		summary.Text = fmt.Sprintf(
			"principals:    %d\nconnections:   %d / %d\nsubscriptions: %d\nuptime:        %s",
			snap.TotalPrincipals,
			snap.TotalConnections, snap.MaxConnections,
			snap.Subscriptions,
			(time.Duration(snap.UptimeSeconds) * time.Second).String(),
		)
		if snap.MaxConnections > 0 {
			gauge.Percent = snap.TotalConnections * 100 / snap.MaxConnections
		}

		data := make([]float64, len(snap.Shards))
		labels := make([]string, len(snap.Shards))
		for i, s := range snap.Shards {
			data[i] = float64(s.Connections)
			labels[i] = fmt.Sprintf("%d", s.ShardID)
		}
		shards.Data = data
		shards.Labels = labels

		ui.Render(summary, gauge, shards)
	}

	render()

	events := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			if e.Type == ui.KeyboardEvent && (e.ID == "q" || e.ID == "<C-c>") {
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}
