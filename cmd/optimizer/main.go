// Package main runs one optimization pass: fetch campaigns, evaluate them,
// trade every viable one to its volume target and print the results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"airdrop-optimizer/internal/config"
	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath, envFile string
		feedURL, file       string
		timeout             time.Duration
		asJSON, verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "optimizer",
		Short: "Run one campaign optimization pass",
		Long: `optimizer fetches campaigns from the configured feed (or the built-in
list), scores them, runs a trading agent for every viable campaign and
prints a summary per agent once all of them have finished.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			// A one-shot run never persists beyond the process.
			cfg.Storage.Backend = config.BackendMemory
			cfg.Trading.AutoStart = true
			if cmd.Flags().Changed("feed-url") {
				cfg.Feed.URL = feedURL
			}
			if cmd.Flags().Changed("campaign-file") {
				cfg.Feed.File = file
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.OutOrStdout(), cfg, timeout, asJSON, verbose)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&feedURL, "feed-url", "", "campaign feed URL")
	f.StringVar(&file, "campaign-file", "", "campaign YAML file")
	f.DurationVar(&timeout, "timeout", 30*time.Minute, "give up after this long")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "log component output to stderr")

	return cmd
}

func run(out io.Writer, cfg *config.Config, timeout time.Duration, asJSON, verbose bool) error {
	if !verbose {
		log.SetOutput(io.Discard)
	}
	logger := log.New(os.Stderr, "[optimizer] ", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, stopping agents...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	orchLogger := log.New(io.Discard, "", 0)
	if verbose {
		orchLogger = log.New(os.Stderr, "[orchestrator] ", log.LstdFlags)
	}
	orch, err := orchestrator.New(ctx, cfg, orchestrator.Options{Logger: orchLogger})
	if err != nil {
		return err
	}
	defer orch.Close()

	raws, err := orch.FetchCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("fetch campaigns: %w", err)
	}
	logger.Printf("Fetched %d campaign(s)", len(raws))

	report, err := orch.RunOnce(ctx, raws)
	if report == nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(out, render(report))
	}
	return err
}

// render formats the report for a terminal.
func render(r *orchestrator.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Airdrop Optimizer Report"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %d traded, %d rejected, %d invalid\n\n",
		headerStyle.Render("Campaigns"), len(r.Outcomes), r.Rejected, r.Invalid)

	for _, o := range r.Outcomes {
		b.WriteString(boxStyle.Render(renderOutcome(o)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderOutcome(o orchestrator.Outcome) string {
	c := o.Campaign
	var lines []string

	score := "-"
	if c.ViabilityScore != nil {
		score = fmt.Sprintf("%.2f", *c.ViabilityScore)
	}
	lines = append(lines,
		headerStyle.Render(c.Token)+mutedStyle.Render(" "+c.CampaignID[:min(8, len(c.CampaignID))]),
		fmt.Sprintf("volume %.2f  reward %.2f  period %.0fd  score %s",
			c.VolumeRequired, c.Reward, c.PeriodDays, score),
	)

	switch {
	case o.Err != "":
		lines = append(lines, failedStyle.Render("error: ")+o.Err)
	case o.Summary != nil:
		s := o.Summary
		status := completedStyle.Render(string(s.FinalStatus))
		if s.FinalStatus != domain.AgentStatusCompleted {
			status = failedStyle.Render(string(s.FinalStatus))
		}
		lines = append(lines,
			fmt.Sprintf("agent  %s  %s", o.AgentID, status),
			fmt.Sprintf("trades %d (%d ok, %d failed)  success %.2f%%",
				s.TotalTrades, s.SuccessfulTrades, s.FailedTrades, s.SuccessRate),
			fmt.Sprintf("volume %.2f  p&l %+.2f  duration %.1fs",
				s.TradedVolume, s.ProfitLoss, s.DurationSeconds),
		)
	}
	return strings.Join(lines, "\n")
}
