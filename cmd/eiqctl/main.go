package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/fallback"
	"eiq-engine/internal/service"
)

const version = "0.3.0"

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "eiqctl",
		Short: "eiqctl - offline tools for the adaptive assessment engine",
		Long: `eiqctl runs the assessment engine in-process against the embedded item bank.
Use it to simulate examinee populations or to take an assessment from the terminal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine events to stderr")

	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newTakeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// embeddedBank indexa el banco embebido como si fuera el banco calibrado.
func embeddedBank() (*service.ItemBank, error) {
	items, err := fallback.Items()
	if err != nil {
		return nil, fmt.Errorf("load embedded items: %w", err)
	}
	return service.NewItemBank(items, false)
}

func parseDomains(raw []string) ([]domain.Domain, error) {
	if len(raw) == 0 {
		return domain.AllDomains(), nil
	}
	out := make([]domain.Domain, 0, len(raw))
	seen := make(map[domain.Domain]bool, len(raw))
	for _, r := range raw {
		d, err := domain.ParseDomain(r)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

func plansFor(domains []domain.Domain, maxItems int, seThreshold float64) []domain.DomainPlan {
	plans := make([]domain.DomainPlan, 0, len(domains))
	for _, d := range domains {
		plans = append(plans, domain.DomainPlan{
			Domain:      d,
			MaxItems:    maxItems,
			MinItems:    1,
			SEThreshold: seThreshold,
		})
	}
	return plans
}
