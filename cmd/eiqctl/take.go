package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/service"
)

type takeOptions struct {
	ItemsPerDomain int
	UserID         string
	Domains        []string
}

func newTakeCommand() *cobra.Command {
	opts := takeOptions{}
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take an adaptive assessment interactively in the terminal",
		Long: `take runs a full adaptive session in-process against the embedded item bank.
Type an answer and press enter. Type "hint" to get a personalized hint or "quit" to abandon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTake(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.ItemsPerDomain, "items", 3, "Maximum items per domain")
	cmd.Flags().StringVar(&opts.UserID, "user", "cli-user", "User id recorded for the session")
	cmd.Flags().StringSliceVarP(&opts.Domains, "domain", "d", nil, "Domains to assess (repeatable, default all)")
	return cmd
}

func runTake(ctx context.Context, opts takeOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	domains, err := parseDomains(opts.Domains)
	if err != nil {
		return err
	}
	bank, err := embeddedBank()
	if err != nil {
		return err
	}

	logger := newLogger()
	selector := service.NewItemSelector(bank, service.NewMemoryExposureTracker(), service.ExposurePolicy{}, nil)
	behavior := service.NewBehaviorService(logger, selector, nil, nil, nil, service.BehaviorOptions{})
	svc := service.NewAssessmentService(logger, selector, service.NewAbilityEstimator(true), nil, nil, behavior, nil, service.AssessmentOptions{
		DefaultItemsPerDomain: opts.ItemsPerDomain,
	})

	view, err := svc.StartAssessment(ctx, opts.UserID, plansFor(domains, opts.ItemsPerDomain, 0))
	if err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "Session %s started. Type \"hint\" for help or \"quit\" to stop.\n", view.ID)

	for _, d := range domains {
		fmt.Fprintf(out, "\n== %s ==\n", d)
		for {
			item, err := svc.NextItem(ctx, view.ID, d)
			if errors.Is(err, service.ErrDomainCompleted) || errors.Is(err, service.ErrSessionTerminated) {
				break
			}
			if err != nil {
				return err
			}
			if item == nil {
				fmt.Fprintln(out, "No more items available for this domain.")
				break
			}

			res, quit, err := askItem(ctx, svc, behavior, reader, out, opts.UserID, view.ID, *item)
			if err != nil {
				return err
			}
			if quit {
				if _, err := svc.Abandon(ctx, view.ID); err != nil {
					return err
				}
				fmt.Fprintln(out, "Session abandoned.")
				return printResults(ctx, svc, out, view.ID)
			}
			if res.DomainCompleted || res.State.Terminal() {
				break
			}
		}
	}
	return printResults(ctx, svc, out, view.ID)
}

// askItem muestra el item y lee respuestas hasta recibir una que no sea un
// pedido de pista.
func askItem(ctx context.Context, svc *service.AssessmentService, behavior *service.BehaviorService, reader *bufio.Reader, out io.Writer, userID, sessionID string, item domain.Item) (service.SubmitResult, bool, error) {
	view := item.View()
	fmt.Fprintf(out, "\n%s\n", view.Prompt)
	for i, opt := range view.Options {
		fmt.Fprintf(out, "  %c) %s\n", 'A'+i, opt)
	}

	started := time.Now()
	attempts := 0
	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return service.SubmitResult{}, false, err
		}
		answer := strings.TrimSpace(line)
		if errors.Is(err, io.EOF) && answer == "" {
			return service.SubmitResult{}, true, nil
		}

		switch strings.ToLower(answer) {
		case "quit", "exit":
			return service.SubmitResult{}, true, nil
		case "hint":
			attempts++
			hints, err := behavior.PersonalizedHints(ctx, userID, item.ID, domain.HintContext{
				Attempts:  attempts,
				TimeSpent: time.Since(started),
			})
			if err != nil {
				return service.SubmitResult{}, false, err
			}
			for _, h := range hints {
				fmt.Fprintf(out, "  [%s] %s\n", h.Kind, h.Content)
			}
			continue
		case "":
			continue
		}

		res, err := svc.SubmitResponse(ctx, sessionID, item.ID, answer, time.Since(started))
		if err != nil {
			return service.SubmitResult{}, false, err
		}
		verdict := "Incorrect."
		if res.Correct {
			verdict = "Correct!"
		}
		fmt.Fprintf(out, "%s theta %.2f (SE %.2f)\n", verdict, res.Theta, res.StandardError)
		return res, false, nil
	}
}

func printResults(ctx context.Context, svc *service.AssessmentService, out io.Writer, sessionID string) error {
	res, err := svc.Results(ctx, sessionID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", raw)
	return nil
}
