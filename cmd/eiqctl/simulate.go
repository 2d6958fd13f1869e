package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/service"
)

type simOptions struct {
	Users          int
	Concurrency    int
	ItemsPerDomain int
	SEThreshold    float64
	ExposureRatio  float64
	Seed           uint64
	Latency        bool
	Domains        []string
}

// simReport compara theta estimado contra theta verdadero por dominio.
type simReport struct {
	Users          int                             `json:"users"`
	Sessions       int                             `json:"sessions_completed"`
	Domains        map[domain.Domain]*domainReport `json:"domains"`
	MeanEiQ        float64                         `json:"mean_eiq"`
	MaxItemExposed int64                           `json:"max_item_exposure"`
	Elapsed        string                          `json:"elapsed"`
}

type domainReport struct {
	Estimates      int     `json:"estimates"`
	MAE            float64 `json:"mae"`
	RMSE           float64 `json:"rmse"`
	Bias           float64 `json:"bias"`
	MeanItems      float64 `json:"mean_items"`
	MeanSE         float64 `json:"mean_standard_error"`
	Exhausted      int     `json:"exhausted"`
	absSum, sqSum  float64
	biasSum, seSum float64
	itemSum        int
}

func newSimulateCommand() *cobra.Command {
	opts := simOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run simulated examinees through the adaptive engine and report estimation error",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runSimulation(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.Users, "users", "n", 200, "Number of simulated examinees")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 8, "Examinees running at the same time")
	cmd.Flags().IntVar(&opts.ItemsPerDomain, "items", 5, "Maximum items per domain")
	cmd.Flags().Float64Var(&opts.SEThreshold, "se-threshold", 0, "Stop a domain once the standard error reaches this value (0 disables)")
	cmd.Flags().Float64Var(&opts.ExposureRatio, "exposure-ratio", 0, "Maximum exposure ratio per item (0 disables the cap)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "Seed for simulated abilities and responses")
	cmd.Flags().BoolVar(&opts.Latency, "latency", false, "Let response latency scale ability updates")
	cmd.Flags().StringSliceVarP(&opts.Domains, "domain", "d", nil, "Domains to assess (repeatable, default all)")
	return cmd
}

func runSimulation(ctx context.Context, opts simOptions) (simReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Users <= 0 {
		return simReport{}, errors.New("users must be positive")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	domains, err := parseDomains(opts.Domains)
	if err != nil {
		return simReport{}, err
	}
	bank, err := embeddedBank()
	if err != nil {
		return simReport{}, err
	}

	logger := newLogger()
	exposure := service.NewMemoryExposureTracker()
	policy := service.ExposurePolicy{MaxRatio: opts.ExposureRatio, Floor: 1}
	selector := service.NewItemSelector(bank, exposure, policy, nil)
	svc := service.NewAssessmentService(logger, selector, service.NewAbilityEstimator(opts.Latency), nil, nil, nil, nil, service.AssessmentOptions{
		DefaultItemsPerDomain: opts.ItemsPerDomain,
		DefaultSEThreshold:    opts.SEThreshold,
	})

	report := simReport{
		Users:   opts.Users,
		Domains: make(map[domain.Domain]*domainReport, len(domains)),
	}
	for _, d := range domains {
		report.Domains[d] = &domainReport{}
	}
	var (
		mu     sync.Mutex
		eiqSum float64
	)
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := 0; i < opts.Users; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			trueTheta := rng.NormFloat64()
			userID := fmt.Sprintf("sim-%04d", i)

			res, exhausted, err := simulateExaminee(gctx, svc, rng, userID, trueTheta, plansFor(domains, opts.ItemsPerDomain, opts.SEThreshold))
			if err != nil {
				return fmt.Errorf("%s: %w", userID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if res.State == domain.SessionCompleted {
				report.Sessions++
			}
			eiqSum += res.EiQScore
			for _, dr := range res.Domains {
				acc := report.Domains[dr.Domain]
				diff := dr.Theta - trueTheta
				acc.Estimates++
				acc.absSum += math.Abs(diff)
				acc.sqSum += diff * diff
				acc.biasSum += diff
				acc.seSum += dr.StandardError
				acc.itemSum += dr.Answered
				if exhausted[dr.Domain] {
					acc.Exhausted++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return simReport{}, err
	}

	for _, acc := range report.Domains {
		if acc.Estimates == 0 {
			continue
		}
		n := float64(acc.Estimates)
		acc.MAE = acc.absSum / n
		acc.RMSE = math.Sqrt(acc.sqSum / n)
		acc.Bias = acc.biasSum / n
		acc.MeanSE = acc.seSum / n
		acc.MeanItems = float64(acc.itemSum) / n
	}
	report.MeanEiQ = eiqSum / float64(opts.Users)

	ids := make([]string, 0, bank.Size())
	for _, d := range domains {
		for _, it := range bank.Query(d, nil) {
			ids = append(ids, it.ID)
		}
	}
	counts, err := exposure.Counts(ctx, ids)
	if err != nil {
		return simReport{}, fmt.Errorf("read exposure counts: %w", err)
	}
	for _, c := range counts {
		report.MaxItemExposed = max(report.MaxItemExposed, c)
	}
	report.Elapsed = time.Since(started).Round(time.Millisecond).String()
	return report, nil
}

// simulateExaminee responde cada item con la probabilidad del modelo 3PL para
// trueTheta. Devuelve los resultados y los dominios que se quedaron sin items.
func simulateExaminee(ctx context.Context, svc *service.AssessmentService, rng *rand.Rand, userID string, trueTheta float64, plans []domain.DomainPlan) (service.AssessmentResult, map[domain.Domain]bool, error) {
	view, err := svc.StartAssessment(ctx, userID, plans)
	if err != nil {
		return service.AssessmentResult{}, nil, err
	}
	exhausted := make(map[domain.Domain]bool)

	for _, plan := range plans {
		for {
			item, err := svc.NextItem(ctx, view.ID, plan.Domain)
			if errors.Is(err, service.ErrDomainCompleted) || errors.Is(err, service.ErrSessionTerminated) {
				break
			}
			if err != nil {
				return service.AssessmentResult{}, nil, err
			}
			if item == nil {
				exhausted[plan.Domain] = true
				break
			}

			answer := wrongAnswer(item.Content)
			if rng.Float64() < service.Probability(trueTheta, item.IRT) {
				answer = keyAnswer(item.Content)
			}
			// Tiempo alrededor del esperado para la dificultad del item.
			expected := 30 * math.Exp(0.3*item.IRT.Difficulty)
			spent := time.Duration(expected * (0.5 + rng.Float64()) * float64(time.Second))

			res, err := svc.SubmitResponse(ctx, view.ID, item.ID, answer, spent)
			if err != nil {
				return service.AssessmentResult{}, nil, err
			}
			if res.DomainCompleted || res.State.Terminal() {
				break
			}
		}
	}
	res, err := svc.Results(ctx, view.ID)
	return res, exhausted, err
}
