// Package jobs holds background jobs run on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bookbase/internal/service"
)

const reportTimeout = time.Minute

// OverdueLister lists overdue loans.
type OverdueLister interface {
	ListOverdue(ctx context.Context) ([]service.OverdueLoan, error)
}

// OverdueSummary is the result of one report run.
type OverdueSummary struct {
	Count        int
	LoanIDs      []uint
	TotalLateFee decimal.Decimal
}

// OverdueReport periodically logs the loans that are past due.
type OverdueReport struct {
	loans OverdueLister
	cron  *cron.Cron
}

// NewOverdueReport creates the job. It does nothing until Start is called.
func NewOverdueReport(loans OverdueLister) *OverdueReport {
	return &OverdueReport{loans: loans}
}

// Run produces one report.
func (r *OverdueReport) Run(ctx context.Context) (OverdueSummary, error) {
	overdue, err := r.loans.ListOverdue(ctx)
	if err != nil {
		return OverdueSummary{}, fmt.Errorf("list overdue loans: %w", err)
	}

	summary := OverdueSummary{
		Count:        len(overdue),
		LoanIDs:      make([]uint, 0, len(overdue)),
		TotalLateFee: decimal.Zero,
	}
	for _, loan := range overdue {
		summary.LoanIDs = append(summary.LoanIDs, loan.ID)
		summary.TotalLateFee = summary.TotalLateFee.Add(loan.LateFee)
	}
	return summary, nil
}

// Start schedules the report. An empty schedule disables it.
func (r *OverdueReport) Start(schedule string) error {
	if schedule == "" {
		log.Info().Msg("Overdue report disabled")
		return nil
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(schedule, r.runScheduled); err != nil {
		return fmt.Errorf("invalid overdue report schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	log.Info().Str("schedule", schedule).Msg("Overdue report scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running report to finish.
func (r *OverdueReport) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *OverdueReport) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	summary, err := r.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Overdue report failed")
		return
	}
	log.Info().
		Int("count", summary.Count).
		Uints("loan_ids", summary.LoanIDs).
		Str("total_late_fee", summary.TotalLateFee.StringFixed(2)).
		Msg("Overdue report")
}
