package pipeline

import (
	"context"
	"fmt"

	"slidecast/internal/config"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Admission performs the synchronous checks run before any job row is
// created: the per-user active-job cap and the per-(deck, job type)
// single-flight guard.
type Admission struct {
	store        *store.Store
	perUserLimit int
}

// NewAdmission wires the admission controller. A non-positive limit means
// unlimited.
func NewAdmission(cfg *config.Config, st *store.Store) *Admission {
	return &Admission{
		store:        st,
		perUserLimit: cfg.Workflow.PerUserJobLimit,
	}
}

// Admit rejects the enqueue when the user is at their active-job limit or
// when a job of the same type is already outstanding for the deck. A nil
// return admits the job; nothing is enqueued here.
func (a *Admission) Admit(ctx context.Context, ownerID, deckID string, jobType store.JobType) error {
	if a.perUserLimit > 0 {
		active, err := a.store.CountActiveForUser(ctx, ownerID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "admission", "count", "count active jobs", err)
		}
		if active >= a.perUserLimit {
			return services.Wrap(services.ErrUnavailable, "admission", "limit",
				fmt.Sprintf("user has %d active jobs, which meets the limit of %d", active, a.perUserLimit), nil)
		}
	}

	outstanding, err := a.store.CountActiveForDeckType(ctx, deckID, jobType)
	if err != nil {
		return services.Wrap(services.ErrTransient, "admission", "count", "count deck jobs", err)
	}
	if outstanding > 0 {
		return services.Wrap(services.ErrUnavailable, "admission", "single-flight",
			fmt.Sprintf("a %s job is already queued or running for this deck", jobType), nil)
	}
	return nil
}
