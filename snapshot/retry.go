package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
	"golang.org/x/time/rate"

	"github.com/tableformat/snapshotmerge/catalog"
	"github.com/tableformat/snapshotmerge/filter"
	"github.com/tableformat/snapshotmerge/internal/clock"
	"github.com/tableformat/snapshotmerge/log"
	"github.com/tableformat/snapshotmerge/manifest"
)

// CommitFailedError wraps a failed commit attempt: retryable, unlike the
// validation error kinds.
type CommitFailedError struct {
	Err error
}

func (e *CommitFailedError) Error() string { return fmt.Sprintf("commit failed: %s", e.Err) }
func (e *CommitFailedError) Unwrap() error { return e.Err }

//go:generate mockgen -package mocks -destination mocks/committer.go . Committer

// Committer is the external commit-protocol collaborator; the catalog's
// commit transport is out of scope for this module. Commit reports the
// set of manifest paths that actually made it into the new current
// snapshot.
type Committer interface {
	Commit(ctx context.Context, manifests []*manifest.File) (committed map[string]struct{}, err error)
}

// RetryPolicy bounds CommitRetry's re-Apply attempts: retry is the
// caller's responsibility, bounded (e.g. five attempts).
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// AttemptsPerSecond caps how often this driver will start a new
	// Apply/Commit attempt, independent of the backoff delay between
	// failures; zero means unbounded. Meant for the case where many
	// CommitRetry drivers race the same table and the backoff alone
	// wouldn't keep them from hammering the catalog in lockstep.
	AttemptsPerSecond float64
	// AttemptBurst is the token bucket size backing AttemptsPerSecond;
	// zero defaults to 1.
	AttemptBurst int
}

// DefaultRetryPolicy is the standard five-attempt, exponential-backoff
// policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: 50 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		return p.BaseBackoff
	}
	d := p.BaseBackoff * time.Duration(uint64(1)<<uint(attempt))
	if d <= 0 || d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// isFatal reports whether err is one of the non-retryable validation
// failures: retrying Apply against the same or a moved base would not
// resolve these without the caller changing the update itself.
func isFatal(err error) bool {
	var partial *filter.CannotDeletePartialError
	if errors.As(err, &partial) {
		return true
	}
	var forbidden *filter.DeleteForbiddenError
	if errors.As(err, &forbidden) {
		return true
	}
	var missing *MissingDeletePathsError
	return errors.As(err, &missing)
}

// CommitRetry drives Apply/Commit across bounded retries, reporting fatal
// validation failures and cleaning up orphaned outputs on every terminal
// outcome.
type CommitRetry struct {
	update    *Update
	table     catalog.TableOperations
	committer Committer
	clk       clock.Source
	policy    RetryPolicy
	logger    log.Logger
	limiter   *rate.Limiter

	lastSnapshot *manifest.Snapshot
}

// LastSnapshot returns the materialized snapshot record (with its
// recomputed Summary) produced by the most recent successful Run, or nil
// if Run has never succeeded.
func (r *CommitRetry) LastSnapshot() *manifest.Snapshot {
	return r.lastSnapshot
}

// NewCommitRetry builds a retry driver for update, committing through
// committer against table's current metadata.
func NewCommitRetry(update *Update, table catalog.TableOperations, committer Committer, clk clock.Source, policy RetryPolicy, logger log.Logger) *CommitRetry {
	if logger == nil {
		logger = log.GetLogger()
	}
	limit := rate.Limit(policy.AttemptsPerSecond)
	if policy.AttemptsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := policy.AttemptBurst
	if burst <= 0 {
		burst = 1
	}
	return &CommitRetry{
		update: update, table: table, committer: committer, clk: clk, policy: policy, logger: logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Run attempts Apply+Commit up to policy.MaxAttempts times, re-reading the
// table's current metadata on every attempt so a moved base is picked up
// automatically. On any terminal outcome, CleanUncommitted runs so no
// orphan output file survives.
func (r *CommitRetry) Run(ctx context.Context) ([]*manifest.File, error) {
	id := correlation.ExtractFromContextOrGenerate(ctx)
	logger := r.logger.WithFields(log.Fields{correlation.FieldName: id})
	ctx = log.WithLogger(ctx, logger)

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			r.update.CleanUncommitted(nil)
			return nil, fmt.Errorf("waiting for attempt rate limit: %w", err)
		}

		base, err := r.table.Current(ctx)
		if err != nil {
			lastErr = fmt.Errorf("loading current table metadata: %w", err)
			break
		}

		out, err := r.update.Apply(ctx, base)
		if err != nil {
			if isFatal(err) {
				r.reportFatal(ctx, err)
				r.update.CleanUncommitted(nil)
				return nil, err
			}
			lastErr = err
			break
		}

		committed, err := r.committer.Commit(ctx, out)
		if err == nil {
			r.update.CleanUncommitted(committed)
			var parentID int64
			if snap, ok := base.CurrentSnapshot(); ok {
				parentID = snap.SnapshotID
			}
			r.lastSnapshot = r.update.Snapshot(out, parentID, r.clk.Now())
			summaryFields := make(log.Fields, len(r.lastSnapshot.Summary))
			for k, v := range r.lastSnapshot.Summary {
				summaryFields[k] = v
			}
			logger.WithFields(summaryFields).Info("committed snapshot")
			return out, nil
		}

		lastErr = &CommitFailedError{Err: err}
		logger.WithError(err).WithFields(log.Fields{"attempt": attempt}).Warn("commit failed, retrying against current base")

		if attempt == r.policy.MaxAttempts-1 {
			break
		}
		r.clk.Sleep(r.policy.backoff(attempt))
	}

	r.update.CleanUncommitted(nil)
	return nil, lastErr
}

// reportFatal recovers the correlation-tagged logger Run stashed onto ctx
// (rather than closing over the one built at the top of Run) so that a
// fatal error surfacing from deeper in the call stack, with only a ctx in
// hand, still logs under the same correlation id.
func (r *CommitRetry) reportFatal(ctx context.Context, err error) {
	errortracking.Capture(
		err,
		errortracking.WithContext(ctx),
		errortracking.WithField("component", "snapshot.CommitRetry"),
	)
	sentry.CaptureException(err)
	log.GetLogger(log.WithContext(ctx)).WithError(err).Error("snapshot update failed validation, aborting without retry")
}
