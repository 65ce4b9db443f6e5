/**
 * @description
 * This file contains the core orchestration of the admin-service. Every operator action
 * follows the same path: take the action lock, read the freshest session snapshot, let the
 * engine decide, apply the resulting plan to the ledger store as one unit, then publish
 * the decision and push the touched collections back to the live subscribers.
 *
 * @dependencies
 * - internal/engine: ledger decisions.
 * - internal/store: plan application.
 * - pkg/rabbitmq: ledger event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/domain"
	"github.com/transfa/admin-service/internal/engine"
	"github.com/transfa/admin-service/internal/store"
	"github.com/transfa/admin-service/pkg/rabbitmq"
)

var (
	// ErrStoreWriteFailure wraps any persistence failure while applying a plan.
	ErrStoreWriteFailure = errors.New("ledger store write failed")
	// ErrStaleSnapshot means the ledger moved under the decision; nothing was written.
	ErrStaleSnapshot  = errors.New("ledger changed since the last snapshot; refreshed, please retry")
	ErrActionInFlight = errors.New("another action on this entity is in flight")
)

// SnapshotSource yields the snapshot decisions are made against.
type SnapshotSource interface {
	Snapshot() (domain.Snapshot, error)
}

// ChangeNotifier pushes reloaded collections to live subscribers.
type ChangeNotifier interface {
	Notify(ctx context.Context, collections ...domain.Collection) error
	Resync(ctx context.Context) error
}

// Result is what an operator action reports back.
type Result struct {
	Message         string          `json:"message"`
	Event           string          `json:"event"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	Funding         engine.Funding  `json:"funding,omitempty"`
	Commission      decimal.Decimal `json:"commission"`
	CreatedIDs      []string        `json:"created_ids,omitempty"`
	SnapshotVersion uint64          `json:"snapshot_version"`
}

// Options bundles the collaborators of a Service.
type Options struct {
	Repo         store.Repository
	Engine       *engine.Engine
	Snapshots    SnapshotSource
	Notifier     ChangeNotifier
	Publisher    rabbitmq.Publisher
	Locks        ActionLocker
	Metrics      *Metrics
	Logger       *slog.Logger
	WriteTimeout time.Duration
}

// Service runs operator actions against the ledger.
type Service struct {
	repo         store.Repository
	engine       *engine.Engine
	snapshots    SnapshotSource
	notifier     ChangeNotifier
	publisher    rabbitmq.Publisher
	locks        ActionLocker
	metrics      *Metrics
	logger       *slog.Logger
	writeTimeout time.Duration

	// mu serialises actions within the process; one operator, one action at a time.
	mu sync.Mutex
}

// NewService creates a new Service. Missing optional collaborators get in-process defaults.
func NewService(opts Options) *Service {
	if opts.Engine == nil {
		opts.Engine = engine.New()
	}
	if opts.Publisher == nil {
		opts.Publisher = &rabbitmq.EventProducerFallback{Logger: opts.Logger}
	}
	if opts.Locks == nil {
		opts.Locks = NewLocalActionLock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	return &Service{
		repo:         opts.Repo,
		engine:       opts.Engine,
		snapshots:    opts.Snapshots,
		notifier:     opts.Notifier,
		publisher:    opts.Publisher,
		locks:        opts.Locks,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "admin_service"),
		writeTimeout: opts.WriteTimeout,
	}
}

// ApproveWithdraw debits the user and approves a pending withdrawal.
func (s *Service) ApproveWithdraw(ctx context.Context, transactionID string) (Result, error) {
	return s.execute(ctx, "withdraw.approve", "transaction:"+transactionID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.ProcessWithdraw(snap, transactionID, engine.ActionApprove)
	})
}

// RejectWithdraw rejects a pending withdrawal.
func (s *Service) RejectWithdraw(ctx context.Context, transactionID string) (Result, error) {
	return s.execute(ctx, "withdraw.reject", "transaction:"+transactionID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.ProcessWithdraw(snap, transactionID, engine.ActionReject)
	})
}

// ApproveDeposit approves a pending deposit, agent-funded or admin-direct.
func (s *Service) ApproveDeposit(ctx context.Context, transactionID string) (Result, error) {
	return s.execute(ctx, "deposit.approve", "transaction:"+transactionID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.ApproveDeposit(snap, transactionID)
	})
}

// RejectDeposit rejects a pending deposit.
func (s *Service) RejectDeposit(ctx context.Context, transactionID string) (Result, error) {
	return s.execute(ctx, "deposit.reject", "transaction:"+transactionID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.RejectDeposit(snap, transactionID)
	})
}

// SendAgentBonus credits a bonus to an agent.
func (s *Service) SendAgentBonus(ctx context.Context, agentID string, amount decimal.Decimal) (Result, error) {
	return s.execute(ctx, "agent.bonus", "agent:"+agentID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.SendAgentBonus(snap, agentID, amount)
	})
}

// AdjustUserBalance applies a signed manual correction to a user's balance.
func (s *Service) AdjustUserBalance(ctx context.Context, userID string, delta decimal.Decimal, note string) (Result, error) {
	return s.execute(ctx, "user.adjust", "user:"+userID, func(snap domain.Snapshot) (engine.Decision, error) {
		return s.engine.AdjustUserBalance(snap, userID, delta, note)
	})
}

func (s *Service) execute(ctx context.Context, action, lockKey string, decide func(domain.Snapshot) (engine.Decision, error)) (Result, error) {
	started := time.Now()

	decision, version, err := s.commit(ctx, action, lockKey, decide, started)
	if err != nil {
		return Result{}, err
	}

	createdIDs := make([]string, 0)
	for _, tx := range decision.Plan.Inserted() {
		createdIDs = append(createdIDs, tx.ID)
	}

	// Publishing runs after the locks are gone so a stalled broker cannot hold up other actions.
	s.publish(ctx, decision, createdIDs)

	return Result{
		Message:         decision.Message,
		Event:           decision.Event,
		TransactionID:   decision.TransactionID,
		Funding:         decision.Funding,
		Commission:      decision.Commission,
		CreatedIDs:      createdIDs,
		SnapshotVersion: version,
	}, nil
}

// commit runs one decision under the action lock and the process mutex: snapshot, engine,
// plan apply, then a bounded refresh of the touched collections.
func (s *Service) commit(ctx context.Context, action, lockKey string, decide func(domain.Snapshot) (engine.Decision, error), started time.Time) (engine.Decision, uint64, error) {
	release, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		if errors.Is(err, ErrActionInFlight) {
			s.metrics.observeDecision(action, "in_flight", started)
		} else {
			s.metrics.observeDecision(action, "lock_error", started)
			s.logger.Error("action lock unavailable", "action", action, "lock_key", lockKey, "error", err)
		}
		return engine.Decision{}, 0, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshots.Snapshot()
	if err != nil {
		s.metrics.observeDecision(action, "session_closed", started)
		return engine.Decision{}, 0, err
	}
	s.metrics.setSnapshotVersion(snap.Version)

	decision, err := decide(snap)
	if err != nil {
		s.metrics.observeDecision(action, "refused", started)
		s.logger.Warn("action refused", "action", action, "lock_key", lockKey, "snapshot_version", snap.Version, "error", err)
		return engine.Decision{}, 0, err
	}

	if err := s.apply(ctx, action, decision.Plan, started); err != nil {
		return engine.Decision{}, 0, err
	}

	s.metrics.observeDecision(action, "ok", started)
	s.metrics.addCommission(decision.Commission)
	s.logger.Info("action committed",
		"action", action,
		"event", decision.Event,
		"transaction_id", decision.TransactionID,
		"amount", decision.Amount.String(),
		"commission", decision.Commission.String(),
		"mutations", len(decision.Plan.Mutations),
		"snapshot_version", snap.Version,
	)

	// The next action decides on this snapshot, so the refresh stays inside the mutex.
	s.refresh(ctx, decision)
	return decision, snap.Version, nil
}

func (s *Service) apply(ctx context.Context, action string, plan domain.Plan, started time.Time) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err := s.repo.ApplyPlan(writeCtx, plan)
	switch {
	case err == nil:
		s.metrics.observeApply("ok")
		return nil
	case errors.Is(err, store.ErrConflict):
		s.metrics.observeApply("conflict")
		s.metrics.observeDecision(action, "stale", started)
		s.logger.Warn("plan rejected by guarded write; resyncing", "action", action, "error", err)
		if s.notifier != nil {
			resyncCtx, cancel := s.detached(ctx)
			resyncErr := s.notifier.Resync(resyncCtx)
			cancel()
			s.metrics.observeResync("conflict", resyncErr)
		}
		return fmt.Errorf("%w: %w", ErrStaleSnapshot, err)
	default:
		s.metrics.observeApply("error")
		s.metrics.observeDecision(action, "store_error", started)
		s.logger.Error("plan apply failed", "action", action, "error", err)
		return fmt.Errorf("%w: %w", ErrStoreWriteFailure, err)
	}
}

// detached outlives the caller's cancellation, since the ledger is already written, but
// is still bounded by the write timeout.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
}

// refresh pushes the touched collections to live subscribers. Failures are logged only;
// the resync job repairs missed pushes.
func (s *Service) refresh(ctx context.Context, decision engine.Decision) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, decision.Plan.Collections()...); err != nil {
		s.logger.Warn("live refresh after commit failed", "event", decision.Event, "error", err)
	}
}

// publish announces the decision and the touched collections on the broker. Failures are
// logged only; the ledger is already consistent.
func (s *Service) publish(ctx context.Context, decision engine.Decision, createdIDs []string) {
	publishCtx, cancel := s.detached(ctx)
	defer cancel()

	event := domain.LedgerEvent{
		Action:        decision.Event,
		TransactionID: decision.TransactionID,
		UserID:        decision.UserID,
		AgentID:       decision.AgentID,
		Amount:        decision.Amount,
		Commission:    decision.Commission,
		CreatedIDs:    createdIDs,
		Message:       decision.Message,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.publisher.PublishLedgerEvent(publishCtx, event); err != nil {
		s.logger.Warn("ledger event publish failed", "event", decision.Event, "error", err)
	}
	for _, c := range decision.Plan.Collections() {
		if err := s.publisher.PublishCollectionChanged(publishCtx, c); err != nil {
			s.logger.Warn("change notification publish failed", "collection", c, "error", err)
		}
	}
}
