/**
 * @description
 * Package live turns the ledger store into push-based live collections. A subscriber
 * receives the full current contents of its collection as soon as it subscribes and again
 * after every change notification, until it unsubscribes.
 *
 * Change notifications come from two places: the application service after it commits a
 * plan, and the RabbitMQ change feed (`ledger.<collection>.changed`) for writes made by
 * other processes. Delivery is at-least-once; a duplicate notification only causes one
 * more full reload.
 *
 * @dependencies
 * - log/slog: structured logging.
 * - internal/domain: collection names and document models.
 */

package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/transfa/admin-service/internal/domain"
)

// Source is the read side of the ledger store the feed reloads from.
type Source interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListDepositMethods(ctx context.Context) ([]domain.DepositMethod, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
}

// Unsubscribe stops further pushes to one subscriber. It is safe to call more than once.
type Unsubscribe func()

type subscriber struct {
	id   uint64
	push func(any)
}

// Feed fans store contents out to collection subscribers.
type Feed struct {
	src    Source
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[domain.Collection][]subscriber

	// reload serialises load+dispatch per collection so a subscriber never sees an older
	// push after a newer one.
	reload map[domain.Collection]*sync.Mutex
}

// NewFeed builds a feed over the given store reads.
func NewFeed(src Source, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	reload := make(map[domain.Collection]*sync.Mutex, len(domain.AllCollections))
	for _, c := range domain.AllCollections {
		reload[c] = &sync.Mutex{}
	}
	return &Feed{
		src:    src,
		logger: logger.With("component", "live_feed"),
		subs:   make(map[domain.Collection][]subscriber),
		reload: reload,
	}
}

// SubscribeUsers pushes the users collection to fn now and on every change.
func (f *Feed) SubscribeUsers(ctx context.Context, fn func([]domain.User)) (Unsubscribe, error) {
	return f.subscribe(ctx, domain.CollectionUsers, func(v any) { fn(v.([]domain.User)) })
}

// SubscribeAgents pushes the agents collection to fn now and on every change.
func (f *Feed) SubscribeAgents(ctx context.Context, fn func([]domain.Agent)) (Unsubscribe, error) {
	return f.subscribe(ctx, domain.CollectionAgents, func(v any) { fn(v.([]domain.Agent)) })
}

// SubscribeTransactions pushes the transactions collection to fn now and on every change.
func (f *Feed) SubscribeTransactions(ctx context.Context, fn func([]domain.Transaction)) (Unsubscribe, error) {
	return f.subscribe(ctx, domain.CollectionTransactions, func(v any) { fn(v.([]domain.Transaction)) })
}

// SubscribeDepositMethods pushes the deposit methods collection to fn now and on every change.
func (f *Feed) SubscribeDepositMethods(ctx context.Context, fn func([]domain.DepositMethod)) (Unsubscribe, error) {
	return f.subscribe(ctx, domain.CollectionDepositMethods, func(v any) { fn(v.([]domain.DepositMethod)) })
}

// SubscribeSettings pushes the settings document to fn now and on every change.
func (f *Feed) SubscribeSettings(ctx context.Context, fn func(domain.Settings)) (Unsubscribe, error) {
	return f.subscribe(ctx, domain.CollectionSettings, func(v any) { fn(v.(domain.Settings)) })
}

func (f *Feed) subscribe(ctx context.Context, c domain.Collection, push func(any)) (Unsubscribe, error) {
	lock, ok := f.reload[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	lock.Lock()
	defer lock.Unlock()

	contents, err := f.load(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c, err)
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[c] = append(f.subs[c], subscriber{id: id, push: push})
	f.mu.Unlock()

	push(contents)

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(c, id) })
	}, nil
}

func (f *Feed) remove(c domain.Collection, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[c]
	for i, s := range subs {
		if s.id == id {
			f.subs[c] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscribers of a collection.
func (f *Feed) Subscribers(c domain.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[c])
}

// Notify reloads each named collection and pushes it to its subscribers. Collections
// nobody listens to are skipped.
func (f *Feed) Notify(ctx context.Context, collections ...domain.Collection) error {
	var errs []error
	for _, c := range collections {
		if err := f.notifyOne(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resync reloads every collection.
func (f *Feed) Resync(ctx context.Context) error {
	return f.Notify(ctx, domain.AllCollections...)
}

func (f *Feed) notifyOne(ctx context.Context, c domain.Collection) error {
	lock, ok := f.reload[c]
	if !ok {
		return fmt.Errorf("unknown collection %q", c)
	}
	lock.Lock()
	defer lock.Unlock()

	f.mu.Lock()
	subs := append([]subscriber(nil), f.subs[c]...)
	f.mu.Unlock()
	if len(subs) == 0 {
		return nil
	}

	contents, err := f.load(ctx, c)
	if err != nil {
		f.logger.Error("collection reload failed", "collection", c, "error", err)
		return fmt.Errorf("reload %s: %w", c, err)
	}
	for _, s := range subs {
		s.push(contents)
	}
	f.logger.Debug("collection pushed", "collection", c, "subscribers", len(subs))
	return nil
}

// HandleChangeMessage processes one `ledger.<collection>.changed` message body. It returns
// true when the message should be acknowledged. Malformed messages are acknowledged and
// dropped; reload failures are left for redelivery.
func (f *Feed) HandleChangeMessage(body []byte) bool {
	var event domain.CollectionChangedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		f.logger.Warn("dropping malformed change message", "error", err)
		return true
	}
	c, ok := domain.ParseCollection(string(event.Collection))
	if !ok {
		f.logger.Warn("dropping change message for unknown collection", "collection", event.Collection)
		return true
	}
	if err := f.Notify(context.Background(), c); err != nil {
		return false
	}
	return true
}

func (f *Feed) load(ctx context.Context, c domain.Collection) (any, error) {
	switch c {
	case domain.CollectionUsers:
		return f.src.ListUsers(ctx)
	case domain.CollectionAgents:
		return f.src.ListAgents(ctx)
	case domain.CollectionTransactions:
		return f.src.ListTransactions(ctx)
	case domain.CollectionDepositMethods:
		return f.src.ListDepositMethods(ctx)
	case domain.CollectionSettings:
		return f.src.GetSettings(ctx)
	}
	return nil, fmt.Errorf("unknown collection %q", c)
}
