// Package alerts maintains the authoritative in-memory set of threat
// alerts. All mutation goes through the Synchronizer's operations; every
// subscribed view observes the same updated records, so a list and a
// detail view can never disagree about an alert's resolution state.
package alerts

import (
	"context"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/logging"
	"github.com/sentinelsec/sentinel/internal/metrics"
)

// Service is the slice of the API client the synchronizer needs.
type Service interface {
	ListAlerts(ctx context.Context, unresolvedOnly bool) ([]client.Alert, error)
	CreateAlert(ctx context.Context, draft client.AlertCreate) (*client.Alert, error)
	ResolveAlert(ctx context.Context, id string) (*client.Alert, error)
}

// Observer receives a snapshot of the authoritative set after each change.
type Observer func(alerts []client.Alert)

// Filter selects a read-side projection over the authoritative set. It
// never copies or mutates storage beyond the returned slice.
type Filter struct {
	// Level restricts to one severity; empty means all levels.
	Level client.ThreatLevel
	// MinLevel restricts to severities at or above the given one;
	// empty means no lower bound.
	MinLevel client.ThreatLevel
	// IncludeResolved includes resolved alerts in the projection.
	IncludeResolved bool
}

// Synchronizer owns the authoritative alert set.
type Synchronizer struct {
	service  Service
	validate *validator.Validate
	logger   *logging.Logger

	mu        sync.Mutex
	alerts    []client.Alert
	index     map[string]int
	resolving map[string]bool
	observers map[int]Observer
	nextSub   int
}

// NewSynchronizer creates a synchronizer with an empty set. Call Refresh
// to populate it from the backend.
func NewSynchronizer(service Service) *Synchronizer {
	return &Synchronizer{
		service:   service,
		validate:  validator.New(),
		logger:    logging.Default().WithComponent("alerts"),
		index:     make(map[string]int),
		resolving: make(map[string]bool),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns a function that removes it.
// The observer is immediately called with the current snapshot.
func (s *Synchronizer) Subscribe(obs Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.observers[id] = obs
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	obs(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Refresh replaces the authoritative set with the backend's current list
// and notifies all observers.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	fetched, err := s.service.ListAlerts(ctx, false)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.alerts = fetched
	s.reindexLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Resolve marks an alert resolved. Resolution is idempotent: if the alert
// is already resolved locally, no backend call is issued and no observers
// are notified. Otherwise the backend record replaces the local one, so
// every view sees the identical resolved_at timestamp. On a transport
// failure local state is left unchanged.
func (s *Synchronizer) Resolve(ctx context.Context, id string) (*client.Alert, error) {
	s.mu.Lock()
	if i, ok := s.index[id]; ok && s.alerts[i].IsResolved {
		resolved := s.alerts[i]
		s.mu.Unlock()
		return &resolved, nil
	}
	if s.resolving[id] {
		// A resolve for this id is already in flight; let it win.
		s.mu.Unlock()
		return nil, errors.NewScanError(errors.CodeCanceled,
			"resolve already in progress", id)
	}
	s.resolving[id] = true
	s.mu.Unlock()

	updated, err := s.service.ResolveAlert(ctx, id)

	s.mu.Lock()
	delete(s.resolving, id)
	if err != nil {
		s.mu.Unlock()
		s.logger.ErrorAlert("Failed to resolve alert", id, err)
		return nil, err
	}

	if i, ok := s.index[id]; ok {
		s.alerts[i] = *updated
	} else {
		s.alerts = append(s.alerts, *updated)
		s.index[id] = len(s.alerts) - 1
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	metrics.Global().IncrementAlertsResolved()
	s.logger.InfoAlert("Alert resolved", id)
	s.notify(snapshot)

	result := *updated
	return &result, nil
}

// Create validates the draft and creates the alert on the backend. The
// backend owns computed fields such as the AI recommendation, so after the
// local append the full list is refreshed from the server. A refresh
// failure does not undo the create; the background refresher reconciles on
// its next run.
func (s *Synchronizer) Create(ctx context.Context, draft client.AlertCreate) (*client.Alert, error) {
	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	created, err := s.service.CreateAlert(ctx, draft)
	if err != nil {
		s.logger.Error("Failed to create alert", "title", draft.Title, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.alerts = append([]client.Alert{*created}, s.alerts...)
	s.reindexLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	metrics.Global().IncrementAlertsCreated()
	s.logger.InfoAlert("Alert created", created.ID, "threat_level", created.ThreatLevel)
	s.notify(snapshot)

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Alert list refresh after create failed",
			"alert_id", created.ID, "error", err)
	}

	result := *created
	return &result, nil
}

// Get returns a copy of one alert from the authoritative set.
func (s *Synchronizer) Get(id string) (client.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[id]; ok {
		return s.alerts[i], true
	}
	return client.Alert{}, false
}

// All returns a snapshot of the authoritative set.
func (s *Synchronizer) All() []client.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Select applies a read-side filter over the authoritative set, ordered by
// severity descending then detection time descending.
func (s *Synchronizer) Select(f Filter) []client.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []client.Alert
	for _, a := range s.alerts {
		if !f.IncludeResolved && a.IsResolved {
			continue
		}
		if f.Level != "" && a.ThreatLevel != f.Level {
			continue
		}
		if f.MinLevel != "" && !a.ThreatLevel.AtLeast(f.MinLevel) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ThreatLevel.Rank() != out[j].ThreatLevel.Rank() {
			return out[i].ThreatLevel.Rank() > out[j].ThreatLevel.Rank()
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out
}

func (s *Synchronizer) validateDraft(draft client.AlertCreate) error {
	if err := s.validate.Struct(draft); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewValidationError(
				"invalid alert draft", fe.Field(), fe.Value())
		}
		return errors.NewValidationError("invalid alert draft", "", nil)
	}
	return nil
}

// notify hands the same snapshot to every observer, outside the lock.
func (s *Synchronizer) notify(snapshot []client.Alert) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.mu.Unlock()

	metrics.Global().IncrementAlertNotifications()
	for _, obs := range observers {
		obs(snapshot)
	}
}

func (s *Synchronizer) snapshotLocked() []client.Alert {
	snapshot := make([]client.Alert, len(s.alerts))
	copy(snapshot, s.alerts)
	return snapshot
}

func (s *Synchronizer) reindexLocked() {
	s.index = make(map[string]int, len(s.alerts))
	for i, a := range s.alerts {
		s.index[a.ID] = i
	}
}
