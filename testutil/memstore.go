package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/repo"
)

// MemStore is an in-memory implementation of every repo interface, with the
// same compare-and-set and batch semantics as the Postgres repos. It lets
// service and end-to-end tests run without a database.
type MemStore struct {
	mu       sync.Mutex
	trips    map[uuid.UUID]domain.Trip
	series   map[uuid.UUID]domain.RecurringSeries
	tags     map[uuid.UUID][]domain.NotificationTag
	prefs    map[uuid.UUID]map[domain.EventType]domain.Preference
	programs map[uuid.UUID]domain.Program
	users    map[uuid.UUID]domain.User
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		trips:    make(map[uuid.UUID]domain.Trip),
		series:   make(map[uuid.UUID]domain.RecurringSeries),
		tags:     make(map[uuid.UUID][]domain.NotificationTag),
		prefs:    make(map[uuid.UUID]map[domain.EventType]domain.Preference),
		programs: make(map[uuid.UUID]domain.Program),
		users:    make(map[uuid.UUID]domain.User),
	}
}

// Trips returns the store as a repo.TripRepo.
func (s *MemStore) Trips() repo.TripRepo { return memTrips{s} }

// Series returns the store as a repo.SeriesRepo.
func (s *MemStore) Series() repo.SeriesRepo { return memSeries{s} }

// Tags returns the store as a repo.TagRepo.
func (s *MemStore) Tags() repo.TagRepo { return memTags{s} }

// Preferences returns the store as a repo.PreferenceRepo.
func (s *MemStore) Preferences() repo.PreferenceRepo { return memPrefs{s} }

// Programs returns the store as a repo.ProgramRepo.
func (s *MemStore) Programs() repo.ProgramRepo { return memPrograms{s} }

// Users returns the store as a repo.UserRepo.
func (s *MemStore) Users() repo.UserRepo { return memUsers{s} }

// ---- trips ----

type memTrips struct{ s *MemStore }

func (m memTrips) Create(_ context.Context, t domain.Trip) (domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.insertTrip(t), nil
}

func (s *MemStore) insertTrip(t domain.Trip) domain.Trip {
	now := time.Now().UTC()
	t.ID = uuid.New()
	if t.Status == "" {
		t.Status = domain.StatusOrder
	}
	t.UpdatedBy = t.CreatedBy
	t.Version = 1
	t.CreatedAt, t.UpdatedAt = now, now
	s.trips[t.ID] = t
	return t
}

func (m memTrips) GetByID(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("memstore.GetByID: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (m memTrips) ListPaged(_ context.Context, f domain.TripFilter, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var all []domain.Trip
	for _, t := range m.s.trips {
		if f.CorporateClientID != uuid.Nil && t.CorporateClientID != f.CorporateClientID {
			continue
		}
		if f.Restricted && !slices.Contains(f.ProgramIDs, t.ProgramID) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PickupAt.After(all[j].PickupAt) })

	total := int64(len(all))
	start := min(p.Offset(), len(all))
	end := min(start+p.Limit, len(all))
	out := make([]domain.Trip, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

func (m memTrips) ListBySeries(_ context.Context, seriesID uuid.UUID, status domain.Status) ([]domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []domain.Trip{}
	for _, t := range m.s.trips {
		if t.RecurringSeriesID != nil && *t.RecurringSeriesID == seriesID && t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupAt.Before(out[j].PickupAt) })
	return out, nil
}

func (m memTrips) CompareAndSwap(_ context.Context, c repo.TripChange) (domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check(c); err != nil {
		return domain.Trip{}, fmt.Errorf("memstore.CompareAndSwap: %w", err)
	}
	return m.s.write(c), nil
}

func (m memTrips) ApplyBatch(_ context.Context, changes []repo.TripChange) ([]domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range changes {
		if err := m.s.check(c); err != nil {
			return nil, fmt.Errorf("memstore.ApplyBatch: trip %s: %w", c.Current.ID, domain.ErrPartialBatch)
		}
	}
	out := make([]domain.Trip, 0, len(changes))
	for _, c := range changes {
		out = append(out, m.s.write(c))
	}
	return out, nil
}

func (s *MemStore) check(c repo.TripChange) error {
	stored, ok := s.trips[c.Current.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != c.Current.Status || stored.Version != c.Current.Version {
		return domain.ErrConflict
	}
	return nil
}

// write keeps the immutable columns of the stored row, like the SQL UPDATE.
func (s *MemStore) write(c repo.TripChange) domain.Trip {
	stored := s.trips[c.Current.ID]
	n := c.Next
	n.ID = stored.ID
	n.RecurringSeriesID = stored.RecurringSeriesID
	n.ProgramID = stored.ProgramID
	n.CorporateClientID = stored.CorporateClientID
	n.ClientID = stored.ClientID
	n.CreatedBy = stored.CreatedBy
	n.CreatedAt = stored.CreatedAt
	n.Version = stored.Version + 1
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}
	s.trips[n.ID] = n
	return n
}

// ---- series ----

type memSeries struct{ s *MemStore }

func (m memSeries) Create(_ context.Context, rs domain.RecurringSeries, instances []domain.Trip) (domain.RecurringSeries, []domain.Trip, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	rs.ID = uuid.New()
	rs.CreatedAt = time.Now().UTC()
	m.s.series[rs.ID] = rs

	out := make([]domain.Trip, 0, len(instances))
	for _, inst := range instances {
		sid := rs.ID
		inst.RecurringSeriesID = &sid
		out = append(out, m.s.insertTrip(inst))
	}
	return rs, out, nil
}

func (m memSeries) GetByID(_ context.Context, id uuid.UUID) (domain.RecurringSeries, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rs, ok := m.s.series[id]
	if !ok {
		return domain.RecurringSeries{}, fmt.Errorf("memstore.Series.GetByID: %w", domain.ErrNotFound)
	}
	return rs, nil
}

// ---- tags ----

type memTags struct{ s *MemStore }

func (m memTags) Add(_ context.Context, tag domain.NotificationTag) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.tags[tag.TripID] {
		if existing.UserID == tag.UserID {
			return nil
		}
	}
	tag.CreatedAt = time.Now().UTC()
	m.s.tags[tag.TripID] = append(m.s.tags[tag.TripID], tag)
	return nil
}

func (m memTags) Remove(_ context.Context, tripID, userID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	tags := m.s.tags[tripID]
	for i, existing := range tags {
		if existing.UserID == userID {
			m.s.tags[tripID] = slices.Delete(tags, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("memstore.Tags.Remove: %w", domain.ErrNotFound)
}

func (m memTags) ListByTrip(_ context.Context, tripID uuid.UUID) ([]domain.NotificationTag, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return slices.Clone(m.s.tags[tripID]), nil
}

// ---- preferences ----

type memPrefs struct{ s *MemStore }

func (m memPrefs) Upsert(_ context.Context, p domain.Preference) (domain.Preference, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	if m.s.prefs[p.UserID] == nil {
		m.s.prefs[p.UserID] = make(map[domain.EventType]domain.Preference)
	}
	m.s.prefs[p.UserID][p.EventType] = p
	return p, nil
}

func (m memPrefs) Get(_ context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.prefs[userID][eventType]
	if !ok {
		return domain.Preference{}, fmt.Errorf("memstore.Preferences.Get: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (m memPrefs) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Preference, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []domain.Preference{}
	for _, p := range m.s.prefs[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out, nil
}

func (m memPrefs) ListForEvent(_ context.Context, eventType domain.EventType, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if p, ok := m.s.prefs[id][eventType]; ok {
			out[id] = p.Enabled
		}
	}
	return out, nil
}

func (m memPrefs) EnsureDefaults(_ context.Context, userID uuid.UUID, defaults map[domain.EventType]bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.prefs[userID] == nil {
		m.s.prefs[userID] = make(map[domain.EventType]domain.Preference)
	}
	now := time.Now().UTC()
	for _, e := range domain.EventTypes() {
		if _, ok := m.s.prefs[userID][e]; ok {
			continue
		}
		enabled, ok := defaults[e]
		if !ok {
			enabled = true
		}
		m.s.prefs[userID][e] = domain.Preference{UserID: userID, EventType: e, Enabled: enabled, UpdatedAt: now}
	}
	return nil
}

// ---- programs and users ----

type memPrograms struct{ s *MemStore }

func (m memPrograms) Create(_ context.Context, p domain.Program) (domain.Program, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.s.programs[p.ID] = p
	return p, nil
}

func (m memPrograms) GetByID(_ context.Context, id uuid.UUID) (domain.Program, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.programs[id]
	if !ok {
		return domain.Program{}, fmt.Errorf("memstore.Programs.GetByID: %w", domain.ErrNotFound)
	}
	return p, nil
}

type memUsers struct{ s *MemStore }

func (m memUsers) Create(_ context.Context, u domain.User) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	m.s.users[u.ID] = u
	return u, nil
}

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("memstore.Users.GetByID: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (m memUsers) ListIDsByRole(_ context.Context, role domain.Role) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ids := []uuid.UUID{}
	for _, u := range m.s.users {
		if u.Role == role {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
