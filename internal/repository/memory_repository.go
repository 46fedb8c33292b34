package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// MemoryStore keeps posts and templates in process. It backs tests and
// STORE_BACKEND=memory, and applies the same conditional-write rules as Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	posts     map[string]*models.Post
	unitPost  map[string]string
	templates map[string]*models.RecurringTemplate

	// Now stamps updated_at. Tests replace it to control retry windows.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:     make(map[string]*models.Post),
		unitPost:  make(map[string]string),
		templates: make(map[string]*models.RecurringTemplate),
		Now:       time.Now,
	}
}

var (
	_ PostRepository          = (*MemoryStore)(nil)
	_ SocialAccountRepository = (*MemoryAccountStore)(nil)
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := *t
	return &at
}

func cloneContent(c models.Content) models.Content {
	c.Media = slices.Clone(c.Media)
	c.Hashtags = slices.Clone(c.Hashtags)
	c.Mentions = slices.Clone(c.Mentions)
	return c
}

func cloneSettings(cs models.CustomSettings) models.CustomSettings {
	cs.Hashtags = slices.Clone(cs.Hashtags)
	cs.Mentions = slices.Clone(cs.Mentions)
	return cs
}

func cloneUnit(u models.DeliveryUnit) models.DeliveryUnit {
	u.ScheduledTime = cloneTime(u.ScheduledTime)
	u.PublishedTime = cloneTime(u.PublishedTime)
	u.Settings = cloneSettings(u.Settings)
	return u
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	c.Content = cloneContent(p.Content)
	c.DeletedAt = cloneTime(p.DeletedAt)
	c.Units = make([]models.DeliveryUnit, len(p.Units))
	for i, u := range p.Units {
		c.Units[i] = cloneUnit(u)
	}
	return &c
}

func cloneTemplate(t *models.RecurringTemplate) *models.RecurringTemplate {
	c := *t
	c.Content = cloneContent(t.Content)
	c.EndDate = cloneTime(t.EndDate)
	c.DaysOfWeek = slices.Clone(t.DaysOfWeek)
	c.Targets = make([]models.Target, len(t.Targets))
	for i, tg := range t.Targets {
		tg.Settings = cloneSettings(tg.Settings)
		c.Targets[i] = tg
	}
	return &c
}

func cloneAccount(sa *models.SocialAccount) *models.SocialAccount {
	c := *sa
	c.TokenExpiresAt = cloneTime(sa.TokenExpiresAt)
	c.Metadata.Boards = slices.Clone(sa.Metadata.Boards)
	return &c
}

func (s *MemoryStore) unit(unitID string) (*models.DeliveryUnit, *models.Post, bool) {
	postID, ok := s.unitPost[unitID]
	if !ok {
		return nil, nil, false
	}
	post := s.posts[postID]
	u, ok := post.Unit(unitID)
	return u, post, ok
}

func (s *MemoryStore) Save(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	for i := range post.Units {
		u := &post.Units[i]
		u.PostID = post.ID
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
	}

	existing, ok := s.posts[post.ID]
	if !ok {
		stored := clonePost(post)
		s.posts[post.ID] = stored
		for _, u := range stored.Units {
			s.unitPost[u.ID] = post.ID
		}
		return nil
	}
	if existing.Deleted() {
		return models.ErrPostDeleted
	}

	existing.Content = cloneContent(post.Content)
	existing.UpdatedAt = now
	for _, incoming := range post.Units {
		current, found := existing.Unit(incoming.ID)
		if !found {
			existing.Units = append(existing.Units, cloneUnit(incoming))
			s.unitPost[incoming.ID] = post.ID
			continue
		}
		// Status and fire time of stored units only move through the conditional writes.
		switch current.Status {
		case models.UnitStatusDraft, models.UnitStatusScheduled, models.UnitStatusFailed:
			current.AccountID = incoming.AccountID
			current.Settings = cloneSettings(incoming.Settings)
			current.UpdatedAt = now
		}
	}
	return nil
}

func (s *MemoryStore) UpdateContent(ctx context.Context, postID string, content models.Content) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return false, models.ErrPostNotFound
	}
	if post.Deleted() || post.HasPublished() {
		return false, nil
	}
	post.Content = cloneContent(content)
	post.UpdatedAt = s.Now()
	return true, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, models.ErrPostNotFound
	}
	return clonePost(post), nil
}

func (s *MemoryStore) collectUnits(match func(p *models.Post, u *models.DeliveryUnit) bool) []models.DeliveryUnit {
	var units []models.DeliveryUnit
	for _, p := range s.posts {
		if p.Deleted() {
			continue
		}
		for i := range p.Units {
			if match(p, &p.Units[i]) {
				units = append(units, cloneUnit(p.Units[i]))
			}
		}
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].ScheduledTime == nil || units[j].ScheduledTime == nil {
			return units[i].ScheduledTime == nil && units[j].ScheduledTime != nil
		}
		return units[i].ScheduledTime.Before(*units[j].ScheduledTime)
	})
	return units
}

func (s *MemoryStore) FindScheduled(ctx context.Context) ([]models.DeliveryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectUnits(func(_ *models.Post, u *models.DeliveryUnit) bool {
		return u.Status == models.UnitStatusScheduled
	}), nil
}

func (s *MemoryStore) FindDueScheduled(ctx context.Context, now time.Time) ([]models.DeliveryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectUnits(func(_ *models.Post, u *models.DeliveryUnit) bool {
		return u.Status == models.UnitStatusScheduled && (u.ScheduledTime == nil || !u.ScheduledTime.After(now))
	}), nil
}

func (s *MemoryStore) FindFailedWithin(ctx context.Context, since time.Time) ([]models.DeliveryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectUnits(func(_ *models.Post, u *models.DeliveryUnit) bool {
		return u.Status == models.UnitStatusFailed && !u.UpdatedAt.Before(since)
	}), nil
}

func (s *MemoryStore) CompareAndSetStatus(ctx context.Context, unitID string, expected, next models.UnitStatus) (bool, error) {
	if !expected.CanTransition(next) {
		return false, models.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, ok := s.unit(unitID)
	if !ok {
		return false, models.ErrUnitNotFound
	}
	if u.Status != expected {
		return false, nil
	}
	u.Status = next
	u.UpdatedAt = s.Now()
	return true, nil
}

func (s *MemoryStore) UpdateSchedule(ctx context.Context, unitID string, fireAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, ok := s.unit(unitID)
	if !ok {
		return false, models.ErrUnitNotFound
	}
	if u.Status != models.UnitStatusDraft && u.Status != models.UnitStatusScheduled {
		return false, nil
	}
	u.Status = models.UnitStatusScheduled
	u.ScheduledTime = cloneTime(&fireAt)
	u.UpdatedAt = s.Now()
	return true, nil
}

func (s *MemoryStore) Rearm(ctx context.Context, unitID string, fireAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, ok := s.unit(unitID)
	if !ok {
		return false, models.ErrUnitNotFound
	}
	if u.Status != models.UnitStatusFailed {
		return false, nil
	}
	u.Status = models.UnitStatusScheduled
	u.ScheduledTime = cloneTime(&fireAt)
	u.UpdatedAt = s.Now()
	return true, nil
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, unitID string, outcome models.Outcome) (bool, error) {
	if !models.UnitStatusPublishing.CanTransition(outcome.Status) {
		return false, models.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, _, ok := s.unit(unitID)
	if !ok {
		return false, models.ErrUnitNotFound
	}
	if u.Status != models.UnitStatusPublishing {
		return false, nil
	}
	u.Status = outcome.Status
	u.ExternalID = outcome.ExternalID
	u.Error = outcome.Error
	u.ErrorKind = outcome.ErrorKind
	if outcome.PublishedTime != nil {
		u.PublishedTime = cloneTime(outcome.PublishedTime)
	}
	if outcome.CountAttempt {
		u.AttemptCount++
	}
	u.UpdatedAt = s.Now()
	return true, nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, postID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return models.ErrPostNotFound
	}
	if post.DeletedAt == nil {
		post.DeletedAt = &at
		post.UpdatedAt = at
	}
	return nil
}

func (s *MemoryStore) SaveTemplate(ctx context.Context, tpl *models.RecurringTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	stored := cloneTemplate(tpl)
	if existing, ok := s.templates[tpl.ID]; ok {
		stored.LastFiredOn = existing.LastFiredOn
	}
	s.templates[tpl.ID] = stored
	return nil
}

func (s *MemoryStore) FindActiveRecurring(ctx context.Context, now time.Time) ([]*models.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var templates []*models.RecurringTemplate
	for _, tpl := range s.templates {
		if tpl.Active(now) {
			templates = append(templates, cloneTemplate(tpl))
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *MemoryStore) ClaimTemplateDay(ctx context.Context, templateID, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[templateID]
	if !ok {
		return false, models.ErrTemplateNotFound
	}
	if tpl.LastFiredOn == day {
		return false, nil
	}
	tpl.LastFiredOn = day
	tpl.UpdatedAt = s.Now()
	return true, nil
}

// MemoryAccountStore is the in-process counterpart of the social_accounts table.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.SocialAccount
	Now      func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*models.SocialAccount), Now: time.Now}
}

// Put stores a connected account. Account onboarding lives outside this service.
func (s *MemoryAccountStore) Put(sa *models.SocialAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[sa.ID] = cloneAccount(sa)
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return cloneAccount(sa), nil
}

func (s *MemoryAccountStore) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []*models.SocialAccount
	for _, sa := range s.accounts {
		if !sa.IsActive || sa.RefreshToken == "" || sa.TokenExpiresAt == nil {
			continue
		}
		if sa.TokenExpiresAt.Before(finalTime) || sa.TokenExpiresAt.Equal(finalTime) {
			accounts = append(accounts, cloneAccount(sa))
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *MemoryAccountStore) SetToken(ctx context.Context, id, oldAccessToken string, sa *models.SocialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	if current.AccessToken != oldAccessToken {
		return ErrTokenRaced
	}
	if sa.AccessToken != "" {
		current.AccessToken = sa.AccessToken
	}
	if sa.RefreshToken != "" {
		current.RefreshToken = sa.RefreshToken
	}
	if sa.TokenExpiresAt != nil {
		current.TokenExpiresAt = cloneTime(sa.TokenExpiresAt)
	}
	current.UpdatedAt = s.Now()
	return nil
}
