// Package testutil provides in-memory stand-ins for the Postgres, Redis and
// MinIO backed components. They honour the same constraints and sentinel
// errors as the real repositories.
package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
)

// Users mirrors repository.UserRepository. Set Err to make every call fail.
type Users struct {
	mu    sync.Mutex
	byID  map[string]models.User
	order []string
	Gyms  map[string]bool
	Err   error
}

// NewUsers returns a store that only accepts users of the given gyms.
// With no gyms every gym id is accepted.
func NewUsers(gyms ...string) *Users {
	u := &Users{byID: map[string]models.User{}}
	if len(gyms) > 0 {
		u.Gyms = map[string]bool{}
		for _, g := range gyms {
			u.Gyms[g] = true
		}
	}
	return u
}

func (u *Users) Create(_ context.Context, user models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	if u.Gyms != nil && !u.Gyms[user.GymID] {
		return repository.ErrUnknownGym
	}
	if err := u.checkUnique(user); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
		user.UpdatedAt = user.CreatedAt
	}
	u.byID[user.ID] = user
	u.order = append(u.order, user.ID)
	return nil
}

// Put stores a user as-is, bypassing constraint checks. For test setup.
func (u *Users) Put(user models.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byID[user.ID]; !ok {
		u.order = append(u.order, user.ID)
	}
	u.byID[user.ID] = user
}

func (u *Users) FindByEmail(_ context.Context, gymID string, email string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	for _, user := range u.byID {
		if user.GymID == gymID && user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (u *Users) FindByNationalID(_ context.Context, nationalID string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	for _, user := range u.byID {
		if user.NationalID != nil && *user.NationalID == nationalID {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return models.User{}, u.Err
	}
	user, ok := u.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

// ListByGym returns newest first, like the SQL query.
func (u *Users) ListByGym(_ context.Context, gymID string) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	var out []models.User
	for i := len(u.order) - 1; i >= 0; i-- {
		if user, ok := u.byID[u.order[i]]; ok && user.GymID == gymID {
			out = append(out, user)
		}
	}
	return out, nil
}

func (u *Users) Update(_ context.Context, user models.User) error {
	return u.mutate(user.ID, func(stored *models.User) error {
		candidate := *stored
		candidate.Name = user.Name
		candidate.Email = user.Email
		candidate.Role = user.Role
		candidate.NationalID = user.NationalID
		candidate.Phone = user.Phone
		candidate.BirthDate = user.BirthDate
		if err := u.checkUnique(candidate); err != nil {
			return err
		}
		*stored = candidate
		return nil
	})
}

func (u *Users) SetActive(_ context.Context, id string, active bool) error {
	return u.mutate(id, func(stored *models.User) error {
		stored.Active = active
		return nil
	})
}

func (u *Users) UpdatePassword(_ context.Context, id string, hash []byte) error {
	return u.mutate(id, func(stored *models.User) error {
		stored.PasswordHash = hash
		return nil
	})
}

func (u *Users) UpdatePhoto(_ context.Context, id string, key string) error {
	return u.mutate(id, func(stored *models.User) error {
		stored.PhotoKey = &key
		return nil
	})
}

func (u *Users) Delete(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	if _, ok := u.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(u.byID, id)
	return nil
}

func (u *Users) mutate(id string, fn func(*models.User) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	stored, ok := u.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if err := fn(&stored); err != nil {
		return err
	}
	stored.UpdatedAt = time.Now().UTC()
	u.byID[id] = stored
	return nil
}

// checkUnique must be called with mu held.
func (u *Users) checkUnique(user models.User) error {
	for _, other := range u.byID {
		if other.ID == user.ID {
			continue
		}
		if other.GymID == user.GymID && other.Email == user.Email {
			return &repository.DuplicateError{Constraint: repository.ConstraintGymEmail}
		}
		if user.NationalID != nil && other.NationalID != nil && *other.NationalID == *user.NationalID {
			return &repository.DuplicateError{Constraint: repository.ConstraintNationalID}
		}
	}
	return nil
}

// CheckIns mirrors repository.CheckInRepository.
type CheckIns struct {
	mu    sync.Mutex
	items []models.CheckIn
	Err   error
}

func NewCheckIns() *CheckIns { return &CheckIns{} }

func (c *CheckIns) Create(_ context.Context, checkIn models.CheckIn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.items = append(c.items, checkIn)
	return nil
}

func (c *CheckIns) ListByGym(_ context.Context, gymID string) ([]models.CheckIn, error) {
	return c.filter(func(ci models.CheckIn) bool { return ci.GymID == gymID })
}

func (c *CheckIns) ListByUser(_ context.Context, gymID string, userID string) ([]models.CheckIn, error) {
	return c.filter(func(ci models.CheckIn) bool { return ci.GymID == gymID && ci.UserID == userID })
}

func (c *CheckIns) filter(keep func(models.CheckIn) bool) ([]models.CheckIn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var out []models.CheckIn
	for _, ci := range c.items {
		if keep(ci) {
			out = append(out, ci)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	return out, nil
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Types lists the type of every recorded event in publish order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Objects is an in-memory ObjectPutter.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	Err     error
}

func NewObjects() *Objects {
	return &Objects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (o *Objects) PutObject(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	o.objects[key] = buf.Bytes()
	o.types[key] = contentType
	return nil
}

func (o *Objects) PublicURL(key string) string {
	return "http://objects.test/photos/" + key
}

// Get returns a stored object and its content type.
func (o *Objects) Get(key string) ([]byte, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	return data, o.types[key], ok
}
