// Package memory holds an in-process implementation of the repositories.
// It backs the service when no Postgres DSN is configured and doubles as
// the store for tests. Semantics follow the SQL schema: unique emails,
// SET NULL on user removal, guarded close.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/repository"
)

// Store keeps users and bugs in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	bugs       map[int64]domain.Bug
	nextUserID int64
	nextBugID  int64
	now        func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users: make(map[int64]domain.User),
		bugs:  make(map[int64]domain.Bug),
		now:   time.Now,
	}
}

// Users exposes the store as a UserRepository.
func (s *Store) Users() repository.UserRepository { return (*userRepo)(s) }

// Bugs exposes the store as a BugRepository.
func (s *Store) Bugs() repository.BugRepository { return (*bugRepo)(s) }

type userRepo Store

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("users.email %q: duplicate key", user.Email)
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = s.now()
	s.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) List(_ context.Context) ([]domain.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

func (r *userRepo) UpdateRole(_ context.Context, id int64, role domain.Role) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Role = role
	s.users[id] = user
	return nil
}

func (r *userRepo) TouchLogin(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	now := s.now()
	user.LastLoginAt = &now
	s.users[id] = user
	return nil
}

func (r *userRepo) Delete(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	for bugID, bug := range s.bugs {
		if bug.IsCreatedBy(id) {
			bug.CreatorID = nil
		}
		if bug.IsAssignedTo(id) {
			bug.AssigneeID = nil
		}
		s.bugs[bugID] = bug
	}
	return nil
}

type bugRepo Store

func (r *bugRepo) Create(_ context.Context, bug *domain.Bug) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRefs(bug); err != nil {
		return err
	}
	s.nextBugID++
	bug.ID = s.nextBugID
	bug.CreatedAt = s.now()
	s.bugs[bug.ID] = stripRefs(*bug)
	s.attachRefs(bug)
	return nil
}

func (r *bugRepo) Update(_ context.Context, bug *domain.Bug) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bugs[bug.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := s.checkRefs(bug); err != nil {
		return err
	}
	current.Title = bug.Title
	current.Severity = bug.Severity
	current.Description = bug.Description
	current.AssigneeID = copyID(bug.AssigneeID)
	s.bugs[bug.ID] = current
	return nil
}

func (r *bugRepo) GetByID(_ context.Context, id int64) (*domain.Bug, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bug, ok := s.bugs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.attachRefs(&bug)
	return &bug, nil
}

func (r *bugRepo) List(_ context.Context, filter repository.BugFilter) ([]domain.Bug, int, error) {
	s := (*Store)(r)
	less, err := bugLess(filter.Sort)
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]domain.Bug, 0, len(s.bugs))
	for _, bug := range s.bugs {
		s.attachRefs(&bug)
		if matches(bug, filter) {
			matched = append(matched, bug)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 15
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.Bug{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *bugRepo) Close(_ context.Context, id int64) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	bug, ok := s.bugs[id]
	if !ok || bug.Status != domain.BugStatusOpen {
		return false, nil
	}
	bug.Status = domain.BugStatusClosed
	s.bugs[id] = bug
	return true, nil
}

func (r *bugRepo) Delete(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bugs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.bugs, id)
	return nil
}

// checkRefs plays the role of the foreign keys. Callers hold s.mu.
func (s *Store) checkRefs(bug *domain.Bug) error {
	for _, id := range []*int64{bug.CreatorID, bug.AssigneeID} {
		if id == nil {
			continue
		}
		if _, ok := s.users[*id]; !ok {
			return fmt.Errorf("bugs: user %d does not exist", *id)
		}
	}
	return nil
}

// attachRefs fills Creator and Assignee the way the SQL joins do. Callers hold s.mu.
func (s *Store) attachRefs(bug *domain.Bug) {
	bug.Creator, bug.Assignee = nil, nil
	bug.CreatorID = copyID(bug.CreatorID)
	bug.AssigneeID = copyID(bug.AssigneeID)
	if bug.CreatorID != nil {
		if user, ok := s.users[*bug.CreatorID]; ok {
			bug.Creator = user.Ref()
		}
	}
	if bug.AssigneeID != nil {
		if user, ok := s.users[*bug.AssigneeID]; ok {
			bug.Assignee = user.Ref()
		}
	}
}

func stripRefs(bug domain.Bug) domain.Bug {
	bug.Creator, bug.Assignee = nil, nil
	bug.CreatorID = copyID(bug.CreatorID)
	bug.AssigneeID = copyID(bug.AssigneeID)
	return bug
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func matches(bug domain.Bug, filter repository.BugFilter) bool {
	if filter.AssigneeID != nil && !bug.IsAssignedTo(*filter.AssigneeID) {
		return false
	}
	if filter.StatusContains != "" && !strings.Contains(string(bug.Status), filter.StatusContains) {
		return false
	}
	if filter.AssigneeNameContains != "" {
		if bug.Assignee == nil {
			return false
		}
		fullName := bug.Assignee.FirstName + " " + bug.Assignee.LastName
		if !strings.Contains(fullName, filter.AssigneeNameContains) {
			return false
		}
	}
	return true
}

// bugLess builds the comparator for a sort order; NULL refs sort last and
// ties fall back to ascending id, matching the SQL ORDER BY.
func bugLess(order domain.BugSort) (func(a, b domain.Bug) bool, error) {
	var cmp func(a, b domain.Bug) int
	switch order.Field {
	case domain.BugFieldID, "":
		cmp = func(a, b domain.Bug) int { return compareInt(a.ID, b.ID) }
	case domain.BugFieldTitle:
		cmp = func(a, b domain.Bug) int { return strings.Compare(a.Title, b.Title) }
	case domain.BugFieldSeverity:
		cmp = func(a, b domain.Bug) int { return strings.Compare(string(a.Severity), string(b.Severity)) }
	case domain.BugFieldStatus:
		cmp = func(a, b domain.Bug) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case domain.BugFieldDescription:
		cmp = func(a, b domain.Bug) int { return strings.Compare(a.Description, b.Description) }
	case domain.BugFieldCreatedAt:
		cmp = func(a, b domain.Bug) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case domain.BugFieldCreator:
		cmp = nullableCompare(func(b domain.Bug) *int64 { return b.CreatorID }, order.Desc)
	case domain.BugFieldAssignee:
		cmp = nullableCompare(func(b domain.Bug) *int64 { return b.AssigneeID }, order.Desc)
	default:
		return nil, domain.ErrInvalidSortKey
	}
	return func(a, b domain.Bug) bool {
		c := cmp(a, b)
		if order.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	}, nil
}

// nullableCompare orders nil after every value regardless of direction;
// desc pre-inverts the nil cases because the caller negates the result.
func nullableCompare(get func(domain.Bug) *int64, desc bool) func(a, b domain.Bug) int {
	last := 1
	if desc {
		last = -1
	}
	return func(a, b domain.Bug) int {
		av, bv := get(a), get(b)
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return last
		case bv == nil:
			return -last
		}
		return compareInt(*av, *bv)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
