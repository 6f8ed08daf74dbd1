package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/bug-tracker/internal/domain"
)

// BugFilter captures listing parameters after authorization has been applied.
type BugFilter struct {
	// AssigneeID restricts results to one assignee; nil means no restriction.
	AssigneeID *int64
	// StatusContains and AssigneeNameContains are case-sensitive substring
	// matches; empty strings match everything.
	StatusContains       string
	AssigneeNameContains string
	Sort                 domain.BugSort
	Limit                int
	Offset               int
}

// BugRepository encapsulates bug persistence.
type BugRepository interface {
	Create(ctx context.Context, bug *domain.Bug) error
	// Update writes title, severity, description and assignee. Status only
	// moves through Close.
	Update(ctx context.Context, bug *domain.Bug) error
	GetByID(ctx context.Context, id int64) (*domain.Bug, error)
	List(ctx context.Context, filter BugFilter) ([]domain.Bug, int, error)
	// Close moves an Open bug to Closed and reports whether a row changed.
	Close(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type bugRepository struct {
	pool *pgxpool.Pool
}

// NewBugRepository instantiates repository.
func NewBugRepository(pool *pgxpool.Pool) BugRepository {
	return &bugRepository{pool: pool}
}

const bugSelect = `
        SELECT b.id, b.title, b.severity, b.status, b.description, b.created_at,
               b.creator_id, c.email, c.first_name, c.last_name,
               b.assignee_id, a.email, a.first_name, a.last_name
        FROM bugs b
        LEFT JOIN users c ON c.id = b.creator_id
        LEFT JOIN users a ON a.id = b.assignee_id`

var sortColumns = map[domain.BugField]string{
	domain.BugFieldID:          "b.id",
	domain.BugFieldTitle:       "b.title",
	domain.BugFieldSeverity:    "b.severity",
	domain.BugFieldStatus:      "b.status",
	domain.BugFieldDescription: "b.description",
	domain.BugFieldCreatedAt:   "b.created_at",
	domain.BugFieldCreator:     "b.creator_id",
	domain.BugFieldAssignee:    "b.assignee_id",
}

func (r *bugRepository) Create(ctx context.Context, bug *domain.Bug) error {
	const query = `
        INSERT INTO bugs (title, severity, status, description, creator_id, assignee_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		bug.Title,
		bug.Severity,
		bug.Status,
		bug.Description,
		bug.CreatorID,
		bug.AssigneeID,
	).Scan(&bug.ID, &bug.CreatedAt)
}

// Update writes the mutable columns except status. creator_id and created_at
// are never touched.
func (r *bugRepository) Update(ctx context.Context, bug *domain.Bug) error {
	const query = `
        UPDATE bugs SET title=$1, severity=$2, description=$3, assignee_id=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		bug.Title,
		bug.Severity,
		bug.Description,
		bug.AssigneeID,
		bug.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bugRepository) GetByID(ctx context.Context, id int64) (*domain.Bug, error) {
	bug, err := scanBug(r.pool.QueryRow(ctx, bugSelect+` WHERE b.id=$1`, id))
	if err != nil {
		return nil, err
	}
	return bug, nil
}

func (r *bugRepository) List(ctx context.Context, filter BugFilter) ([]domain.Bug, int, error) {
	countQuery, listQuery, args, err := buildBugListQueries(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Bug
	for rows.Next() {
		bug, err := scanBug(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *bug)
	}
	return result, total, rows.Err()
}

func (r *bugRepository) Close(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE bugs SET status=$1 WHERE id=$2 AND status=$3`,
		domain.BugStatusClosed, id, domain.BugStatusOpen)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *bugRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM bugs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildBugListQueries renders the count and page queries for filter. Both
// share the same argument list.
func buildBugListQueries(filter BugFilter) (string, string, []any, error) {
	column, ok := sortColumns[filter.Sort.Field]
	if !ok {
		if filter.Sort.Field != "" {
			return "", "", nil, domain.ErrInvalidSortKey
		}
		column = sortColumns[domain.BugFieldID]
	}

	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("b.assignee_id=$%d", len(args)))
	}
	if filter.StatusContains != "" {
		args = append(args, filter.StatusContains)
		clauses = append(clauses, fmt.Sprintf("strpos(b.status, $%d) > 0", len(args)))
	}
	if filter.AssigneeNameContains != "" {
		args = append(args, filter.AssigneeNameContains)
		clauses = append(clauses, fmt.Sprintf("strpos(a.first_name || ' ' || a.last_name, $%d) > 0", len(args)))
	}

	where := strings.Join(clauses, " AND ")
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM bugs b LEFT JOIN users a ON a.id = b.assignee_id WHERE %s`, where)

	direction := "ASC"
	if filter.Sort.Desc {
		direction = "DESC"
	}
	order := fmt.Sprintf("%s %s NULLS LAST", column, direction)
	if column != sortColumns[domain.BugFieldID] {
		order += ", b.id ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 15
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`, bugSelect, where, order, limit, offset)
	return countQuery, listQuery, args, nil
}

func scanBug(row pgx.Row) (*domain.Bug, error) {
	var (
		bug                                        domain.Bug
		creatorEmail, creatorFirst, creatorLast    *string
		assigneeEmail, assigneeFirst, assigneeLast *string
	)
	if err := row.Scan(
		&bug.ID,
		&bug.Title,
		&bug.Severity,
		&bug.Status,
		&bug.Description,
		&bug.CreatedAt,
		&bug.CreatorID,
		&creatorEmail,
		&creatorFirst,
		&creatorLast,
		&bug.AssigneeID,
		&assigneeEmail,
		&assigneeFirst,
		&assigneeLast,
	); err != nil {
		return nil, err
	}
	bug.Creator = userRef(bug.CreatorID, creatorEmail, creatorFirst, creatorLast)
	bug.Assignee = userRef(bug.AssigneeID, assigneeEmail, assigneeFirst, assigneeLast)
	return &bug, nil
}

func userRef(id *int64, email, first, last *string) *domain.UserRef {
	if id == nil {
		return nil
	}
	ref := &domain.UserRef{ID: *id}
	if email != nil {
		ref.Email = *email
	}
	if first != nil {
		ref.FirstName = *first
	}
	if last != nil {
		ref.LastName = *last
	}
	return ref
}
