package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, family_id, category, title, description, points, frequency, image_url, sort_order`

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var category string
	err := sc.Scan(&t.ID, &t.FamilyID, &category, &t.Title, &t.Description, &t.Points, &t.Frequency, &t.ImageURL, &t.SortOrder)
	if err != nil {
		return nil, err
	}
	t.Category = model.TaskCategory(category)
	return &t, nil
}

func insertTask(ctx context.Context, q queryer, t model.Task) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, string(t.Category), t.Title, t.Description, t.Points, t.Frequency, t.ImageURL, t.SortOrder,
	)
	if err != nil {
		return classify("insert task", err)
	}
	return nil
}

// Create appends t to the end of the family's catalog.
func (s *TaskStore) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM tasks WHERE family_id = ?`, t.FamilyID,
	).Scan(&t.SortOrder)
	if err != nil {
		return nil, classify("query max sort_order", err)
	}
	if err := insertTask(ctx, s.db, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, t.FamilyID, t.ID)
}

func (s *TaskStore) Get(ctx context.Context, familyID, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ? AND family_id = ?`, id, familyID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get task", err)
	}
	return t, nil
}

func (s *TaskStore) List(ctx context.Context, familyID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY sort_order, rowid`, familyID,
	)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(ctx context.Context, t model.Task) (*model.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET category = ?, title = ?, description = ?, points = ?, frequency = ?, image_url = ?
		 WHERE id = ? AND family_id = ?`,
		string(t.Category), t.Title, t.Description, t.Points, t.Frequency, t.ImageURL, t.ID, t.FamilyID,
	)
	if err != nil {
		return nil, classify("update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.E(ledger.ErrNotFound, "update task", "task not found")
	}
	return s.Get(ctx, t.FamilyID, t.ID)
}

func (s *TaskStore) Delete(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return classify("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.E(ledger.ErrNotFound, "delete task", "task not found")
	}
	return nil
}
