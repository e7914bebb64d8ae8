package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/google/uuid"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, account_id, family_id, endpoint, p256dh_key, auth_key, device_name, created_at`

func scanSubscription(sc scanner) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := sc.Scan(&sub.ID, &sub.AccountID, &sub.FamilyID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe registers a browser endpoint. Re-subscribing the same endpoint
// refreshes its keys and moves it to the caller's account.
func (s *PushStore) Subscribe(ctx context.Context, accountID, familyID, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (id, account_id, family_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   account_id = excluded.account_id, family_id = excluded.family_id,
		   p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		uuid.NewString(), accountID, familyID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, classify("create push subscription", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, classify("get push subscription", err)
	}
	return sub, nil
}

func (s *PushStore) ListByFamily(ctx context.Context, familyID string) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE family_id = ? ORDER BY created_at DESC`, familyID,
	)
	if err != nil {
		return nil, classify("list push subscriptions", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) Delete(ctx context.Context, familyID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = ? AND family_id = ?`, id, familyID,
	); err != nil {
		return classify("delete push subscription", err)
	}
	return nil
}

// DeleteByEndpoint drops a subscription the push service reported as gone.
func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return classify("delete push subscription by endpoint", err)
	}
	return nil
}
