package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	dp "tg-subscriptions-backend/internal/domain/post"
)

// ScheduledPostRepository backs the post dispatcher.
type ScheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) *ScheduledPostRepository {
	return &ScheduledPostRepository{db: db}
}

func (r *ScheduledPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `
	SELECT id FROM scheduled_posts
	WHERE status=$1 AND scheduled_for <= $2
	ORDER BY scheduled_for ASC
	LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, dp.StatusScheduled, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim is a compare-and-set on status; only one caller gets the row back.
func (r *ScheduledPostRepository) Claim(ctx context.Context, id string) (*dp.ScheduledPost, error) {
	const q = `
	UPDATE scheduled_posts SET status=$2, updated_at=now()
	WHERE id=$1 AND status=$3
	RETURNING id, subscription_id, COALESCE(title,''), COALESCE(body,''), scheduled_for, status, extra`
	var (
		p     dp.ScheduledPost
		extra []byte
	)
	err := r.db.QueryRowContext(ctx, q, id, dp.StatusPublishing, dp.StatusScheduled).
		Scan(&p.ID, &p.SubscriptionID, &p.Title, &p.Body, &p.ScheduledFor, &p.Status, &extra)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &p.Extra); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *ScheduledPostRepository) ListAttachments(ctx context.Context, postID string) ([]dp.Attachment, error) {
	const q = `
	SELECT scheduled_posts_id, attachment_type, storage_path, created_at
	FROM post_attachments WHERE scheduled_posts_id=$1
	ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dp.Attachment
	for rows.Next() {
		var a dp.Attachment
		if err := rows.Scan(&a.PostID, &a.Type, &a.StoragePath, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ScheduledPostRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE scheduled_posts SET status=$2, posted_at=$3, updated_at=now() WHERE id=$1 AND status=$4`
	_, err := r.db.ExecContext(ctx, q, id, dp.StatusPublished, at, dp.StatusPublishing)
	return err
}

func (r *ScheduledPostRepository) MarkFailed(ctx context.Context, id string, diag map[string]interface{}) error {
	payload, err := json.Marshal(diag)
	if err != nil {
		return err
	}
	const q = `
	UPDATE scheduled_posts
	SET status=$2, extra=COALESCE(extra,'{}'::jsonb) || $3::jsonb, updated_at=now()
	WHERE id=$1`
	_, err = r.db.ExecContext(ctx, q, id, dp.StatusFailed, string(payload))
	return err
}

func (r *ScheduledPostRepository) FailStale(ctx context.Context, olderThan time.Time) (int64, error) {
	const q = `
	UPDATE scheduled_posts
	SET status=$1,
		extra=COALESCE(extra,'{}'::jsonb) || jsonb_build_object('last_error','stale claim','failed_at',now()),
		updated_at=now()
	WHERE status=$2 AND updated_at < $3`
	res, err := r.db.ExecContext(ctx, q, dp.StatusFailed, dp.StatusPublishing, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
