package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReferenceRepository manages the content_refs table: which entity IDs
// each file currently contributes. Reference counts across files decide
// when derived copies are written and when they are purged.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// IDsForFile returns the entity IDs the ledger currently attributes to
// the file.
func (r *ReferenceRepository) IDsForFile(ctx context.Context, fileURL, owner string) ([]string, error) {
	query := `
		SELECT content_id FROM content_refs
		WHERE file_url = $1 AND owner = $2
		ORDER BY content_id`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, fileURL, owner); err != nil {
		return nil, fmt.Errorf("failed to list content ids for %s: %w", fileURL, err)
	}
	return ids, nil
}

// ApplyDiff records the outcome of one processing pass in a single
// transaction: references for added IDs are inserted and references
// for removed IDs are deleted. Once this commits the pass is durable;
// derived-store writes that follow are recoverable by reprocessing.
func (r *ReferenceRepository) ApplyDiff(ctx context.Context, fileURL, owner string, added, removed []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(added) > 0 {
		insert := `
			INSERT INTO content_refs (file_url, owner, content_id)
			SELECT $1, $2, unnest($3::text[])
			ON CONFLICT (file_url, owner, content_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insert, fileURL, owner, pq.Array(added)); err != nil {
			return fmt.Errorf("failed to insert content refs for %s: %w", fileURL, err)
		}
	}

	if len(removed) > 0 {
		del := `
			DELETE FROM content_refs
			WHERE file_url = $1 AND owner = $2 AND content_id = ANY($3::text[])`
		if _, err := tx.ExecContext(ctx, del, fileURL, owner, pq.Array(removed)); err != nil {
			return fmt.Errorf("failed to delete content refs for %s: %w", fileURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reference diff for %s: %w", fileURL, err)
	}
	return nil
}

// CountRefs returns, for each given entity ID, how many files
// currently reference it for the owner. IDs with no references map to
// zero. One round trip regardless of batch size.
func (r *ReferenceRepository) CountRefs(ctx context.Context, owner string, contentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(contentIDs))
	for _, id := range contentIDs {
		counts[id] = 0
	}
	if len(contentIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT content_id, COUNT(*) AS refs
		FROM content_refs
		WHERE owner = $1 AND content_id = ANY($2::text[])
		GROUP BY content_id`

	rows, err := r.db.QueryxContext(ctx, query, owner, pq.Array(contentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to count content refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan ref count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ref counts: %w", err)
	}
	return counts, nil
}

// RemoveFile drops all of a file's references and its row in one
// transaction, returning the IDs that were referenced so the caller
// can purge orphaned derived copies.
func (r *ReferenceRepository) RemoveFile(ctx context.Context, fileURL, owner string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	selectIDs := `SELECT content_id FROM content_refs WHERE file_url = $1 AND owner = $2`
	if err := tx.SelectContext(ctx, &ids, selectIDs, fileURL, owner); err != nil {
		return nil, fmt.Errorf("failed to list content ids for %s: %w", fileURL, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content_refs WHERE file_url = $1 AND owner = $2`, fileURL, owner); err != nil {
		return nil, fmt.Errorf("failed to delete content refs for %s: %w", fileURL, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE file_url = $1 AND owner = $2`, fileURL, owner); err != nil {
		return nil, fmt.Errorf("failed to delete file row for %s: %w", fileURL, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit file removal for %s: %w", fileURL, err)
	}
	return ids, nil
}
