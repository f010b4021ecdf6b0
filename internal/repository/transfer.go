// Package repository holds the Postgres implementation of the transfer store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransferRepository wraps all SQL used by the pipeline engine.
type TransferRepository struct {
	pool DB
}

// NewTransferRepository constructs a repository.
func NewTransferRepository(pool DB) *TransferRepository {
	return &TransferRepository{pool: pool}
}

const transferColumns = `id, COALESCE(reference,''), title, notes, category, priority, submitter_id, submitter_name,
	status, rejection_reason, failure_detail, failed_files, production_path,
	scan_started_at, scan_completed_at, transfer_started_at, transfer_completed_at,
	external, version, created_at, updated_at`

// Create inserts the transfer with its files, chain and initial history in
// one transaction and assigns the reference code from the new id.
func (r *TransferRepository) Create(ctx context.Context, t *model.Transfer, history []model.HistoryEntry) (*model.Transfer, error) {
	out := t.Clone()
	out.Version = 1
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		external, err := marshalExternal(out.External)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO transfers (title, notes, category, priority, submitter_id, submitter_name, status,
				rejection_reason, failure_detail, failed_files, production_path, external, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING id
		`, out.Title, out.Notes, out.Category, out.Priority, out.SubmitterID, out.SubmitterName, out.Status,
			out.RejectionReason, out.FailureDetail, failedFiles(out.FailedFiles), out.ProductionPath, external,
			out.Version, out.CreatedAt, out.UpdatedAt).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		out.Reference = model.ReferenceFor(out.ID)
		if _, err := tx.Exec(ctx, `UPDATE transfers SET reference=$1 WHERE id=$2`, out.Reference, out.ID); err != nil {
			return fmt.Errorf("set reference: %w", err)
		}
		for i := range out.Files {
			f := &out.Files[i]
			err := tx.QueryRow(ctx, `
				INSERT INTO transfer_files (transfer_id, position, filename, staging_key, size, checksum)
				VALUES ($1,$2,$3,$4,$5,$6)
				RETURNING id
			`, out.ID, i, f.Filename, f.StagingKey, f.Size, f.Checksum).Scan(&f.ID)
			if err != nil {
				return fmt.Errorf("insert file %s: %w", f.Filename, err)
			}
		}
		if err := upsertChain(ctx, tx, out); err != nil {
			return err
		}
		return insertHistory(ctx, tx, out.ID, history)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load returns the transfer with its files and chain.
func (r *TransferRepository) Load(ctx context.Context, id int64) (*model.Transfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NotFoundf("transfer %d not found", id)
		}
		return nil, fmt.Errorf("select transfer: %w", err)
	}
	if err := loadChildren(ctx, r.pool, []*model.Transfer{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveAtomic writes t and history only when the row still carries
// expectedVersion.
func (r *TransferRepository) SaveAtomic(ctx context.Context, t *model.Transfer, expectedVersion int64, history []model.HistoryEntry) (*model.Transfer, error) {
	out := t.Clone()
	out.Version = expectedVersion + 1
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		external, err := marshalExternal(out.External)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE transfers SET
				status=$1, rejection_reason=$2, failure_detail=$3, failed_files=$4, production_path=$5,
				scan_started_at=$6, scan_completed_at=$7, transfer_started_at=$8, transfer_completed_at=$9,
				external=$10, version=$11, updated_at=$12
			WHERE id=$13 AND version=$14
		`, out.Status, out.RejectionReason, out.FailureDetail, failedFiles(out.FailedFiles), out.ProductionPath,
			out.ScanStartedAt, out.ScanCompletedAt, out.TransferStartedAt, out.TransferCompletedAt,
			external, out.Version, out.UpdatedAt, out.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transfers WHERE id=$1)`, out.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check transfer: %w", err)
			}
			if !exists {
				return model.NotFoundf("transfer %d not found", out.ID)
			}
			return model.ConcurrentModificationf("transfer %d changed since version %d", out.ID, expectedVersion)
		}
		for _, f := range out.Files {
			_, err := tx.Exec(ctx, `
				UPDATE transfer_files SET
					scan_verdict=$1, scan_detail=$2, scan_attempts=$3, scanned_at=$4,
					destination_key=$5, destination_checksum=$6, verified=$7,
					copy_attempts=$8, copy_error=$9, copied_at=$10
				WHERE id=$11 AND transfer_id=$12
			`, f.ScanVerdict, f.ScanDetail, f.ScanAttempts, f.ScannedAt,
				f.DestinationKey, f.DestinationChecksum, f.Verified,
				f.CopyAttempts, f.CopyError, f.CopiedAt, f.ID, out.ID)
			if err != nil {
				return fmt.Errorf("update file %d: %w", f.ID, err)
			}
		}
		if err := upsertChain(ctx, tx, out); err != nil {
			return err
		}
		return insertHistory(ctx, tx, out.ID, history)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendHistory stores a single entry outside of any aggregate write.
func (r *TransferRepository) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	return insertHistory(ctx, r.pool, entry.TransferID, []model.HistoryEntry{entry})
}

// History returns the entries for a transfer in commit order.
func (r *TransferRepository) History(ctx context.Context, transferID int64) ([]model.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, transfer_id, actor_id, action, description, metadata, created_at
		FROM transfer_history WHERE transfer_id=$1 ORDER BY id
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()
	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e    model.HistoryEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.TransferID, &e.ActorID, &e.Action, &e.Description, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode history metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns one page of matching transfers, newest first, and the total
// number of matches.
func (r *TransferRepository) List(ctx context.Context, f model.Filter) ([]*model.Transfer, int, error) {
	where, args := buildFilter(f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}
	query := `SELECT ` + transferColumns + ` FROM transfers` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select transfers: %w", err)
	}
	defer rows.Close()
	var out []*model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := loadChildren(ctx, r.pool, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByStatus returns the number of transfers per status.
func (r *TransferRepository) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM transfers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	out := make(map[model.Status]int)
	for rows.Next() {
		var (
			status model.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *TransferRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// buildFilter renders f as a WHERE clause with positional arguments.
func buildFilter(f model.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.SubmitterID != nil {
		add("submitter_id = $%d", *f.SubmitterID)
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.AwaitingRole != "" {
		var awaiting []model.Status
		if f.AwaitingRole == model.RoleAdmin {
			for _, s := range model.AllStatuses {
				if s.IsPending() {
					awaiting = append(awaiting, s)
				}
			}
		} else if s, ok := model.PendingStatus(f.AwaitingRole); ok {
			awaiting = append(awaiting, s)
		}
		if len(awaiting) == 0 {
			conds = append(conds, "FALSE")
		} else {
			add("status = ANY($%d)", statusStrings(awaiting))
		}
	}
	if f.UpdatedBefore != nil {
		add("updated_at < $%d", *f.UpdatedBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusStrings(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func failedFiles(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func marshalExternal(ext *model.ExternalLink) ([]byte, error) {
	if ext == nil {
		return nil, nil
	}
	b, err := json.Marshal(ext)
	if err != nil {
		return nil, fmt.Errorf("encode external link: %w", err)
	}
	return b, nil
}

func scanTransfer(row pgx.Row) (*model.Transfer, error) {
	var (
		t        model.Transfer
		external []byte
	)
	err := row.Scan(&t.ID, &t.Reference, &t.Title, &t.Notes, &t.Category, &t.Priority, &t.SubmitterID, &t.SubmitterName,
		&t.Status, &t.RejectionReason, &t.FailureDetail, &t.FailedFiles, &t.ProductionPath,
		&t.ScanStartedAt, &t.ScanCompletedAt, &t.TransferStartedAt, &t.TransferCompletedAt,
		&external, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(t.FailedFiles) == 0 {
		t.FailedFiles = nil
	}
	if len(external) > 0 {
		t.External = &model.ExternalLink{}
		if err := json.Unmarshal(external, t.External); err != nil {
			return nil, fmt.Errorf("decode external link: %w", err)
		}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// loadChildren fills Files and ApprovalChain for every transfer in ts.
func loadChildren(ctx context.Context, q querier, ts []*model.Transfer) error {
	if len(ts) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Transfer, len(ts))
	ids := make([]int64, 0, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
		ids = append(ids, t.ID)
		t.Files = []model.TransferFile{}
		t.ApprovalChain = []model.ApprovalChainItem{}
	}

	rows, err := q.Query(ctx, `
		SELECT transfer_id, id, filename, staging_key, size, checksum,
			scan_verdict, scan_detail, scan_attempts, scanned_at,
			destination_key, destination_checksum, verified, copy_attempts, copy_error, copied_at
		FROM transfer_files WHERE transfer_id = ANY($1) ORDER BY transfer_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("select files: %w", err)
	}
	for rows.Next() {
		var (
			owner int64
			f     model.TransferFile
		)
		if err := rows.Scan(&owner, &f.ID, &f.Filename, &f.StagingKey, &f.Size, &f.Checksum,
			&f.ScanVerdict, &f.ScanDetail, &f.ScanAttempts, &f.ScannedAt,
			&f.DestinationKey, &f.DestinationChecksum, &f.Verified, &f.CopyAttempts, &f.CopyError, &f.CopiedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan file: %w", err)
		}
		byID[owner].Files = append(byID[owner].Files, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `
		SELECT transfer_id, role, status, decider_id, decider_name, comment, decided_at
		FROM approval_items WHERE transfer_id = ANY($1) ORDER BY transfer_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("select approval items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner int64
			item  model.ApprovalChainItem
		)
		if err := rows.Scan(&owner, &item.Role, &item.Status, &item.DeciderID, &item.DeciderName, &item.Comment, &item.DecidedAt); err != nil {
			return fmt.Errorf("scan approval item: %w", err)
		}
		byID[owner].ApprovalChain = append(byID[owner].ApprovalChain, item)
	}
	return rows.Err()
}

func upsertChain(ctx context.Context, q querier, t *model.Transfer) error {
	for i, item := range t.ApprovalChain {
		_, err := q.Exec(ctx, `
			INSERT INTO approval_items (transfer_id, position, role, status, decider_id, decider_name, comment, decided_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (transfer_id, position) DO UPDATE SET
				status=EXCLUDED.status, decider_id=EXCLUDED.decider_id, decider_name=EXCLUDED.decider_name,
				comment=EXCLUDED.comment, decided_at=EXCLUDED.decided_at
		`, t.ID, i, item.Role, item.Status, item.DeciderID, item.DeciderName, item.Comment, item.DecidedAt)
		if err != nil {
			return fmt.Errorf("write approval item %s: %w", item.Role, err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, q querier, transferID int64, entries []model.HistoryEntry) error {
	for _, e := range entries {
		meta := []byte("{}")
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode history metadata: %w", err)
			}
			meta = b
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := q.Exec(ctx, `
			INSERT INTO transfer_history (transfer_id, actor_id, action, description, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, transferID, e.ActorID, e.Action, e.Description, meta, created)
		if err != nil {
			return fmt.Errorf("insert history %s: %w", e.Action, err)
		}
	}
	return nil
}
