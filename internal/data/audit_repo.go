package data

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/target/sealbox/internal/errors"

	"github.com/target/sealbox/internal/domain/model"
)

// AuditRepo appends egress decisions to the audit_records table. It is the
// multi-replica implementation of the audit sink port; single-node
// deployments can use the JSONL file sink instead.
type AuditRepo struct {
	DB *sql.DB
}

// NewAuditRepo creates an AuditRepo with the given database connection.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db}
}

const auditColumns = `
  recorded_at,
  sequence,
  point,
  effect,
  reason,
  rule_id,
  job_id,
  context_digest,
  policy_digest,
  signature
`

// Append inserts one signed record. The table is append-only: no update or
// delete path exists in this repo.
func (r *AuditRepo) Append(ctx context.Context, rec model.AuditRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO audit_records (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, auditColumns)

	_, err := r.DB.ExecContext(ctx, query,
		rec.Timestamp,
		rec.Sequence,
		string(rec.Point),
		string(rec.Effect),
		rec.Reason,
		nullIfEmpty(rec.RuleID),
		rec.JobID,
		rec.ContextDigest,
		rec.PolicyDigest,
		rec.Signature,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}

	return nil
}

// ListByJobID returns the trail for one job in append order, for operators
// reconstructing why a result was gated.
func (r *AuditRepo) ListByJobID(ctx context.Context, jobID string) ([]model.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_records
		WHERE job_id = $1
		ORDER BY id ASC`, auditColumns)

	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var ruleID sql.NullString
		if scanErr := rows.Scan(
			&rec.Timestamp,
			&rec.Sequence,
			&rec.Point,
			&rec.Effect,
			&rec.Reason,
			&ruleID,
			&rec.JobID,
			&rec.ContextDigest,
			&rec.PolicyDigest,
			&rec.Signature,
		); scanErr != nil {
			return nil, apperrors.MapDBError(scanErr)
		}
		rec.RuleID = ruleID.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	return records, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
