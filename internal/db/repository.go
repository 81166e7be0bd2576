package db

import (
	"context"
	"encoding/json"
	"time"

	"pix-gateway/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrDuplicate = errors.New("transaction already exists")

const transactionColumns = `txid, merchant_id, COALESCE(acquirer, ''), COALESCE(external_ref, ''), amount, status,
	fee_percentage::text, fee_fixed, donor_name, donor_document, donor_email, product, tracking, created_at,
	paid_at, report_date`

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const insertTransaction = `INSERT INTO transactions (txid, merchant_id, acquirer, external_ref, amount, status,
	fee_percentage, fee_fixed, donor_name, donor_document, donor_email, product, tracking, created_at, paid_at,
	report_date)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7::text::numeric, $8, $9, $10, $11, $12, $13, $14,
	$15, $16)`

// Create inserts a new ledger row and returns ErrDuplicate when the txid or
// external reference is already present.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	args, err := insertArgs(tx)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, insertTransaction, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

// CreateIfAbsent inserts tx unless a row with the same txid or external
// reference exists. It reports whether a row was inserted.
func (r *TransactionRepository) CreateIfAbsent(ctx context.Context, tx *model.Transaction) (bool, error) {
	args, err := insertArgs(tx)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, insertTransaction+" ON CONFLICT DO NOTHING", args...)
	if err != nil {
		return false, errors.Wrap(err, "insert transaction")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) GetByTxid(ctx context.Context, txid string) (*model.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE txid = $1`, txid)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, notFound(err)
	}
	return tx, nil
}

// ExistsByReference reports whether any ref matches a txid or an external
// reference in the ledger.
func (r *TransactionRepository) ExistsByReference(ctx context.Context, refs ...string) (bool, error) {
	if len(refs) == 0 {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE txid = ANY($1) OR external_ref = ANY($1))`,
		refs).Scan(&exists)
	return exists, err
}

// ListPending returns generated, unsettled transactions newest first.
func (r *TransactionRepository) ListPending(ctx context.Context, limit int) ([]*model.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'generated' AND paid_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// MarkPaid moves a generated transaction to paid. It is safe to call
// concurrently: only one caller observes transitioned == true.
func (r *TransactionRepository) MarkPaid(ctx context.Context, txid string, paidAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status = 'paid', paid_at = $2 WHERE txid = $1 AND status = 'generated'`,
		txid, paidAt)
	if err != nil {
		return false, errors.Wrap(err, "mark transaction paid")
	}
	return r.transitioned(ctx, txid, tag)
}

// MarkExpired moves a generated transaction to expired; paid rows are never touched.
func (r *TransactionRepository) MarkExpired(ctx context.Context, txid string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status = 'expired' WHERE txid = $1 AND status = 'generated'`, txid)
	if err != nil {
		return false, errors.Wrap(err, "mark transaction expired")
	}
	return r.transitioned(ctx, txid, tag)
}

func (r *TransactionRepository) transitioned(ctx context.Context, txid string, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE txid = $1)`, txid).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "lookup transaction")
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func insertArgs(tx *model.Transaction) ([]any, error) {
	tracking, err := json.Marshal(tx.Tracking)
	if err != nil {
		return nil, errors.Wrap(err, "encode tracking")
	}

	return []any{
		tx.Txid, tx.MerchantID, string(tx.Acquirer), tx.ExternalRef, tx.Amount, string(tx.Status),
		tx.FeePercentage.String(), tx.FeeFixed, tx.DonorName, tx.DonorDocument, tx.DonorEmail, tx.Product,
		tracking, tx.CreatedAt, tx.PaidAt, tx.ReportDate,
	}, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	var acquirer, status, feePercentage string
	var tracking []byte

	err := row.Scan(&tx.Txid, &tx.MerchantID, &acquirer, &tx.ExternalRef, &tx.Amount, &status, &feePercentage,
		&tx.FeeFixed, &tx.DonorName, &tx.DonorDocument, &tx.DonorEmail, &tx.Product, &tracking, &tx.CreatedAt,
		&tx.PaidAt, &tx.ReportDate)
	if err != nil {
		return nil, err
	}

	tx.Acquirer = model.Acquirer(acquirer)
	tx.Status = model.Status(status)

	tx.FeePercentage, err = decimal.NewFromString(feePercentage)
	if err != nil {
		return nil, errors.Wrapf(err, "parse fee percentage of %s", tx.Txid)
	}
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &tx.Tracking); err != nil {
			return nil, errors.Wrapf(err, "parse tracking of %s", tx.Txid)
		}
	}
	return &tx, nil
}
