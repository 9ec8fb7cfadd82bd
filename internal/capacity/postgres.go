package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/felicity-events/backend/pkg/database"
)

// Postgres is a Ledger over the capacity_totals and capacity_claims tables. Built on a
// transaction, its claims commit or roll back with the caller's work.
type Postgres struct {
	db database.Tx
}

// NewPostgres returns a ledger over db, which may be a pool or a transaction.
func NewPostgres(db database.Tx) *Postgres {
	return &Postgres{db: db}
}

// TryClaim runs both conditional writes inside a savepoint (or a transaction when bound to
// a pool) and discards them both when either refuses.
func (p *Postgres) TryClaim(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	var res Result
	err := database.InTx(ctx, p.db, func(tx database.Tx) error {
		const claimTotal = `
			INSERT INTO capacity_totals (key, units)
			SELECT $1::text, $2::int WHERE $3::int IS NULL OR $2::int <= $3::int
			ON CONFLICT (key) DO UPDATE
			SET units = capacity_totals.units + EXCLUDED.units
			WHERE $3::int IS NULL OR capacity_totals.units + EXCLUDED.units <= $3::int
			RETURNING units`
		err := tx.QueryRow(ctx, claimTotal, req.Key, req.Units, req.Ceiling).Scan(&res.TotalUnits)
		if database.IsNoRows(err) {
			res.Reason = ReasonCeiling
			return errRejected
		}
		if err != nil {
			return fmt.Errorf("claim total: %w", err)
		}

		const claimOwn = `
			INSERT INTO capacity_claims (key, claimant, units)
			SELECT $1::text, $2::text, $3::int WHERE $4::int IS NULL OR $3::int <= $4::int
			ON CONFLICT (key, claimant) DO UPDATE
			SET units = capacity_claims.units + EXCLUDED.units
			WHERE $4::int IS NULL OR capacity_claims.units + EXCLUDED.units <= $4::int
			RETURNING units`
		err = tx.QueryRow(ctx, claimOwn, req.Key, req.Claimant, req.Units, req.ClaimantCeiling).Scan(&res.ClaimantUnits)
		if database.IsNoRows(err) {
			res.Reason = ReasonClaimantCeiling
			return errRejected
		}
		if err != nil {
			return fmt.Errorf("claim claimant: %w", err)
		}
		res.Accepted = true
		return nil
	})
	if errors.Is(err, errRejected) {
		return p.rejected(ctx, req, res.Reason)
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// rejected reports current counts after a refused claim.
func (p *Postgres) rejected(ctx context.Context, req Request, reason Reason) (Result, error) {
	total, err := p.TotalUnits(ctx, req.Key)
	if err != nil {
		return Result{}, err
	}
	held, err := p.ClaimantUnits(ctx, req.Key, req.Claimant)
	if err != nil {
		return Result{}, err
	}
	return Result{Reason: reason, TotalUnits: total, ClaimantUnits: held}, nil
}

// Release gives back up to units held by claimant. Releasing more than is held releases
// only what is held.
func (p *Postgres) Release(ctx context.Context, key, claimant string, units int) error {
	if units <= 0 {
		return nil
	}
	return database.InTx(ctx, p.db, func(tx database.Tx) error {
		var held int
		err := tx.QueryRow(ctx,
			`SELECT units FROM capacity_claims WHERE key = $1 AND claimant = $2 FOR UPDATE`,
			key, claimant).Scan(&held)
		if database.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock claim: %w", err)
		}
		n := min(units, held)
		if n == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE capacity_claims SET units = units - $3 WHERE key = $1 AND claimant = $2`,
			key, claimant, n); err != nil {
			return fmt.Errorf("release claim: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE capacity_totals SET units = units - $2 WHERE key = $1`, key, n); err != nil {
			return fmt.Errorf("release total: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ClaimantUnits(ctx context.Context, key, claimant string) (int, error) {
	var n int
	err := p.db.QueryRow(ctx,
		`SELECT units FROM capacity_claims WHERE key = $1 AND claimant = $2`, key, claimant).Scan(&n)
	if database.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("claimant units: %w", err)
	}
	return n, nil
}

func (p *Postgres) TotalUnits(ctx context.Context, key string) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT units FROM capacity_totals WHERE key = $1`, key).Scan(&n)
	if database.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("total units: %w", err)
	}
	return n, nil
}

var errRejected = errors.New("capacity: claim rejected")
