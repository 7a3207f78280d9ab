// Package postgres implements the core store on PostgreSQL: one table per
// entity kind, foreign keys for parent links, denormalized counters updated in
// the same transaction as the structural change. Transactions run SERIALIZABLE;
// serialization failures surface as core.ErrStoreConflict so the engines can
// rerun the whole operation.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/the-muppet/nice-rack/internal/core"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New connects a pool and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &tx{tx: pgtx}, nil
}

// mapErr translates serialization failures (40001) and deadlocks (40P01) into
// the sentinel the engines retry on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%s: %w", pgErr.Message, core.ErrStoreConflict)
	}
	return err
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error {
	return mapErr(t.tx.Commit(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (t *tx) CountBoxes(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM boxes").Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (t *tx) Boxes(ctx context.Context) ([]core.Box, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, location, row_count, created_at
		FROM boxes
		ORDER BY id
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Box
	for rows.Next() {
		var b core.Box
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &b.RowCount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan box: %w", err)
		}
		out = append(out, b)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) RowsOf(ctx context.Context, boxID int64) ([]core.Row, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, box_id, ordinal, section_count
		FROM box_rows
		WHERE box_id = $1
		ORDER BY ordinal
	`, boxID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		var r core.Row
		if err := rows.Scan(&r.ID, &r.BoxID, &r.Ordinal, &r.SectionCount); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) SectionsOf(ctx context.Context, rowID int64) ([]core.Section, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, row_id, ordinal, card_count, current_quantity
		FROM sections
		WHERE row_id = $1
		ORDER BY ordinal
	`, rowID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Section
	for rows.Next() {
		var s core.Section
		if err := rows.Scan(&s.ID, &s.RowID, &s.Ordinal, &s.CardCount, &s.CurrentQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) SectionByID(ctx context.Context, id int64) (*core.Section, error) {
	var s core.Section
	err := t.tx.QueryRow(ctx, `
		SELECT id, row_id, ordinal, card_count, current_quantity
		FROM sections
		WHERE id = $1
	`, id).Scan(&s.ID, &s.RowID, &s.Ordinal, &s.CardCount, &s.CurrentQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("section %d not found", id)
		}
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *tx) CardsOf(ctx context.Context, sectionID int64) ([]core.CardRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, section_id, tcg_id, name, set_name, quantity, unit_price
		FROM cards
		WHERE section_id = $1
		ORDER BY id
	`, sectionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return scanCards(rows)
}

func scanCards(rows pgx.Rows) ([]core.CardRecord, error) {
	var out []core.CardRecord
	for rows.Next() {
		var c core.CardRecord
		if err := rows.Scan(&c.ID, &c.SectionID, &c.TCGID, &c.Name, &c.SetName, &c.Quantity, &c.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) CardsByItem(ctx context.Context, tcgID int64) ([]core.PlacedCard, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT c.id, c.section_id, c.tcg_id, c.name, c.set_name, c.quantity, c.unit_price,
		       b.id, b.name, r.id, r.ordinal, s.id, s.ordinal
		FROM cards c
		JOIN sections s ON s.id = c.section_id
		JOIN box_rows r ON r.id = s.row_id
		JOIN boxes b    ON b.id = r.box_id
		WHERE c.tcg_id = $1
		ORDER BY b.id, r.ordinal, s.ordinal, c.id
	`, tcgID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.PlacedCard
	for rows.Next() {
		var pc core.PlacedCard
		if err := rows.Scan(
			&pc.Card.ID, &pc.Card.SectionID, &pc.Card.TCGID, &pc.Card.Name,
			&pc.Card.SetName, &pc.Card.Quantity, &pc.Card.UnitPrice,
			&pc.Path.BoxID, &pc.Path.BoxName,
			&pc.Path.RowID, &pc.Path.RowOrd,
			&pc.Path.SectionID, &pc.Path.SectionOrd,
		); err != nil {
			return nil, fmt.Errorf("failed to scan placed card: %w", err)
		}
		out = append(out, pc)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) StockLevels(ctx context.Context) ([]core.StockLevel, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT tcg_id, MIN(name), MIN(set_name),
		       COALESCE(SUM(quantity), 0), COUNT(*),
		       COALESCE(SUM(quantity * unit_price), 0)
		FROM cards
		GROUP BY tcg_id
		ORDER BY tcg_id
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.StockLevel
	for rows.Next() {
		var lv core.StockLevel
		if err := rows.Scan(&lv.TCGID, &lv.Name, &lv.SetName, &lv.Quantity, &lv.Records, &lv.Value); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		out = append(out, lv)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) CreateBox(ctx context.Context, b *core.Box) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO boxes (name, location, row_count)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, b.Name, b.Location, b.RowCount).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *tx) CreateRow(ctx context.Context, r *core.Row) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO box_rows (box_id, ordinal, section_count)
		VALUES ($1, $2, $3)
		RETURNING id
	`, r.BoxID, r.Ordinal, r.SectionCount).Scan(&r.ID)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *tx) CreateSection(ctx context.Context, s *core.Section) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sections (row_id, ordinal, card_count, current_quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.RowID, s.Ordinal, s.CardCount, s.CurrentQuantity).Scan(&s.ID)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *tx) CreateCard(ctx context.Context, c *core.CardRecord) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cards (section_id, tcg_id, name, set_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.SectionID, c.TCGID, c.Name, c.SetName, c.Quantity, c.UnitPrice).Scan(&c.ID)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *tx) SaveBox(ctx context.Context, b *core.Box) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE boxes SET name = $1, location = $2, row_count = $3 WHERE id = $4
	`, b.Name, b.Location, b.RowCount, b.ID)
	return mapErr(err)
}

func (t *tx) SaveRow(ctx context.Context, r *core.Row) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE box_rows SET section_count = $1 WHERE id = $2
	`, r.SectionCount, r.ID)
	return mapErr(err)
}

func (t *tx) SaveSection(ctx context.Context, s *core.Section) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sections SET card_count = $1, current_quantity = $2 WHERE id = $3
	`, s.CardCount, s.CurrentQuantity, s.ID)
	return mapErr(err)
}

func (t *tx) SaveCard(ctx context.Context, c *core.CardRecord) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE cards SET quantity = $1, unit_price = $2 WHERE id = $3
	`, c.Quantity, c.UnitPrice, c.ID)
	return mapErr(err)
}

func (t *tx) DeleteCard(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, "DELETE FROM cards WHERE id = $1", id)
	return mapErr(err)
}
