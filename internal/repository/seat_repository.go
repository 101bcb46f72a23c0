package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx so single statements and
// transactional batches share the same code.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// seatDialect holds the statements of one storage layout. Scoped layouts
// end every WHERE clause (and the insert column list) with the flight key
// placeholder, so scope arguments are always appended last.
type seatDialect struct {
	schema      []string
	insert      string
	available   string
	occupant    string
	clear       string
	set         string
	isDuplicate func(error) bool
}

var sqliteSeats = seatDialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS seats (
			seatId TEXT PRIMARY KEY,
			occupant TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS seats_occupant ON seats (occupant)`,
	},
	insert:      `INSERT INTO seats (seatId, occupant) VALUES (?, NULL)`,
	available:   `SELECT seatId FROM seats WHERE occupant IS NULL ORDER BY seatId`,
	occupant:    `SELECT occupant FROM seats WHERE seatId = ?`,
	clear:       `UPDATE seats SET occupant = NULL WHERE occupant = ?`,
	set:         `UPDATE seats SET occupant = ? WHERE seatId = ?`,
	isDuplicate: isSQLiteDuplicate,
}

// SeatRepo is the seat store of a single flight. It has no business rules:
// the seating actor decides when each statement runs.
type SeatRepo struct {
	db      *sql.DB
	dialect seatDialect
	scope   []any
	owned   bool
}

// NewSeatRepo returns a store over a database that belongs to one flight
// only (the per-entity SQLite file). Close closes the database.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db, dialect: sqliteSeats, owned: true}
}

func (r *SeatRepo) args(vals ...any) []any {
	return append(vals, r.scope...)
}

// EnsureSchema creates the seat table if it does not exist yet. It is safe
// to call on every activation.
func (r *SeatRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.dialect.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return storageError("ensure schema", err)
		}
	}
	return nil
}

// InsertSeat inserts one unoccupied seat.
func (r *SeatRepo) InsertSeat(ctx context.Context, seatID string) error {
	return r.insert(ctx, r.db, seatID, -1)
}

// InsertSeats inserts all seats in one transaction. Either every seat is
// stored or none is; a duplicate reports the offending id and its index.
func (r *SeatRepo) InsertSeats(ctx context.Context, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	return r.inTx(ctx, "insert seats", func(tx *sql.Tx) error {
		for i, id := range seatIDs {
			if err := r.insert(ctx, tx, id, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SeatRepo) insert(ctx context.Context, q querier, seatID string, index int) error {
	if _, err := q.ExecContext(ctx, r.dialect.insert, r.args(seatID)...); err != nil {
		if r.dialect.isDuplicate(err) {
			return &DuplicateSeatError{SeatID: seatID, Index: index}
		}
		return storageError("insert seat", err)
	}
	return nil
}

// ListAvailable returns the ids of all seats without an occupant. Every
// call re-reads the table.
func (r *SeatRepo) ListAvailable(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.available, r.args()...)
	if err != nil {
		return nil, storageError("list available", err)
	}
	defer rows.Close()

	seats := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("scan seat", err)
		}
		seats = append(seats, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list available", err)
	}
	return seats, nil
}

// GetOccupant returns the occupant of a seat, nil when the seat is free.
func (r *SeatRepo) GetOccupant(ctx context.Context, seatID string) (*string, error) {
	var occupant sql.NullString
	err := r.db.QueryRowContext(ctx, r.dialect.occupant, r.args(seatID)...).Scan(&occupant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, storageError("get occupant", err)
	}
	if !occupant.Valid {
		return nil, nil
	}
	return &occupant.String, nil
}

// ClearOccupant frees whichever seat the occupant holds. Holding no seat
// is not an error.
func (r *SeatRepo) ClearOccupant(ctx context.Context, occupant string) error {
	return r.clear(ctx, r.db, occupant)
}

// SetOccupant puts the occupant on exactly the given seat.
func (r *SeatRepo) SetOccupant(ctx context.Context, seatID, occupant string) error {
	return r.set(ctx, r.db, seatID, occupant)
}

// MoveOccupant clears the occupant's previous seat and sets the new one in
// a single transaction.
func (r *SeatRepo) MoveOccupant(ctx context.Context, seatID, occupant string) error {
	return r.inTx(ctx, "move occupant", func(tx *sql.Tx) error {
		if err := r.clear(ctx, tx, occupant); err != nil {
			return err
		}
		return r.set(ctx, tx, seatID, occupant)
	})
}

func (r *SeatRepo) clear(ctx context.Context, q querier, occupant string) error {
	if _, err := q.ExecContext(ctx, r.dialect.clear, r.args(occupant)...); err != nil {
		return storageError("clear occupant", err)
	}
	return nil
}

func (r *SeatRepo) set(ctx context.Context, q querier, seatID, occupant string) error {
	res, err := q.ExecContext(ctx, r.dialect.set, r.args(occupant, seatID)...)
	if err != nil {
		return storageError("set occupant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSeatNotFound
	}
	return nil
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (r *SeatRepo) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError(op, err)
	}
	return nil
}

// Close releases the flight's database when the store owns it. Stores over
// a shared pool leave the pool open.
func (r *SeatRepo) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

func isSQLiteDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
