package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// erDupEntry is MySQL's "Duplicate entry for key" error number.
const erDupEntry = 1062

// flight_seats keeps the seats of every flight in one MySQL table. Rows are
// only ever addressed together with their flight_key, so each flight still
// sees a private seat table.
var mysqlSeats = seatDialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS flight_seats (
			flight_key VARCHAR(191) NOT NULL,
			seat_id    VARCHAR(64)  NOT NULL,
			occupant   VARCHAR(191) NULL,
			PRIMARY KEY (flight_key, seat_id),
			UNIQUE KEY uq_flight_seats_occupant (flight_key, occupant)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	insert:      `INSERT INTO flight_seats (seat_id, occupant, flight_key) VALUES (?, NULL, ?)`,
	available:   `SELECT seat_id FROM flight_seats WHERE occupant IS NULL AND flight_key = ? ORDER BY seat_id`,
	occupant:    `SELECT occupant FROM flight_seats WHERE seat_id = ? AND flight_key = ?`,
	clear:       `UPDATE flight_seats SET occupant = NULL WHERE occupant = ? AND flight_key = ?`,
	set:         `UPDATE flight_seats SET occupant = ? WHERE seat_id = ? AND flight_key = ?`,
	isDuplicate: isMySQLDuplicate,
}

// NewFlightSeatRepo returns a store for one flight over the shared MySQL
// pool. The pool must be opened with clientFoundRows so that SetOccupant
// counts matched rows rather than changed rows.
func NewFlightSeatRepo(db *sql.DB, flightKey string) *SeatRepo {
	return &SeatRepo{db: db, dialect: mysqlSeats, scope: []any{flightKey}}
}

func isMySQLDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
