// Package crud manages the crud_info side table: free-standing player
// records operators create and edit by hand. Nothing here touches the
// analytics schema.
package crud

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/cricket-livestats/internal/config"
)

var (
	ErrNotFound = errors.New("crud: record not found")
	ErrInvalid  = errors.New("crud: invalid input")
)

// Roles accepted for a record.
var Roles = []string{"Batsman", "Bowler", "All-rounder", "Wicket-keeper", "Captain"}

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Input is the writable part of a record.
type Input struct {
	Name         string `json:"name" validate:"required,max=120"`
	Country      string `json:"country" validate:"required,max=80"`
	Role         string `json:"role" validate:"required,oneof='Batsman' 'Bowler' 'All-rounder' 'Wicket-keeper' 'Captain'"`
	BattingStyle string `json:"batting_style" validate:"max=50"`
	BowlingStyle string `json:"bowling_style" validate:"max=50"`
	DateOfBirth  string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02,dob"`
}

// Record is one crud_info row. SNo is the 1-based position in a listing.
type Record struct {
	SNo          int64   `json:"sno,omitempty" db:"sno"`
	ID           int64   `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Country      string  `json:"country" db:"country"`
	Role         string  `json:"role" db:"role"`
	BattingStyle *string `json:"batting_style" db:"batting_style"`
	BowlingStyle *string `json:"bowling_style" db:"bowling_style"`
	DateOfBirth  *string `json:"date_of_birth" db:"date_of_birth"`
	CreatedAt    string  `json:"created_at" db:"created_at"`
}

// earliestDOB bounds date_of_birth from below.
var earliestDOB = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

// Store reads and writes crud_info.
type Store struct {
	db       Querier
	validate *validator.Validate
	now      func() time.Time
}

// NewStore creates a Store over db.
func NewStore(db Querier) *Store {
	s := &Store{db: db, validate: validator.New(), now: time.Now}
	s.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = s.validate.RegisterValidation("dob", s.validDOB)
	return s
}

func (s *Store) validDOB(fl validator.FieldLevel) bool {
	d, err := time.Parse(time.DateOnly, fl.Field().String())
	if err != nil {
		return false
	}
	return !d.Before(earliestDOB) && !d.After(s.now())
}

// Validate trims in and checks it.
func (s *Store) Validate(ctx context.Context, in *Input) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Country = strings.TrimSpace(in.Country)
	in.Role = strings.TrimSpace(in.Role)
	in.BattingStyle = strings.TrimSpace(in.BattingStyle)
	in.BowlingStyle = strings.TrimSpace(in.BowlingStyle)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)

	if err := s.validate.StructCtx(ctx, in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.Mark(errors.Newf("%s", strings.Join(msgs, "; ")), ErrInvalid)
		}
		return errors.Mark(err, ErrInvalid)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of " + strings.Join(Roles, ", ")
	case "datetime":
		return field + " must be YYYY-MM-DD"
	case "dob":
		return field + " must be between 1950-01-01 and today"
	default:
		return field + " is invalid"
	}
}

const selectCols = `
	id, name, country, role, batting_style, bowling_style,
	to_char(date_of_birth, 'YYYY-MM-DD') AS date_of_birth,
	to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') AS created_at`

// Create inserts a record and returns it.
func (s *Store) Create(ctx context.Context, in Input) (*Record, error) {
	if err := s.Validate(ctx, &in); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		INSERT INTO `+config.CrudTable+` (name, country, role, batting_style, bowling_style, date_of_birth)
		VALUES ($1,$2,$3,$4,$5,$6::date)
		RETURNING 0::bigint AS sno,`+selectCols,
		in.Name, in.Country, in.Role, nilEmpty(in.BattingStyle), nilEmpty(in.BowlingStyle), nilEmpty(in.DateOfBirth),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create record")
	}
	return collectOne(rows)
}

// List returns records in id order, numbered from 1. A non-empty search
// keeps names containing it, case-insensitively.
func (s *Store) List(ctx context.Context, search string) ([]Record, error) {
	sql := `SELECT ROW_NUMBER() OVER (ORDER BY id) AS sno,` + selectCols + ` FROM ` + config.CrudTable
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		sql += ` WHERE name ILIKE $1`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	sql += ` ORDER BY id`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[Record])
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	rows, err := s.db.Query(ctx, `SELECT 0::bigint AS sno,`+selectCols+` FROM `+config.CrudTable+` WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get record %d", id)
	}
	return collectOne(rows)
}

// Update replaces every writable field of a record.
func (s *Store) Update(ctx context.Context, id int64, in Input) (*Record, error) {
	if err := s.Validate(ctx, &in); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		UPDATE `+config.CrudTable+` SET
			name = $2, country = $3, role = $4,
			batting_style = $5, bowling_style = $6, date_of_birth = $7::date
		WHERE id = $1
		RETURNING 0::bigint AS sno,`+selectCols,
		id, in.Name, in.Country, in.Role, nilEmpty(in.BattingStyle), nilEmpty(in.BowlingStyle), nilEmpty(in.DateOfBirth),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update record %d", id)
	}
	return collectOne(rows)
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+config.CrudTable+` WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete record %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectOne(rows pgx.Rows) (*Record, error) {
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Record])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
