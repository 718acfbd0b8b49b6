package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrMalformedReading is returned by InsertReading when a required field
	// is missing. Nothing is written.
	ErrMalformedReading = errors.New("malformed reading")

	// ErrStoreUnavailable wraps failures of the underlying database. It means
	// the answer is unknown, not that the data is absent.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// timeLayout has fixed-width fractional seconds so stored timestamps sort
// lexically in time order. All timestamps are stored in UTC.
const timeLayout = "2006-01-02 15:04:05.000000"

type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func New(db *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: db, logger: logger}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTimeArg(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return formatTime(t.Time)
}

// dbTime scans DATETIME columns and aggregate results, which the driver may
// hand back either as time.Time or as text.
type dbTime struct {
	t     *time.Time
	valid *bool
}

func scanTime(t *time.Time) dbTime {
	return dbTime{t: t}
}

func scanNullTime(nt *sql.NullTime) dbTime {
	return dbTime{t: &nt.Time, valid: &nt.Valid}
}

func (d dbTime) Scan(v any) error {
	var (
		t   time.Time
		err error
	)
	switch x := v.(type) {
	case nil:
		if d.valid != nil {
			*d.valid = false
			return nil
		}
		return errors.New("scan time: unexpected NULL")
	case time.Time:
		t = x
	case string:
		t, err = parseTime(x)
	case []byte:
		t, err = parseTime(string(x))
	default:
		return fmt.Errorf("scan time: unsupported type %T", v)
	}
	if err != nil {
		return err
	}
	*d.t = t.UTC()
	if d.valid != nil {
		*d.valid = true
	}
	return nil
}

var parseLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("scan time: unrecognised format %q", s)
}
