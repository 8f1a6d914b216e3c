package crud

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/schema"
)

func fixedStore(db Querier) *Store {
	s := NewStore(db)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestValidate(t *testing.T) {
	s := fixedStore(nil)
	valid := Input{Name: " Virat Kohli ", Country: "India", Role: "Batsman", DateOfBirth: "1988-11-05"}

	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{"valid", func(*Input) {}, ""},
		{"no dob", func(in *Input) { in.DateOfBirth = "" }, ""},
		{"missing name", func(in *Input) { in.Name = "   " }, "name is required"},
		{"missing country", func(in *Input) { in.Country = "" }, "country is required"},
		{"bad role", func(in *Input) { in.Role = "Umpire" }, "role must be one of"},
		{"hyphenated role", func(in *Input) { in.Role = "Wicket-keeper" }, ""},
		{"bad date", func(in *Input) { in.DateOfBirth = "05/11/1988" }, "must be YYYY-MM-DD"},
		{"too old", func(in *Input) { in.DateOfBirth = "1949-12-31" }, "between 1950-01-01 and today"},
		{"future", func(in *Input) { in.DateOfBirth = "2030-01-01" }, "between 1950-01-01 and today"},
		{"long style", func(in *Input) { in.BattingStyle = strings.Repeat("a", 51) }, "at most 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := s.Validate(context.Background(), &in)
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateTrims(t *testing.T) {
	in := Input{Name: "  Jos Buttler ", Country: " England", Role: "Wicket-keeper ", BowlingStyle: "  "}
	require.NoError(t, fixedStore(nil).Validate(context.Background(), &in))
	assert.Equal(t, "Jos Buttler", in.Name)
	assert.Equal(t, "England", in.Country)
	assert.Equal(t, "Wicket-keeper", in.Role)
	assert.Empty(t, in.BowlingStyle)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CRICKET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRICKET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := config.Config{DatabaseURL: url}
	require.NoError(t, schema.Migrate(ctx, cfg.MigrationURL(), nopLogger()))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, "TRUNCATE "+config.CrudTable+" RESTART IDENTITY")
	require.NoError(t, err)
	return fixedStore(pool)
}

func TestStoreLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, Input{Name: "Virat Kohli", Country: "India", Role: "Batsman", DateOfBirth: "1988-11-05"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	require.NotNil(t, a.DateOfBirth)
	assert.Equal(t, "1988-11-05", *a.DateOfBirth)
	assert.Nil(t, a.BattingStyle)
	assert.NotEmpty(t, a.CreatedAt)

	_, err = s.Create(ctx, Input{Name: "Kane Williamson", Country: "New Zealand", Role: "Captain", BattingStyle: "Right-hand bat"})
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{1, 2}, []int64{all[0].SNo, all[1].SNo})

	found, err := s.List(ctx, "WILL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Kane Williamson", found[0].Name)
	assert.Equal(t, int64(1), found[0].SNo, "numbered within the filtered listing")

	none, err := s.List(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)

	up, err := s.Update(ctx, a.ID, Input{Name: "Virat Kohli", Country: "India", Role: "Captain"})
	require.NoError(t, err)
	assert.Equal(t, "Captain", up.Role)
	assert.Nil(t, up.DateOfBirth, "update replaces every field")

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Captain", got.Role)

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, a.ID), ErrNotFound))

	_, err = s.Update(ctx, 999, Input{Name: "X", Country: "Y", Role: "Bowler"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Create(ctx, Input{Name: "X"})
	assert.True(t, errors.Is(err, ErrInvalid))
}
