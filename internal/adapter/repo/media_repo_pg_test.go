package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubExecutor struct {
	queries  []string
	args     [][]any
	affected int64
	rows     map[string]stubRow
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(s.affected, 10)), nil
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return s.rows[query]
}

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func mediaRow(id int64, isProxy bool) stubRow {
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = id
		*dest[1].(*string) = "image"
		*dest[3].(*string) = "/generated/x.png"
		*dest[8].(*bool) = isProxy
		*dest[10].(*time.Time) = time.Unix(1700000000, 0)
		return nil
	}}
}

func TestPGInsertAssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &stubExecutor{rows: map[string]stubRow{
		sqlinline.QInsertMedia: {scan: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		}},
	}}
	repo := NewMediaRepositoryPG(db, func() time.Time { return now })

	item := domain.MediaItem{Kind: domain.MediaKindImage, Locator: "/generated/a.png", Prompt: "p"}
	if err := repo.Insert(context.Background(), &item); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if item.ID != 42 || !item.CreatedAt.Equal(now) {
		t.Fatalf("Insert assigned id=%d created=%s", item.ID, item.CreatedAt)
	}
	if !strings.HasPrefix(db.queries[0], "--sql ") {
		t.Fatalf("query missing audit marker")
	}
	if got, ok := db.args[0][9].(time.Time); !ok || !got.Equal(now) {
		t.Fatalf("created_at arg = %v, want %v", got, now)
	}
}

func TestPGInsertExplainsRejectedParent(t *testing.T) {
	parent := int64(5)
	tests := []struct {
		name   string
		lookup stubRow
		want   error
	}{
		{name: "missing parent", lookup: stubRow{}, want: domain.ErrNotFound},
		{name: "proxy parent", lookup: mediaRow(5, true), want: domain.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &stubExecutor{rows: map[string]stubRow{
				sqlinline.QInsertMedia:     {},
				sqlinline.QSelectMediaByID: tc.lookup,
			}}
			repo := NewMediaRepositoryPG(db, nil)
			item := domain.MediaItem{Kind: domain.MediaKindImage, Locator: "/generated/a.png", IsProxy: true, ParentID: &parent}
			if err := repo.Insert(context.Background(), &item); !errors.Is(err, tc.want) {
				t.Fatalf("Insert err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPGDeleteUsesModeQuery(t *testing.T) {
	db := &stubExecutor{affected: 3}
	repo := NewMediaRepositoryPG(db, nil)

	if err := repo.Delete(context.Background(), 1, domain.DeleteCascade); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if db.queries[0] != sqlinline.QDeleteMediaCascade {
		t.Fatalf("cascade delete used wrong statement")
	}
	if err := repo.Delete(context.Background(), 1, domain.DeleteDetach); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if db.queries[1] != sqlinline.QDeleteMedia {
		t.Fatalf("detach delete used wrong statement")
	}
}

func TestPGSetFavoriteMissingRow(t *testing.T) {
	repo := NewMediaRepositoryPG(&stubExecutor{affected: 0}, nil)
	if err := repo.SetFavorite(context.Background(), 9, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetFavorite err = %v, want ErrNotFound", err)
	}
}

func TestPGDuplicateProxyRejected(t *testing.T) {
	db := &stubExecutor{rows: map[string]stubRow{
		sqlinline.QDuplicateMedia:  {},
		sqlinline.QSelectMediaByID: mediaRow(8, true),
	}}
	repo := NewMediaRepositoryPG(db, nil)
	if _, err := repo.Duplicate(context.Background(), 8); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("Duplicate err = %v, want ErrInvalidRequest", err)
	}
}
