package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	qInsert   = `(?s)^INSERT\s+INTO\s+reset_tokens\s*\(email,\s*token,\s*created_at,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id\s*$`
	qLatest   = `(?s)^SELECT\s+id,\s*email,\s*token,\s*created_at,\s*expires_at,\s*used\s+FROM\s+reset_tokens\s+WHERE\s+email\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+1\s*$`
	qDelete   = `(?s)^DELETE\s+FROM\s+reset_tokens\s+WHERE\s+id\s*=\s*\$1\s*$`
	qMarkUsed = `(?s)^UPDATE\s+reset_tokens\s+SET\s+used\s*=\s*true\s+WHERE\s+id\s*=\s*\$1\s+AND\s+used\s*=\s*false\s*$`
	qExpired  = `(?s)^DELETE\s+FROM\s+reset_tokens\s+WHERE\s+expires_at\s*<=\s*\$1\s*$`
)

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(qInsert).
		WithArgs("a@x.io", "deadbeef", now, now.Add(10*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rs-1"))

	got, err := repo.Create(context.Background(), &models.ResetToken{
		Email: "a@x.io", Token: "deadbeef", CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "rs-1" || got.Used {
		t.Fatalf("unexpected row: %+v", got)
	}

	mock.ExpectQuery(qInsert).WillReturnError(errors.New("duplicate key"))
	_, err = repo.Create(context.Background(), &models.ResetToken{Email: "a@x.io", Token: "deadbeef"})
	if err == nil || !regexp.MustCompile(`db error: .*duplicate key`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindLatestByEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(qLatest).WithArgs("a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "token", "created_at", "expires_at", "used"}).
			AddRow("rs-1", "a@x.io", "tok", now, now.Add(time.Minute), true))

	got, err := repo.FindLatestByEmail(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Used || got.Token != "tok" {
		t.Fatalf("unexpected row: %+v", got)
	}

	mock.ExpectQuery(qLatest).WithArgs("b@x.io").WillReturnError(sql.ErrNoRows)
	if _, err := repo.FindLatestByEmail(context.Background(), "b@x.io"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDeleteAndMarkUsed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qDelete).WithArgs("rs-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), "rs-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(qMarkUsed).WithArgs("rs-2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qMarkUsed).WithArgs("rs-2").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkUsed(context.Background(), "rs-2")
	if err != nil || !ok {
		t.Fatalf("first mark: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkUsed(context.Background(), "rs-2")
	if err != nil || ok {
		t.Fatalf("second mark: ok=%v err=%v", ok, err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(qExpired).WithArgs(now).WillReturnError(errors.New("db err"))

	_, err := repo.DeleteExpired(context.Background(), now)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
