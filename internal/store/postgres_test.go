package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS route_state`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := NewPostgresDB(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresPutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO route_state`).
		WithArgs(KeyActive, `{"id":"route_1"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := NewPostgresDB(db).Put(context.Background(), KeyActive, []byte(`{"id":"route_1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`))
	mock.ExpectQuery(`SELECT value FROM route_state WHERE key`).
		WithArgs(KeyHistory).
		WillReturnRows(rows)

	got, err := NewPostgresDB(db).Get(context.Background(), KeyHistory)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("got %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresGetMissingKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT value FROM route_state WHERE key`).
		WithArgs(KeyActive).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err = NewPostgresDB(db).Get(context.Background(), KeyActive)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresRepositoryLoadActiveEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT value FROM route_state WHERE key`).
		WithArgs(KeyActive).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	active, err := New(NewPostgresDB(db)).LoadActive(context.Background())
	if err != nil || active != nil {
		t.Fatalf("want nil, nil; got %v, %v", active, err)
	}
}

func TestPostgresDeleteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`DELETE FROM route_state WHERE key`).
		WithArgs(KeyActive).
		WillReturnError(sqlmock.ErrCancelled)

	if err := New(NewPostgresDB(db)).ClearActive(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
