package repositories

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var errDB = errors.New("db error")

var testPlayerUUID = uuid.MustParse("6f1c1d4e-8a51-4c1b-9d0e-3b2a1f0c9e8d")

func newPlayerRepo(t *testing.T) (*PlayerRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPlayerRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// CreatePlayer
// ---------------------------------------------------------------------------

func TestCreatePlayer_Success(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO players").
		WithArgs(sqlmock.AnyArg(), "Lynix").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int32(42)))
	mock.ExpectExec("INSERT INTO player_tokens").
		WithArgs("tok", int32(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.CreatePlayer(context.Background(), testPlayerUUID, "Lynix", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreatePlayer_TokenInsertFailsRollsBack(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO players").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int32(1)))
	mock.ExpectExec("INSERT INTO player_tokens").WillReturnError(errDB)
	mock.ExpectRollback()

	_, err := repo.CreatePlayer(context.Background(), testPlayerUUID, "Lynix", "tok")
	if !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want wrapped errDB", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreatePlayer_PlayerInsertFails(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO players").WillReturnError(errDB)
	mock.ExpectRollback()

	if _, err := repo.CreatePlayer(context.Background(), testPlayerUUID, "Lynix", "tok"); !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want wrapped errDB", err)
	}
}

func TestCreatePlayer_BeginFails(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectBegin().WillReturnError(errDB)

	if _, err := repo.CreatePlayer(context.Background(), testPlayerUUID, "Lynix", "tok"); !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want wrapped errDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetPlayerToken
// ---------------------------------------------------------------------------

func TestGetPlayerToken_Found(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectQuery("SELECT player_id FROM player_tokens WHERE token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"player_id"}).AddRow(int32(7)))

	pt, err := repo.GetPlayerToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt == nil || pt.PlayerID != 7 || pt.Token != "tok" {
		t.Errorf("token = %+v, want player 7", pt)
	}
}

func TestGetPlayerToken_NotFound(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectQuery("SELECT player_id FROM player_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"player_id"}))

	pt, err := repo.GetPlayerToken(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt != nil {
		t.Errorf("expected nil, got %+v", pt)
	}
}

func TestGetPlayerToken_DBError(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectQuery("SELECT player_id FROM player_tokens").WillReturnError(errDB)

	if _, err := repo.GetPlayerToken(context.Background(), "tok"); !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want errDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetPlayerByID
// ---------------------------------------------------------------------------

func TestGetPlayerByID_Found(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectQuery("SELECT uuid, nickname FROM players WHERE id").
		WithArgs(int32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "nickname"}).AddRow(testPlayerUUID.String(), "Lynix"))

	p, err := repo.GetPlayerByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected player, got nil")
	}
	if p.ID != 7 || p.UUID != testPlayerUUID || p.Nickname != "Lynix" {
		t.Errorf("player = %+v", p)
	}
}

func TestGetPlayerByID_NotFound(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectQuery("SELECT uuid, nickname FROM players").
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "nickname"}))

	p, err := repo.GetPlayerByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

// ---------------------------------------------------------------------------
// UpdateLastConnection
// ---------------------------------------------------------------------------

func TestUpdateLastConnection(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectExec("UPDATE players SET last_connection_time = NOW\\(\\) WHERE id").
		WithArgs(int32(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLastConnection(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateLastConnection_DBError(t *testing.T) {
	repo, mock := newPlayerRepo(t)
	mock.ExpectExec("UPDATE players").WillReturnError(errDB)

	if err := repo.UpdateLastConnection(context.Background(), 7); !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want errDB", err)
	}
}
