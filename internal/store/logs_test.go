package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"hydra-waf/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestCategoryFromReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"SIG:SQLI_UNION_SELECT", "SQLi"},
		{"SIG:XSS_SCRIPT_TAG", "XSS"},
		{"SIG:CMD_INJECTION", "Command Injection"},
		{"SIG:PATH_TRAVERSAL", "Path Traversal"},
		{"SIG:LFI_ETC_PASSWD", "Path Traversal"},
		{"SIG:CSRF_NULL_ORIGIN", "CSRF"},
		{"SIG:SSRF_METADATA", "SSRF"},
		{"SIG:CUSTOM_42", "CUSTOM_42"},
		{"ML:0.91 (very high)", "ML Detected"},
		{"ML:0.72 (high)", "ML Detected"},
		{"", "Unknown"},
		{"something else", "Unknown"},
	}
	for _, tt := range tests {
		if got := CategoryFromReason(tt.reason); got != tt.want {
			t.Errorf("CategoryFromReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestIngestTransactional(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO waf_log").
		WithArgs("/api/items?id=1 OR 1=1 ", "SQLi", "High", "Signature").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO alert").
		WithArgs("SIG:SQLI_OR_TRUE", int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sys_log").
		WithArgs("Ingested High severity WAF log: SQLi").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := s.Ingest(context.Background(), models.IngestEvent{
		Record: models.Record{
			URL:     "/api/items?id=1 OR 1=1",
			Verdict: models.VerdictBlocked,
			Reason:  "SIG:SQLI_OR_TRUE",
		},
		Severity:        "High",
		DetectionSource: "Signature",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if id != 7 {
		t.Errorf("wlog id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIngestSafeVerdictSkipsAlert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO waf_log").
		WillReturnResult(sqlmock.NewResult(3, 1))
	// no alert insert for a logged verdict
	mock.ExpectExec("INSERT INTO sys_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := s.Ingest(context.Background(), models.IngestEvent{
		Record: models.Record{URL: "/search?q=x", Verdict: models.VerdictLogged, Reason: "ML:0.35 (low)"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIngestRollsBackOnAlertFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO waf_log").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec("INSERT INTO alert").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := s.Ingest(context.Background(), models.IngestEvent{
		Record: models.Record{URL: "/x", Verdict: models.VerdictBlocked, Reason: "SIG:XSS_SCRIPT_TAG"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCheckAlertNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE alert SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CheckAlert(context.Background(), 999, 1, "admin")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
