package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"hydra-waf/internal/auth"
)

var admin = auth.Identity{UserID: 1, Username: "admin", Role: "admin"}

func TestRegistryUnknownTable(t *testing.T) {
	s, _ := newMockStore(t)
	ctx := context.Background()

	if _, err := s.ListTable(ctx, "users; DROP TABLE user"); err != ErrUnknownTable {
		t.Errorf("ListTable err = %v, want ErrUnknownTable", err)
	}
	if _, err := s.CreateRecord(ctx, "nope", nil, admin); err != ErrUnknownTable {
		t.Errorf("CreateRecord err = %v, want ErrUnknownTable", err)
	}
	if err := s.DeleteRecord(ctx, "nope", 1, admin); err != ErrUnknownTable {
		t.Errorf("DeleteRecord err = %v, want ErrUnknownTable", err)
	}
}

func TestTableNamesCoversAllEntities(t *testing.T) {
	names := TableNames()
	if len(names) != 10 {
		t.Fatalf("registry has %d tables, want 10", len(names))
	}
	for _, required := range []string{"user", "waf_log", "alert", "restriction", "signature",
		"model", "patching_report", "suspicious_user_profile", "whitelisted_request", "sys_log"} {
		if !KnownTable(required) {
			t.Errorf("registry missing table %q", required)
		}
	}
}

func TestDeleteRecordPreventsSelfDelete(t *testing.T) {
	s, _ := newMockStore(t)

	err := s.DeleteRecord(context.Background(), "user", admin.UserID, admin)
	if err != ErrSelfDelete {
		t.Errorf("err = %v, want ErrSelfDelete", err)
	}
}

func TestCreateRecordIgnoresUnregisteredColumns(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO restriction").
		WithArgs("ip", "10.0.0.1").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec("INSERT INTO sys_log").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := s.CreateRecord(context.Background(), "restriction", map[string]interface{}{
		"restriction_type":        "ip",
		"restriction_description": "10.0.0.1",
		"restriction_id":          99, // pk, must be ignored
		"evil_column":             "x",
	}, admin)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if id != 5 {
		t.Errorf("id = %d, want 5", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateUserRecordHashesPassword(t *testing.T) {
	s, mock := newMockStore(t)

	var gotHash string
	mock.ExpectExec("INSERT INTO user").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO sys_log").
		WillReturnResult(sqlmock.NewResult(1, 1))

	data := map[string]interface{}{
		"username": "analyst1",
		"email":    "a@example.com",
		"role":     "analyst",
		"password": "hunter22",
	}
	if _, err := s.CreateRecord(context.Background(), "user", data, admin); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	gotHash, _ = data["password_hash"].(string)
	if gotHash == "" || gotHash == "hunter22" {
		t.Errorf("password was not hashed: %q", gotHash)
	}
	if !auth.CheckPassword(gotHash, "hunter22") {
		t.Error("hash does not verify against original password")
	}
	if _, still := data["password"]; still {
		t.Error("plain password field was not removed")
	}
}

func TestCreateUserRecordRejectsBadRole(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.CreateRecord(context.Background(), "user", map[string]interface{}{
		"username": "x", "email": "x@x", "role": "superadmin", "password": "p",
	}, admin)
	if err == nil {
		t.Fatal("expected role validation error")
	}
}

func TestUpdateRecordNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE restriction SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateRecord(context.Background(), "restriction", 404,
		map[string]interface{}{"restriction_description": "1.2.3.4"}, admin)
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
