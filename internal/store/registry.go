package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"hydra-waf/internal/auth"
	"hydra-waf/internal/models"
)

// The generic admin surface only ever touches this closed registry; table
// and column names are never taken from the request.
type tableSpec struct {
	pk      string
	columns []string // writable columns, pk excluded
}

var tableRegistry = map[string]tableSpec{
	"user":                    {pk: "user_id", columns: []string{"username", "password_hash", "email", "role"}},
	"waf_log":                 {pk: "wlog_id", columns: []string{"intercepted_req", "wlog_type", "severity", "detection_source"}},
	"alert":                   {pk: "alert_id", columns: []string{"alert_type", "status", "resolved_at", "wlog_id"}},
	"restriction":             {pk: "restriction_id", columns: []string{"restriction_type", "restriction_description"}},
	"signature":               {pk: "signature_id", columns: []string{"signature_type", "signature_content"}},
	"model":                   {pk: "model_id", columns: []string{"model_type", "model_description", "model_threshold"}},
	"patching_report":         {pk: "report_id", columns: []string{"report_details", "wlog_id"}},
	"suspicious_user_profile": {pk: "sus_user_id", columns: []string{"sus_username", "pc_number", "ip_address", "mac_address", "session_cookie", "suspicion_level"}},
	"whitelisted_request":     {pk: "wl_id", columns: []string{"wlog_id", "reason", "user_id"}},
	"sys_log":                 {pk: "slog_id", columns: []string{"message", "restriction_id", "model_id", "signature_id", "user_id", "sus_user_id", "report_id", "wl_id"}},
}

var ErrUnknownTable = errors.New("invalid table name")

// KnownTable reports whether the generic admin surface covers a table.
func KnownTable(name string) bool {
	_, ok := tableRegistry[name]
	return ok
}

// ListTable returns up to 500 rows as generic maps.
func (s *Store) ListTable(ctx context.Context, table string) ([]map[string]interface{}, error) {
	spec, ok := tableRegistry[table]
	if !ok {
		return nil, ErrUnknownTable
	}

	rows, err := s.DB.QueryxContext(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT 500", table, spec.pk))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []map[string]interface{}{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			switch val := v.(type) {
			case []byte:
				row[k] = string(val)
			case time.Time:
				row[k] = val.UTC().Format(time.RFC3339)
			}
		}
		// Never leak password hashes through the admin browser.
		if table == "user" {
			delete(row, "password_hash")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CreateRecord inserts a row from client-supplied fields, keeping only
// registered writable columns. User rows hash their password and validate
// the role before insert.
func (s *Store) CreateRecord(ctx context.Context, table string, data map[string]interface{}, actor auth.Identity) (int64, error) {
	spec, ok := tableRegistry[table]
	if !ok {
		return 0, ErrUnknownTable
	}

	if table == "user" {
		if err := prepareUserFields(data); err != nil {
			return 0, err
		}
	}

	var cols []string
	var args []interface{}
	for _, col := range spec.columns {
		if v, present := data[col]; present {
			cols = append(cols, col)
			args = append(args, v)
		}
	}
	if len(cols) == 0 {
		return 0, errors.New("no writable fields provided")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateErr(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, _ := res.LastInsertId()

	_ = s.AddSysLog(ctx, models.SysLog{
		Message: fmt.Sprintf("Admin %s created %s record %d", actor.Username, table, id),
		UserID:  &actor.UserID,
	})
	return id, nil
}

// UpdateRecord applies client-supplied fields to one row.
func (s *Store) UpdateRecord(ctx context.Context, table string, id int64, data map[string]interface{}, actor auth.Identity) error {
	spec, ok := tableRegistry[table]
	if !ok {
		return ErrUnknownTable
	}

	if table == "user" {
		if err := prepareUserFields(data); err != nil {
			return err
		}
	}

	var sets []string
	var args []interface{}
	for _, col := range spec.columns {
		if v, present := data[col]; present {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return errors.New("no writable fields provided")
	}
	args = append(args, id)

	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), spec.pk),
		args...)
	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_ = s.AddSysLog(ctx, models.SysLog{
		Message: fmt.Sprintf("Admin %s updated %s record %d", actor.Username, table, id),
		UserID:  &actor.UserID,
	})
	return nil
}

var ErrSelfDelete = errors.New("cannot delete your own account")

// DeleteRecord removes one row. An admin cannot delete their own user row.
func (s *Store) DeleteRecord(ctx context.Context, table string, id int64, actor auth.Identity) error {
	spec, ok := tableRegistry[table]
	if !ok {
		return ErrUnknownTable
	}
	if table == "user" && id == actor.UserID {
		return ErrSelfDelete
	}

	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, spec.pk), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_ = s.AddSysLog(ctx, models.SysLog{
		Message: fmt.Sprintf("Admin %s deleted %s record %d", actor.Username, table, id),
		UserID:  &actor.UserID,
	})
	return nil
}

// TableNames lists the registry, sorted, for discovery endpoints and tests.
func TableNames() []string {
	names := make([]string, 0, len(tableRegistry))
	for name := range tableRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// prepareUserFields hashes an incoming plain "password" field and validates
// the role, mutating data in place to match the user table's columns.
func prepareUserFields(data map[string]interface{}) error {
	if pw, ok := data["password"].(string); ok && pw != "" {
		hash, err := auth.HashPassword(pw)
		if err != nil {
			return err
		}
		data["password_hash"] = hash
		delete(data, "password")
	}
	if role, ok := data["role"].(string); ok && !ValidRole(role) {
		return errors.New("invalid role")
	}
	return nil
}
