package logger

import "testing"

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{"INSERT INTO ledger_accounts (id) VALUES (?) ON CONFLICT (org_id, kind) DO NOTHING", "INSERT", "ledger_accounts"},
		{"  select id from ledger_transactions where org_id = ?", "SELECT", "ledger_transactions"},
		{"UPDATE ledger_events SET published_at = ?", "UPDATE", "ledger_events"},
		{"PRAGMA foreign_keys", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		if got := operationFromSQL(tc.sql); got != tc.operation {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", tc.sql, got, tc.operation)
		}
		if got := tableFromSQL(tc.sql); got != tc.table {
			t.Fatalf("tableFromSQL(%q) = %q, want %q", tc.sql, got, tc.table)
		}
	}
}
