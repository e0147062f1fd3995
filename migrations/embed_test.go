package migrations

import (
	"strings"
	"testing"
)

func TestAll_ContainsSchema(t *testing.T) {
	sql, err := All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for _, table := range []string{"disputes", "mediator_assignments", "resolutions", "resolution_params", "chain_head", "balances", "transfers", "outbox", "principals"} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("expected table %s in schema", table)
		}
	}
	if !strings.Contains(sql, "VALUES (1, 43200, 1, 500)") {
		t.Fatalf("expected default params seed")
	}
}
