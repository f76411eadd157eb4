package postgres

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

const table = `"public"."notifications"`

func TestBuildSelect(t *testing.T) {
	user := uuid.New().String()
	query, args, err := buildSelect(table, backend.Where(
		backend.Eq("user_id", user),
		backend.Eq("read", false),
	))
	if err != nil {
		t.Fatalf("buildSelect() error: %v", err)
	}

	want := `SELECT * FROM "public"."notifications" WHERE "user_id" = $1 AND "read" = $2`
	if query != want {
		t.Errorf("query = %q\nwant    %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{user, false}) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSelect_NoFilter(t *testing.T) {
	query, args, err := buildSelect(`"public"."microcopy"`, nil)
	if err != nil {
		t.Fatalf("buildSelect() error: %v", err)
	}
	if query != `SELECT * FROM "public"."microcopy"` {
		t.Errorf("query = %q", query)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuildCount(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildCount(`"public"."user_activity"`, backend.Where(backend.Gte("last_activity_at", since)))
	if err != nil {
		t.Fatalf("buildCount() error: %v", err)
	}
	want := `SELECT count(*) FROM "public"."user_activity" WHERE "last_activity_at" >= $1`
	if query != want {
		t.Errorf("query = %q\nwant    %q", query, want)
	}
	if len(args) != 1 || args[0] != since {
		t.Errorf("args = %v", args)
	}
}

func TestWhere_RejectsUnknownOperator(t *testing.T) {
	_, _, err := buildSelect(table, backend.Filter{{Column: "x", Op: "LIKE", Value: "%"}})
	if err == nil {
		t.Error("expected error for unsupported operator")
	}
}

func TestBuildUpdate(t *testing.T) {
	query, args, err := buildUpdate(`"public"."profiles"`, "abc", backend.Row{
		"haptic_enabled":   true,
		"cookies_accepted": false,
		"id":               "ignored",
	})
	if err != nil {
		t.Fatalf("buildUpdate() error: %v", err)
	}
	want := `UPDATE "public"."profiles" SET "cookies_accepted" = $1, "haptic_enabled" = $2 WHERE "id" = $3`
	if query != want {
		t.Errorf("query = %q\nwant    %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{false, true, "abc"}) {
		t.Errorf("args = %v", args)
	}

	if _, _, err := buildUpdate(`"public"."profiles"`, "abc", backend.Row{"id": "x"}); err == nil {
		t.Error("expected error for empty patch")
	}
}

func TestBuildUpsert(t *testing.T) {
	row := backend.Row{
		"user_id":  "u1",
		"endpoint": "https://push.example/1",
		"p256dh":   "k",
		"auth":     "a",
	}

	tests := []struct {
		name     string
		conflict []string
		suffix   string
	}{
		{"plain insert", nil, `VALUES ($1, $2, $3, $4)`},
		{"update on conflict", []string{"endpoint"},
			`ON CONFLICT ("endpoint") DO UPDATE SET "auth" = EXCLUDED."auth", "p256dh" = EXCLUDED."p256dh", "user_id" = EXCLUDED."user_id"`},
		{"nothing left to update", []string{"auth", "endpoint", "p256dh", "user_id"},
			`ON CONFLICT ("auth", "endpoint", "p256dh", "user_id") DO NOTHING`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := buildUpsert(`"public"."push_subscriptions"`, row, tt.conflict)
			if err != nil {
				t.Fatalf("buildUpsert() error: %v", err)
			}
			prefix := `INSERT INTO "public"."push_subscriptions" ("auth", "endpoint", "p256dh", "user_id")`
			if !strings.HasPrefix(query, prefix) {
				t.Errorf("query = %q, want prefix %q", query, prefix)
			}
			if !strings.HasSuffix(query, tt.suffix) {
				t.Errorf("query = %q, want suffix %q", query, tt.suffix)
			}
			if len(args) != 4 || args[0] != "a" || args[3] != "u1" {
				t.Errorf("args = %v", args)
			}
		})
	}

	if _, _, err := buildUpsert(table, row, []string{"missing"}); err == nil {
		t.Error("expected error for conflict column missing from row")
	}
}

func TestIdentifiersAreQuoted(t *testing.T) {
	query, _, err := buildSelect(table, backend.Where(backend.Eq(`x" OR 1=1 --`, 1)))
	if err != nil {
		t.Fatalf("buildSelect() error: %v", err)
	}
	if !strings.Contains(query, `"x"" OR 1=1 --" = $1`) {
		t.Errorf("column not escaped: %q", query)
	}
}

func TestNormalize(t *testing.T) {
	id := uuid.New()
	row := normalize(map[string]any{"id": [16]byte(id), "read": true})
	if row["id"] != id.String() {
		t.Errorf("id = %v, want %s", row["id"], id)
	}
	if row["read"] != true {
		t.Errorf("read = %v", row["read"])
	}
}

func TestChannelNameAndTriggers(t *testing.T) {
	if got := ChannelName("notifications"); got != "realtime:notifications" {
		t.Errorf("ChannelName() = %q", got)
	}

	stmts := TriggerSQL("", "microcopy")
	if len(stmts) != 3 {
		t.Fatalf("TriggerSQL() returned %d statements, want 3", len(stmts))
	}
	if !strings.Contains(stmts[0], `pg_notify('realtime:' || TG_TABLE_NAME, TG_OP)`) {
		t.Errorf("function body missing pg_notify: %s", stmts[0])
	}
	if !strings.Contains(stmts[2], `ON "public"."microcopy"`) {
		t.Errorf("trigger not attached to table: %s", stmts[2])
	}
}
