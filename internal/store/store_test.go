package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicetypeless.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tm
}

// Scenario S4 — pagination: five sessions created at
// 2025-01-15T10:30:i0:00Z for i=0..4 (oldest first), get_history(limit=2)
// should return [s4, s3] newest-first with a cursor, then the next page
// [s2, s1], then [s0] with no further cursor.
func TestScenarioS4Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 5)

	// i0 seconds means the seconds field is literally "i0": i=0 -> "00",
	// i=1 -> "10", i=2 -> "20", etc.
	times := make([]time.Time, 5)
	for i := 0; i < 5; i++ {
		times[i] = mustParse(t, fmt.Sprintf("2025-01-15T10:30:%d0:00Z", i))
		ids[i] = fmt.Sprintf("s%d", i)
		if err := s.UpsertSession(ctx, Session{
			SessionID: ids[i],
			State:     "idle",
			Mode:      "raw",
			CreatedAt: times[i],
			UpdatedAt: times[i],
		}); err != nil {
			t.Fatalf("UpsertSession(%s): %v", ids[i], err)
		}
	}

	page1, err := s.GetHistory(ctx, 2, nil)
	if err != nil {
		t.Fatalf("GetHistory page1: %v", err)
	}
	if len(page1.Items) != 2 || page1.Items[0].Session.SessionID != "s4" || page1.Items[1].Session.SessionID != "s3" {
		t.Fatalf("page1 = %+v, want [s4, s3]", page1.Items)
	}
	if page1.NextCursor == nil {
		t.Fatal("expected a cursor on page1")
	}

	page2, err := s.GetHistory(ctx, 2, page1.NextCursor)
	if err != nil {
		t.Fatalf("GetHistory page2: %v", err)
	}
	if len(page2.Items) != 2 || page2.Items[0].Session.SessionID != "s2" || page2.Items[1].Session.SessionID != "s1" {
		t.Fatalf("page2 = %+v, want [s2, s1]", page2.Items)
	}
	if page2.NextCursor == nil {
		t.Fatal("expected a cursor on page2")
	}

	page3, err := s.GetHistory(ctx, 2, page2.NextCursor)
	if err != nil {
		t.Fatalf("GetHistory page3: %v", err)
	}
	if len(page3.Items) != 1 || page3.Items[0].Session.SessionID != "s0" {
		t.Fatalf("page3 = %+v, want [s0]", page3.Items)
	}
	if page3.NextCursor != nil {
		t.Error("expected no cursor once all rows are exhausted")
	}
}

// Invariant 4: every history page has len(items) <= limit, and
// next_cursor is present iff further rows exist.
func TestInvariantHistoryPageBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		ts := mustParse(t, fmt.Sprintf("2025-02-01T00:00:%02dZ", i))
		if err := s.UpsertSession(ctx, Session{
			SessionID: fmt.Sprintf("sess-%d", i),
			State:     "idle",
			Mode:      "raw",
			CreatedAt: ts,
			UpdatedAt: ts,
		}); err != nil {
			t.Fatalf("UpsertSession: %v", err)
		}
	}

	limit := 3
	var cursor *string
	seen := 0
	for {
		page, err := s.GetHistory(ctx, limit, cursor)
		if err != nil {
			t.Fatalf("GetHistory: %v", err)
		}
		if len(page.Items) > limit {
			t.Fatalf("page has %d items, want <= %d", len(page.Items), limit)
		}
		seen += len(page.Items)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if seen != 7 {
		t.Errorf("saw %d sessions across pages, want 7", seen)
	}
}

func TestInsertSegmentAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.UpsertSession(ctx, Session{
		SessionID: "sess-1", State: "idle", Mode: "raw", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	if err := s.InsertSegment(ctx, Segment{
		SegmentID: "seg-1", SessionID: "sess-1", RawText: "hello world",
		Confidence: 0.9, CreatedAt: now,
	}); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}

	detail, ok, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !ok {
		t.Fatal("expected session to exist")
	}
	if len(detail.Segments) != 1 || detail.Segments[0].RawText != "hello world" {
		t.Fatalf("segments = %+v", detail.Segments)
	}

	if err := s.SetSegmentRewrittenText(ctx, "seg-1", "Hello, world."); err != nil {
		t.Fatalf("SetSegmentRewrittenText: %v", err)
	}
	detail2, _, _ := s.GetSession(ctx, "sess-1")
	if detail2.Segments[0].RewrittenText == nil || *detail2.Segments[0].RewrittenText != "Hello, world." {
		t.Fatalf("rewritten text = %v, want 'Hello, world.'", detail2.Segments[0].RewrittenText)
	}
}

func TestGetSessionMissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing session")
	}
}

func TestDictionaryUpsertAndListEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertDictionaryEntry(ctx, DictionaryEntry{
		Scope: "global", Pattern: "teh", Replacement: "the", Priority: 0, Enabled: true,
	})
	if err != nil {
		t.Fatalf("UpsertDictionaryEntry: %v", err)
	}
	mode := "tech"
	if _, err := s.UpsertDictionaryEntry(ctx, DictionaryEntry{
		Scope: "mode", Mode: &mode, Pattern: "k8s", Replacement: "Kubernetes", Priority: 5, Enabled: true,
	}); err != nil {
		t.Fatalf("UpsertDictionaryEntry: %v", err)
	}
	if _, err := s.UpsertDictionaryEntry(ctx, DictionaryEntry{
		Scope: "global", Pattern: "disabled-one", Replacement: "x", Enabled: false,
	}); err != nil {
		t.Fatalf("UpsertDictionaryEntry: %v", err)
	}

	entries, err := s.ListEnabledDictionary(ctx, "tech")
	if err != nil {
		t.Fatalf("ListEnabledDictionary: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	// Priority DESC: the mode-scoped "k8s" entry (priority 5) sorts before
	// the global "teh" entry (priority 0).
	if entries[0].Pattern != "k8s" || entries[1].Pattern != "teh" {
		t.Errorf("order = [%s, %s], want [k8s, teh]", entries[0].Pattern, entries[1].Pattern)
	}

	entriesOtherMode, err := s.ListEnabledDictionary(ctx, "minutes")
	if err != nil {
		t.Fatalf("ListEnabledDictionary: %v", err)
	}
	if len(entriesOtherMode) != 1 || entriesOtherMode[0].Pattern != "teh" {
		t.Fatalf("got %+v, want only the global entry", entriesOtherMode)
	}

	// Re-upsert by id updates in place rather than duplicating.
	if _, err := s.UpsertDictionaryEntry(ctx, DictionaryEntry{
		ID: id1, Scope: "global", Pattern: "teh", Replacement: "THE", Priority: 0, Enabled: true,
	}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	all, err := s.ListDictionary(ctx, nil)
	if err != nil {
		t.Fatalf("ListDictionary: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3 (no duplication on upsert)", len(all))
	}
}

func TestDeleteOldSegmentsAndSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := mustParse(t, "2024-01-01T00:00:00Z")
	recent := mustParse(t, "2026-01-01T00:00:00Z")
	cutoff := mustParse(t, "2025-01-01T00:00:00Z")

	if err := s.UpsertSession(ctx, Session{SessionID: "old-empty", State: "idle", Mode: "raw", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSession(ctx, Session{SessionID: "old-with-segment", State: "idle", Mode: "raw", CreatedAt: old, UpdatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSession(ctx, Session{SessionID: "recent", State: "idle", Mode: "raw", CreatedAt: recent, UpdatedAt: recent}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertSegment(ctx, Segment{SegmentID: "seg-old", SessionID: "old-with-segment", CreatedAt: old}); err != nil {
		t.Fatal(err)
	}

	removedSegments, err := s.DeleteOldSegments(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOldSegments: %v", err)
	}
	if removedSegments != 1 {
		t.Errorf("removed %d segments, want 1", removedSegments)
	}

	removedSessions, err := s.DeleteOldSessions(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOldSessions: %v", err)
	}
	if removedSessions != 2 {
		t.Errorf("removed %d sessions, want 2 (both old sessions, now segment-free)", removedSessions)
	}

	if _, ok, _ := s.GetSession(ctx, "recent"); !ok {
		t.Error("recent session should survive cleanup")
	}
}

func TestSettingsLoadDefaultsThenSaveRoundtrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	defaults, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if defaults.DefaultMode != "raw" || defaults.Hotkey != "CmdOrCtrl+Shift+R" {
		t.Errorf("defaults = %+v", defaults)
	}

	updated := defaults
	updated.DefaultMode = "memo"
	updated.RewriteEnabled = true
	updated.SegmentTTLDays = 30
	if err := s.SaveSettings(ctx, updated); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	reloaded, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings after save: %v", err)
	}
	if reloaded.DefaultMode != "memo" || !reloaded.RewriteEnabled || reloaded.SegmentTTLDays != 30 {
		t.Errorf("reloaded = %+v, want DefaultMode=memo RewriteEnabled=true SegmentTTLDays=30", reloaded)
	}
	// Fields the test left unchanged keep their default through the save.
	if reloaded.DefaultDeliver != "clipboard" {
		t.Errorf("DefaultDeliver = %q, want clipboard to survive untouched", reloaded.DefaultDeliver)
	}
}

func TestOpenCreatesParentlessFileAndIsReusable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reuse.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.UpsertSession(context.Background(), Session{
		SessionID: "persisted", State: "idle", Mode: "raw",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file to exist on disk: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer s2.Close()
	if _, ok, err := s2.GetSession(context.Background(), "persisted"); err != nil || !ok {
		t.Fatalf("expected persisted session to survive reopen, ok=%v err=%v", ok, err)
	}
}
