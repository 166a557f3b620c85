package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediaforge/media-archiver/internal/domain"
)

func writePage(t *testing.T, dir string, page int, content string) {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("page-%d.json", page))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirectoryFeed_Page(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, 12, `[
		{"id": "a1", "primary_url": "http://e/a1.mp4", "cover_url": "http://e/a1.jpg",
		 "metadata": {"title": "first"}},
		{"id": "b2", "primary_url": "http://e/b2.mp4", "cover_url": "http://e/b2.jpg"}
	]`)

	f := NewDirectoryFeed(dir)
	items, err := f.Page(context.Background(), 12)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ID != "a1" || items[0].Page != 12 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].Metadata["title"] != "first" {
		t.Errorf("metadata not carried: %v", items[0].Metadata)
	}
	if items[1].CoverURL != "http://e/b2.jpg" {
		t.Errorf("cover URL = %q", items[1].CoverURL)
	}
}

func TestDirectoryFeed_MissingPageIsEmpty(t *testing.T) {
	f := NewDirectoryFeed(t.TempDir())
	items, err := f.Page(context.Background(), 7)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("missing page yielded %d items", len(items))
	}
}

func TestDirectoryFeed_RejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty id", `[{"id": "", "primary_url": "http://e/x.mp4", "cover_url": "http://e/x.jpg"}]`},
		{"missing primary", `[{"id": "x", "cover_url": "http://e/x.jpg"}]`},
		{"missing cover", `[{"id": "x", "primary_url": "http://e/x.mp4"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writePage(t, dir, 3, tt.content)

			f := NewDirectoryFeed(dir)
			if _, err := f.Page(context.Background(), 3); err == nil {
				t.Fatal("Page() with malformed entry succeeded")
			}
		})
	}
}

func TestPagePlan(t *testing.T) {
	tests := []struct {
		name      string
		startPage int
		count     int
		want      []int
	}{
		{"plain descent", 10, 3, []int{10, 9, 8}},
		{"stops at page one", 2, 5, []int{2, 1}},
		{"start below one", 0, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PagePlan(tt.startPage, tt.count)
			if len(got) != len(tt.want) {
				t.Fatalf("PagePlan() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("PagePlan() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildBatch(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, 5, `[
		{"id": "done", "primary_url": "http://e/done.mp4", "cover_url": "http://e/done.jpg"},
		{"id": "new1", "primary_url": "http://e/new1.mp4", "cover_url": "http://e/new1.jpg"},
		{"id": "bad", "primary_url": "http://e/bad.mp4", "cover_url": "http://e/bad.jpg"}
	]`)
	writePage(t, dir, 4, `[
		{"id": "new2", "primary_url": "http://e/new2.mp4", "cover_url": "http://e/new2.jpg"},
		{"id": "new1", "primary_url": "http://e/dup.mp4", "cover_url": "http://e/dup.jpg"}
	]`)

	state := domain.NewProgressState()
	state.Committed["done"] = struct{}{}
	state.Failed["bad"] = struct{}{}

	f := NewDirectoryFeed(dir)
	batch, skipped, err := BuildBatch(context.Background(), f, state, []int{5, 4}, false)
	if err != nil {
		t.Fatalf("BuildBatch() error = %v", err)
	}

	if len(batch.Items) != 2 {
		t.Fatalf("len(batch.Items) = %d, want 2", len(batch.Items))
	}
	if batch.Items[0].Item.ID != "new1" || batch.Items[1].Item.ID != "new2" {
		t.Errorf("batch order = %s, %s", batch.Items[0].Item.ID, batch.Items[1].Item.ID)
	}
	if batch.Items[0].Position != 0 || batch.Items[1].Position != 1 {
		t.Error("positions not assigned in manifest order")
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if batch.RunID == "" {
		t.Error("RunID not assigned")
	}
	for _, it := range batch.Items {
		if it.Status != domain.ItemStatusPending {
			t.Errorf("item %s status = %s", it.Item.ID, it.Status)
		}
	}
}

func TestBuildBatch_RetryFailed(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, 5, `[{"id": "bad", "primary_url": "http://e/bad.mp4", "cover_url": "http://e/bad.jpg"}]`)

	state := domain.NewProgressState()
	state.Failed["bad"] = struct{}{}

	f := NewDirectoryFeed(dir)
	batch, skipped, err := BuildBatch(context.Background(), f, state, []int{5}, true)
	if err != nil {
		t.Fatalf("BuildBatch() error = %v", err)
	}
	if len(batch.Items) != 1 || skipped != 0 {
		t.Errorf("retry-failed batch: items = %d, skipped = %d", len(batch.Items), skipped)
	}
}
