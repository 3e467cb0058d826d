package output_test

import (
	"bytes"
	"testing"
	"time"

	"todo/internal/output"
	"todo/internal/service"
)

func at(hour int) time.Time {
	return time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)
}

func TestSortForDisplay(t *testing.T) {
	canonical := []service.Task{
		{ID: "d", CreatedAt: at(4), Completed: true},
		{ID: "c", CreatedAt: at(3)},
		{ID: "b", CreatedAt: at(2), Completed: true},
		{ID: "a", CreatedAt: at(1)},
	}

	got := output.SortForDisplay(canonical)

	want := []string{"c", "a", "d", "b"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if canonical[0].ID != "d" {
		t.Error("canonical order must not change")
	}
}

func TestFormatTask(t *testing.T) {
	var buf bytes.Buffer
	output.FormatTask(&buf, 1, service.Task{Title: "Buy milk"})
	output.FormatTask(&buf, 12, service.Task{Title: "Call\nmom", Description: "about sunday", Completed: true})
	output.FormatTask(&buf, 3, service.Task{Title: "  "})

	want := "   1  [ ] Buy milk\n" +
		"  12  [x] Call mom\n" +
		"          about sunday\n" +
		"   3  [ ] (untitled)\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestFormatUser(t *testing.T) {
	var buf bytes.Buffer
	output.FormatUser(&buf, service.User{
		ID:             "u1",
		Email:          "a@b.com",
		CreatedAt:      at(1),
		ProfilePicture: "data:image/png;base64,AAAA",
	}, "2024-06-01T00:00:00Z")

	want := "email:    a@b.com\n" +
		"id:       u1\n" +
		"since:    2024-05-01\n" +
		"picture:  uploaded image/png\n" +
		"session:  expires 2024-06-01T00:00:00Z\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}
