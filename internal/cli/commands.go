package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/services"
)

// NewEntry interactively creates one entry through a full editing session, so
// the save path is identical to the one autosave uses.
func (a *App) NewEntry(ctx context.Context) error {
	title, err := GetSimpleText(a.reader, "Title (optional)", os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Body", os.Stdout)
	if err != nil {
		return err
	}

	s := a.sessions.CreateDraft(nil)
	defer s.ExitSession()

	s.PatchDraft(func(d *models.Draft) {
		d.Title = title
		d.Body = body
	})

	res := s.Save(ctx)
	switch res.Status {
	case services.SaveStatusSaved:
		printlnFn("Saved", res.Entry.Id)
	case services.SaveStatusEmpty:
		// the session already showed the notice
	default:
		return res.Err
	}
	return nil
}

// List prints all live entries, newest first.
func (a *App) List(ctx context.Context) error {
	list, err := a.entries.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		printlnFn("No entries yet")
		return nil
	}

	for _, e := range list {
		marker := " "
		if !e.Synced {
			marker = "*"
		}
		title := e.Title
		if title == "" {
			title = firstLine(e.Body)
		}
		extra := ""
		if n := len(e.Attachments); n > 0 {
			extra = fmt.Sprintf(" [%d photo(s)]", n)
		}
		printlnFn(fmt.Sprintf("%s %s  %s  %s%s",
			marker, shortID(e.Id), e.EntryDate.Format("2006-01-02"), title, extra))
	}
	return nil
}

// Show prints one entry in full.
func (a *App) Show(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Entry id", os.Stdout)
	if err != nil {
		return err
	}
	e, err := a.findEntry(ctx, id)
	if err != nil {
		return err
	}

	printlnFn("Id:      ", e.Id)
	printlnFn("Date:    ", e.EntryDate.Format("2006-01-02 15:04"))
	printlnFn("Title:   ", e.Title)
	printlnFn("Version: ", e.Version)
	if len(e.Tags) > 0 {
		printlnFn("Tags:    ", strings.Join(e.Tags, ", "))
	}
	if len(e.Mentions) > 0 {
		printlnFn("Mentions:", strings.Join(e.Mentions, ", "))
	}
	if e.Location.IsSet() {
		printlnFn("Place:   ", e.Location.PlaceName)
	}
	printlnFn("")
	printlnFn(e.Body)
	for _, at := range e.Attachments {
		printlnFn(fmt.Sprintf("  photo %s (%dx%d, %s)", at.Id, at.Width, at.Height, at.UploadStatus))
	}
	return nil
}

// Edit opens an editing session over an existing entry; empty input keeps the
// current value.
func (a *App) Edit(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Entry id", os.Stdout)
	if err != nil {
		return err
	}
	e, err := a.findEntry(ctx, id)
	if err != nil {
		return err
	}

	s, err := a.sessions.LoadEntry(ctx, e.Id)
	if err != nil {
		return err
	}
	defer s.ExitSession()
	s.EnterEdit()

	title, err := GetSimpleText(a.reader, fmt.Sprintf("Title [%s]", e.Title), os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Body (empty keeps current)", os.Stdout)
	if err != nil {
		return err
	}

	s.PatchDraft(func(d *models.Draft) {
		if title != "" {
			d.Title = title
		}
		if body != "" {
			d.Body = body
		}
	})

	if !s.Dirty() {
		printlnFn("No changes")
		return nil
	}
	res := s.Save(ctx)
	if res.Status == services.SaveStatusSaved {
		printlnFn("Saved version", res.Entry.Version)
	}
	return res.Err
}

// Remove deletes an entry (tombstoned until the remote confirms).
func (a *App) Remove(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Entry id", os.Stdout)
	if err != nil {
		return err
	}
	e, err := a.findEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := a.entries.Delete(ctx, e.Id); err != nil {
		return err
	}
	printlnFn("Deleted", shortID(e.Id))
	return nil
}

// Sync runs one sync cycle on demand.
func (a *App) Sync(ctx context.Context) error {
	if err := a.channel.SyncOnce(ctx); err != nil {
		printlnFn("Sync failed:", err.Error())
		return err
	}
	printlnFn("Sync complete")
	return nil
}

// findEntry resolves a possibly-shortened identifier against the live list.
func (a *App) findEntry(ctx context.Context, id string) (*models.Entry, error) {
	if e, err := a.entries.Get(ctx, id); err == nil {
		return e, nil
	}
	list, err := a.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if strings.HasPrefix(e.Id, id) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no entry matching %q", id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60] + "…"
	}
	return s
}
