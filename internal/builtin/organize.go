package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	modeByExtension = "by_extension"
	modeByDate      = "by_date"
)

// organizer moves the top-level files of a folder into sub folders.
type organizer struct {
	source string
	mode   string
	dryRun bool
}

type move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (o *organizer) Configure(_ context.Context, args map[string]any) error {
	o.source, _ = args["source_folder"].(string)
	o.mode, _ = args["mode"].(string)
	if o.mode == "" {
		o.mode = modeByExtension
	}
	o.dryRun = true
	if v, ok := args["dry_run"].(bool); ok {
		o.dryRun = v
	}
	return nil
}

func (o *organizer) Validate(context.Context) error {
	info, err := os.Stat(o.source)
	if err != nil {
		return fmt.Errorf("source folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source folder %s is not a directory", o.source)
	}
	if o.mode != modeByExtension && o.mode != modeByDate {
		return fmt.Errorf("unknown mode %q", o.mode)
	}
	return nil
}

func (o *organizer) Execute(ctx context.Context) (map[string]any, error) {
	moves, err := o.plan()
	if err != nil {
		return nil, err
	}

	var skipped []string
	moved := 0
	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if o.dryRun {
			continue
		}
		if _, err := os.Stat(m.To); err == nil {
			skipped = append(skipped, m.From)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(m.To), 0o750); err != nil {
			return nil, err
		}
		if err := os.Rename(m.From, m.To); err != nil {
			return nil, err
		}
		moved++
	}

	return map[string]any{
		"status": "success",
		"payload": map[string]any{
			"dry_run": o.dryRun,
			"planned": moves,
			"moved":   moved,
			"skipped": skipped,
		},
	}, nil
}

func (o *organizer) plan() ([]move, error) {
	entries, err := os.ReadDir(o.source)
	if err != nil {
		return nil, err
	}

	var moves []move
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		var group string
		switch o.mode {
		case modeByDate:
			group = info.ModTime().Format("2006-01")
		default:
			group = strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name())), ".")
			if group == "" {
				group = "no_extension"
			}
		}

		moves = append(moves, move{
			From: filepath.Join(o.source, e.Name()),
			To:   filepath.Join(o.source, group, e.Name()),
		})
	}

	sort.Slice(moves, func(i, j int) bool { return moves[i].From < moves[j].From })
	return moves, nil
}

func (o *organizer) Close() error { return nil }
