// Package backup exports the local store to JSONL and restores it.
//
// Each line holds one record:
//
//	{"entity":"activities","record":{...}}
//
// Records are written parents first (activities before their kinds, goals
// and logs). Soft-deleted records are not exported. Imported records are
// stored as synced copies of the server's data, the same way records
// pulled from the server are.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

// Entities lists the entity names in write order.
var Entities = []string{"activities", "activityKinds", "goals", "tasks", "activityLogs"}

type line struct {
	Entity string          `json:"entity"`
	Record json.RawMessage `json:"record"`
}

// Counts maps an entity name to a number of records.
type Counts map[string]int

// Total returns the sum over all entities.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Export writes every live record of store to w.
func Export(ctx context.Context, store *repo.Store, w io.Writer) (Counts, error) {
	bw := bufio.NewWriter(w)
	e := &exporter{enc: json.NewEncoder(bw), counts: Counts{}}

	if err := writeAll(ctx, e, "activities", store.Activities.GetAll); err != nil {
		return nil, err
	}
	if err := writeAll(ctx, e, "activityKinds", store.ActivityKinds.GetAll); err != nil {
		return nil, err
	}
	if err := writeAll(ctx, e, "goals", store.Goals.GetAll); err != nil {
		return nil, err
	}
	if err := writeAll(ctx, e, "tasks", store.Tasks.GetAll); err != nil {
		return nil, err
	}
	if err := writeAll(ctx, e, "activityLogs", store.ActivityLogs.GetAll); err != nil {
		return nil, err
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return e.counts, nil
}

type exporter struct {
	enc    *json.Encoder
	counts Counts
}

func writeAll[T any](ctx context.Context, e *exporter, entity string, getAll func(context.Context) ([]schema.Syncable[T], error)) error {
	rows, err := getAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", entity, err)
	}
	for _, rec := range schema.Payloads(rows) {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", entity, err)
		}
		if err := e.enc.Encode(line{Entity: entity, Record: raw}); err != nil {
			return fmt.Errorf("failed to write %s record: %w", entity, err)
		}
	}
	e.counts[entity] = len(rows)
	return nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// DryRun parses and validates without writing.
	DryRun bool
}

// batch holds the decoded records of one import.
type batch struct {
	activities []schema.Activity
	kinds      []schema.ActivityKind
	goals      []schema.Goal
	tasks      []schema.Task
	logs       []schema.ActivityLog
}

// Import reads a JSONL export from r and stores its records as synced.
// Nothing is written if any line is invalid.
func Import(ctx context.Context, store *repo.Store, r io.Reader, opts ImportOptions) (Counts, error) {
	var b batch
	counts := Counts{}

	dec := json.NewDecoder(r)
	for lineNum := 1; ; lineNum++ {
		var l line
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		var err error
		switch l.Entity {
		case "activities":
			b.activities, err = appendRecord[schema.Activity](b.activities, l.Record)
		case "activityKinds":
			b.kinds, err = appendRecord[schema.ActivityKind](b.kinds, l.Record)
		case "goals":
			b.goals, err = appendRecord[schema.Goal](b.goals, l.Record)
		case "tasks":
			b.tasks, err = appendRecord[schema.Task](b.tasks, l.Record)
		case "activityLogs":
			b.logs, err = appendRecord[schema.ActivityLog](b.logs, l.Record)
		default:
			err = fmt.Errorf("unknown entity %q", l.Entity)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		counts[l.Entity]++
	}

	if opts.DryRun {
		return counts, nil
	}

	if err := store.Activities.UpsertFromServer(ctx, b.activities); err != nil {
		return nil, err
	}
	if err := store.ActivityKinds.UpsertFromServer(ctx, b.kinds); err != nil {
		return nil, err
	}
	if err := store.Goals.UpsertFromServer(ctx, b.goals); err != nil {
		return nil, err
	}
	if err := store.Tasks.UpsertFromServer(ctx, b.tasks); err != nil {
		return nil, err
	}
	if err := store.ActivityLogs.UpsertFromServer(ctx, b.logs); err != nil {
		return nil, err
	}
	return counts, nil
}

func appendRecord[T any, P interface {
	*T
	Validate() error
}](list []T, raw json.RawMessage) ([]T, error) {
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return list, err
	}
	if err := P(&rec).Validate(); err != nil {
		return list, err
	}
	return append(list, rec), nil
}
