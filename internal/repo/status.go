package repo

import (
	"context"
	"fmt"

	"github.com/pacelog/pacelog/internal/schema"
)

// EntityStatus counts one record type's rows per sync status. Soft-deleted
// rows are included, since their tombstones still need to sync.
type EntityStatus struct {
	Entity  string `json:"entity" yaml:"entity"`
	Synced  int    `json:"synced" yaml:"synced"`
	Pending int    `json:"pending" yaml:"pending"`
	Failed  int    `json:"failed" yaml:"failed"`
}

// Total returns the number of rows across all statuses.
func (e EntityStatus) Total() int {
	return e.Synced + e.Pending + e.Failed
}

// Status summarizes what is waiting to sync.
type Status struct {
	Entities    []EntityStatus `json:"entities" yaml:"entities"`
	IconUploads int            `json:"iconUploads" yaml:"iconUploads"`
	IconDeletes int            `json:"iconDeletes" yaml:"iconDeletes"`
}

// Pending returns the number of pending records across all entities.
func (s *Status) Pending() int {
	n := 0
	for _, e := range s.Entities {
		n += e.Pending
	}
	return n
}

// Failed returns the number of failed records across all entities.
func (s *Status) Failed() int {
	n := 0
	for _, e := range s.Entities {
		n += e.Failed
	}
	return n
}

// Status counts records per entity and status plus the icon queues.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	out := &Status{}
	for _, c := range s.counters {
		counts, err := c.count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.entity, err)
		}
		out.Entities = append(out.Entities, EntityStatus{
			Entity:  c.entity,
			Synced:  counts[schema.StatusSynced],
			Pending: counts[schema.StatusPending],
			Failed:  counts[schema.StatusFailed],
		})
	}

	blobs, deletes, err := s.iconQueues.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out.IconUploads = blobs
	out.IconDeletes = deletes
	return out, nil
}
