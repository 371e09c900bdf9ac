// Package schema defines the records pacelog keeps in its local store and
// exchanges with the remote server.
//
// # Records
//
// Five record types are synchronized: Activity, ActivityKind, ActivityLog,
// Goal and Task. Each embeds Meta:
//
//	{
//	  "id": "0191d6c8-7c1e-7b3a-9a53-2f1c3e0c9d10",
//	  "createdAt": "2026-01-10T07:36:29.000Z",
//	  "updatedAt": "2026-01-10T07:36:29.000Z",
//	  "deletedAt": null
//	}
//
// ids are UUIDv7 so they sort by creation time. deletedAt marks a soft
// delete; the row stays in the local store until the server has seen the
// tombstone.
//
// # Sync status
//
// The local store wraps every record in a Syncable, which adds the record's
// SyncStatus (synced, pending or failed). The server never sees the status:
// the only way to build an outbound payload is Payloads, which returns the
// bare records.
//
//	rows, _ := activities.GetPendingSync(ctx)
//	body := map[string]any{"activities": schema.Payloads(rows)}
//
// # New, persisted and patched records
//
// Inputs to create a record are the NewX types (no id, no timestamps).
// The repository turns a NewX into an X when it assigns the id and
// timestamps. Partial updates use XPatch types, where a nil field is left
// unchanged.
package schema
