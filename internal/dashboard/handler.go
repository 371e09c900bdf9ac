package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/attach"
	"github.com/pacelog/pacelog/internal/repo"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

// SyncData describes a finished family cycle.
type SyncData struct {
	Family      string                `json:"family"`
	Lanes       []pacesync.LaneReport `json:"lanes"`
	ChunksSent  int                   `json:"chunks_sent"`
	ChunksTotal int                   `json:"chunks_total"`
	Synced      int                   `json:"synced"`
	Failed      int                   `json:"failed"`
	ServerWins  int                   `json:"server_wins"`
	Error       string                `json:"error,omitempty"`
	Duration    time.Duration         `json:"duration"`
}

// FailedData lists how many records each lane marked failed.
type FailedData struct {
	Family string         `json:"family"`
	Total  int            `json:"total"`
	ByLane map[string]int `json:"by_lane"`
}

// IconsData describes an icon upload or delete run.
type IconsData struct {
	Operation string        `json:"operation"`
	Queued    int           `json:"queued"`
	Done      int           `json:"done"`
	Deferred  int           `json:"deferred"`
	Dropped   int           `json:"dropped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// StatsData contains the sync status counts.
type StatsData struct {
	Pending     int                     `json:"pending"`
	Failed      int                     `json:"failed"`
	ByEntity    map[string]EntityCounts `json:"by_entity"`
	IconUploads int                     `json:"icon_uploads"`
	IconDeletes int                     `json:"icon_deletes"`
}

// EntityCounts is one entity's row in StatsData.
type EntityCounts struct {
	Synced  int `json:"synced"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

func newStatsData(status *repo.Status) StatsData {
	out := StatsData{
		Pending:     status.Pending(),
		Failed:      status.Failed(),
		ByEntity:    make(map[string]EntityCounts, len(status.Entities)),
		IconUploads: status.IconUploads,
		IconDeletes: status.IconDeletes,
	}
	for _, e := range status.Entities {
		out.ByEntity[e.Entity] = EntityCounts{Synced: e.Synced, Pending: e.Pending, Failed: e.Failed}
	}
	return out
}

// Handler turns sync and icon reports into dashboard messages. It is
// registered as an observer on the sync driver and the icon channel.
type Handler struct {
	server *Server
	logger *zap.SugaredLogger
}

var (
	_ pacesync.Observer = (*Handler)(nil)
	_ attach.Observer   = (*Handler)(nil)
)

// NewHandler creates a handler connected to a dashboard server
func NewHandler(server *Server, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{server: server, logger: logger.Named("dashboard")}
}

// SyncCompleted broadcasts the outcome of a family cycle, the failed
// records if any, and fresh stats.
func (h *Handler) SyncCompleted(report *pacesync.Report) {
	msgType := MessageTypeSyncComplete
	if report.Aborted {
		msgType = MessageTypeSyncAborted
	}
	h.send(msgType, SyncData{
		Family:      report.Family,
		Lanes:       report.Lanes,
		ChunksSent:  report.ChunksSent,
		ChunksTotal: report.ChunksTotal,
		Synced:      report.Synced(),
		Failed:      report.Failed(),
		ServerWins:  report.ServerWins(),
		Error:       report.Error,
		Duration:    report.Duration,
	})

	if failed := report.Failed(); failed > 0 {
		byLane := make(map[string]int)
		for _, l := range report.Lanes {
			if l.Failed > 0 {
				byLane[l.Key] = l.Failed
			}
		}
		h.send(MessageTypeRecordsFailed, FailedData{Family: report.Family, Total: failed, ByLane: byLane})
	}

	h.BroadcastStats(context.Background())
}

// IconsSynced broadcasts the outcome of an icon run and fresh stats.
func (h *Handler) IconsSynced(report *attach.Report) {
	h.send(MessageTypeIconsSynced, IconsData{
		Operation: report.Operation,
		Queued:    report.Queued,
		Done:      report.Done,
		Deferred:  report.Deferred,
		Dropped:   report.Dropped,
		Failed:    report.Failed,
		Duration:  report.Duration,
	})
	h.BroadcastStats(context.Background())
}

// BroadcastStats sends the current status counts to all clients.
func (h *Handler) BroadcastStats(ctx context.Context) {
	h.server.Broadcast(h.server.statsMessage(ctx))
}

func (h *Handler) send(msgType MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("failed to marshal message data", "type", msgType, "error", err)
		return
	}
	h.server.Broadcast(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
