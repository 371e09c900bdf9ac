// Package loadtest measures batch sync against an in-process server.
//
// A fresh store is seeded with pending records, a fake batch server
// answers every chunk, and the latency of each chunk request is recorded.
// Families can run one after another (like SyncAll) or all at once.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

// Plan sets how many records Seed creates.
type Plan struct {
	Activities       int
	KindsPerActivity int
	LogsPerActivity  int
	GoalsPerActivity int
	Tasks            int
}

// DefaultPlan is a mid-sized account: a few thousand records, enough to
// need several chunks in every family.
func DefaultPlan() Plan {
	return Plan{
		Activities:       150,
		KindsPerActivity: 4,
		LogsPerActivity:  20,
		GoalsPerActivity: 1,
		Tasks:            250,
	}
}

// Total returns the number of records the plan creates.
func (p Plan) Total() int {
	per := 1 + p.KindsPerActivity + p.LogsPerActivity + p.GoalsPerActivity
	return p.Activities*per + p.Tasks
}

// Seed creates the planned records through the repositories, so every
// record starts pending.
func Seed(ctx context.Context, store *repo.Store, plan Plan) error {
	// Deterministic so runs are comparable.
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < plan.Activities; i++ {
		activity, err := store.Activities.Create(ctx, schema.NewActivity{
			Name:         fmt.Sprintf("Activity %d", i),
			Emoji:        "🏃",
			IconType:     schema.IconEmoji,
			QuantityUnit: "min",
			OrderIndex:   fmt.Sprintf("a%05d", i),
		})
		if err != nil {
			return fmt.Errorf("failed to create activity %d: %w", i, err)
		}

		for k := 0; k < plan.KindsPerActivity; k++ {
			if _, err := store.ActivityKinds.Create(ctx, schema.NewActivityKind{
				ActivityID: activity.ID,
				Name:       fmt.Sprintf("Kind %d", k),
				OrderIndex: fmt.Sprintf("k%03d", k),
			}); err != nil {
				return fmt.Errorf("failed to create kind for activity %d: %w", i, err)
			}
		}

		for l := 0; l < plan.LogsPerActivity; l++ {
			q := float64(rng.Intn(60))
			if _, err := store.ActivityLogs.Create(ctx, schema.NewActivityLog{
				ActivityID: activity.ID,
				Quantity:   &q,
				Date:       base.AddDate(0, 0, rng.Intn(90)).Format(schema.DateLayout),
			}); err != nil {
				return fmt.Errorf("failed to create log for activity %d: %w", i, err)
			}
		}

		for g := 0; g < plan.GoalsPerActivity; g++ {
			if _, err := store.Goals.Create(ctx, schema.NewGoal{
				ActivityID:          activity.ID,
				DailyTargetQuantity: float64(10 + rng.Intn(50)),
				StartDate:           base.Format(schema.DateLayout),
			}); err != nil {
				return fmt.Errorf("failed to create goal for activity %d: %w", i, err)
			}
		}
	}

	for i := 0; i < plan.Tasks; i++ {
		if _, err := store.Tasks.Create(ctx, schema.NewTask{Title: fmt.Sprintf("Task %d", i)}); err != nil {
			return fmt.Errorf("failed to create task %d: %w", i, err)
		}
	}
	return nil
}

// ServerOptions shapes the fake server's answers.
type ServerOptions struct {
	// Latency is added to every request.
	Latency time.Duration
	// SkipEvery skips every n-th record of a lane. Zero accepts everything.
	SkipEvery int
}

// Server is a fake batch endpoint.
type Server struct {
	*httptest.Server
	opts     ServerOptions
	requests atomic.Int64
}

// NewServer starts a fake batch server. Close it when done.
func NewServer(opts ServerOptions) *Server {
	s := &Server{opts: opts}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns the number of batch requests served.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}

	var body map[string][]struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := make(remote.BatchResponse, len(body))
	for key, recs := range body {
		res := remote.Result{SyncedIDs: []string{}, SkippedIDs: []string{}, ServerWins: []json.RawMessage{}}
		for i, rec := range recs {
			if s.opts.SkipEvery > 0 && (i+1)%s.opts.SkipEvery == 0 {
				res.SkippedIDs = append(res.SkippedIDs, rec.ID)
				continue
			}
			res.SyncedIDs = append(res.SyncedIDs, rec.ID)
		}
		resp[key] = res
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// timedTransport records the latency of every chunk request.
type timedTransport struct {
	next pacesync.Transport

	mu        sync.Mutex
	durations []time.Duration
	errors    int
}

func (t *timedTransport) PostBatch(ctx context.Context, path string, body any) (remote.BatchResponse, error) {
	start := time.Now()
	resp, err := t.next.PostBatch(ctx, path, body)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.durations = append(t.durations, elapsed)
	if err != nil {
		t.errors++
	}
	t.mu.Unlock()
	return resp, err
}

// Result is the outcome of one load test run.
type Result struct {
	Reports []*pacesync.Report
	Latency *LatencyStats
	Elapsed time.Duration
}

// Synced returns the number of records marked synced across all reports.
func (r *Result) Synced() int {
	n := 0
	for _, rep := range r.Reports {
		n += rep.Synced()
	}
	return n
}

// Failed returns the number of records marked failed across all reports.
func (r *Result) Failed() int {
	n := 0
	for _, rep := range r.Reports {
		n += rep.Failed()
	}
	return n
}

// Run syncs store against transport and measures every chunk. With
// concurrent set, all families run at once instead of in order.
func Run(ctx context.Context, store *repo.Store, transport pacesync.Transport, sizes pacesync.ChunkSizes, concurrent bool, logger *zap.SugaredLogger) (*Result, error) {
	timed := &timedTransport{next: transport}
	driver := pacesync.NewDriver(store, timed, sizes, logger)

	start := time.Now()
	var reports []*pacesync.Report
	var err error
	if concurrent {
		reports, err = runConcurrent(ctx, driver)
	} else {
		reports, err = driver.SyncAll(ctx)
	}
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	stats := computeLatencyStats(timed.durations)
	stats.Errors = timed.errors
	return &Result{Reports: reports, Latency: stats, Elapsed: elapsed}, nil
}

func runConcurrent(ctx context.Context, driver *pacesync.Driver) ([]*pacesync.Report, error) {
	names := driver.Families()
	reports := make([]*pacesync.Report, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			report, err := driver.Run(ctx, name)
			reports[i] = report
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// LatencyStats captures chunk request latency.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Requests  int
	Errors    int
	Durations []time.Duration
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Requests:  len(durations),
		Durations: sorted,
	}
}

// Print writes the statistics in a fixed layout.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Chunk latency:\n")
	fmt.Fprintf(w, "  Requests:      %d\n", s.Requests)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
