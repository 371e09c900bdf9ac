package sync

import "time"

// LaneReport describes one lane's part of a cycle.
type LaneReport struct {
	Key        string `json:"key" yaml:"key"`
	Pending    int    `json:"pending" yaml:"pending"`
	Chunks     int    `json:"chunks" yaml:"chunks"`
	Synced     int    `json:"synced" yaml:"synced"`
	Failed     int    `json:"failed" yaml:"failed"`
	ServerWins int    `json:"serverWins" yaml:"serverWins"`
}

// Report describes one sync cycle of a family.
type Report struct {
	Family      string        `json:"family" yaml:"family"`
	Lanes       []LaneReport  `json:"lanes" yaml:"lanes"`
	ChunksTotal int           `json:"chunksTotal" yaml:"chunksTotal"`
	ChunksSent  int           `json:"chunksSent" yaml:"chunksSent"`
	Aborted     bool          `json:"aborted" yaml:"aborted"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Started     time.Time     `json:"started" yaml:"started"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Pending returns the number of records the cycle started with.
func (r *Report) Pending() int {
	return r.sum(func(l LaneReport) int { return l.Pending })
}

// Synced returns the number of records marked synced.
func (r *Report) Synced() int {
	return r.sum(func(l LaneReport) int { return l.Synced })
}

// Failed returns the number of records marked failed.
func (r *Report) Failed() int {
	return r.sum(func(l LaneReport) int { return l.Failed })
}

// ServerWins returns the number of records overwritten by the server.
func (r *Report) ServerWins() int {
	return r.sum(func(l LaneReport) int { return l.ServerWins })
}

// Empty reports whether the cycle had nothing to send.
func (r *Report) Empty() bool {
	return r.ChunksTotal == 0
}

func (r *Report) sum(field func(LaneReport) int) int {
	n := 0
	for _, l := range r.Lanes {
		n += field(l)
	}
	return n
}
