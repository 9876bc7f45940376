package jobs

import (
	"github.com/vytor/lingoflash/internal/worker"
)

// WorkerQueue implements JobQueue using a worker pool
type WorkerQueue struct {
	analysisPool *worker.Pool
	analyzer     worker.SessionAnalyzer
}

// NewWorkerQueue creates a new WorkerQueue implementation
func NewWorkerQueue(analysisPool *worker.Pool, analyzer worker.SessionAnalyzer) JobQueue {
	return &WorkerQueue{
		analysisPool: analysisPool,
		analyzer:     analyzer,
	}
}

func (q *WorkerQueue) EnqueueAnalysis(sessionID string) error {
	return q.analysisPool.Submit(&worker.AnalyzeSessionJob{
		Analyzer:  q.analyzer,
		SessionID: sessionID,
	})
}
