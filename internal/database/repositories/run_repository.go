// Package repositories provides database repository implementations
package repositories

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/direwatch/direwatch/internal/database"
	"github.com/direwatch/direwatch/pkg/models"
)

// RunRepository manages execution history records in the database. Keys are
// the run's start timestamp (nanoseconds, zero-padded) plus its ID, so a
// bucket cursor walks runs in chronological order.
type RunRepository struct {
	db *database.Manager
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.Manager) *RunRepository {
	return &RunRepository{db: db}
}

// Save stores one finished run record
func (r *RunRepository) Save(run *models.Run) error {
	return r.db.Put(database.BucketRuns, runKey(run), run)
}

// ListRecent returns up to limit runs, newest first
func (r *RunRepository) ListRecent(limit int) ([]*models.Run, error) {
	return r.list(limit, func(*models.Run) bool { return true })
}

// ListByJob returns up to limit runs of one job, newest first
func (r *RunRepository) ListByJob(job string, limit int) ([]*models.Run, error) {
	return r.list(limit, func(run *models.Run) bool { return run.Job == job })
}

func (r *RunRepository) list(limit int, keep func(*models.Run) bool) ([]*models.Run, error) {
	var runs []*models.Run

	err := r.db.Transaction(false, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database.BucketRuns))
		if b == nil {
			return fmt.Errorf("bucket %s not found", database.BucketRuns)
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run models.Run
			if err := json.Unmarshal(v, &run); err != nil {
				// Skip unreadable entries rather than failing the listing
				continue
			}
			if keep(&run) {
				runs = append(runs, &run)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}

func runKey(run *models.Run) string {
	return fmt.Sprintf("%020d-%s", run.StartedAt.UnixNano(), run.ID)
}
