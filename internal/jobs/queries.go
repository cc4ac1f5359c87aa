package jobs

import (
	"fmt"

	"resident/internal/resource"
)

// Postgres expects the resident_set_update_batch and resident_set_delete_worker
// functions to be installed by the schema owner.
const (
	pgClaimBatch = `SELECT batch_code FROM resident_set_update_batch(p_batch_code := $1)`
	pgAddTask    = `INSERT INTO public.workers (data_json) VALUES ($1)`
	pgPopTask    = `SELECT data_json FROM resident_set_delete_worker()`
)

const (
	sqliteSeedBatch = `INSERT INTO batches (batch_code, interval_ms, last_run_at) VALUES (?, ?, 0)
ON CONFLICT(batch_code) DO NOTHING`
	sqliteClaimBatch = `UPDATE batches SET last_run_at = ?
WHERE batch_code = ? AND last_run_at + interval_ms <= ?
RETURNING batch_code`
	sqliteAddTask = `INSERT INTO workers (data_json, created_at) VALUES (?, ?)`
	sqlitePopTask = `DELETE FROM workers
WHERE id = (SELECT id FROM workers ORDER BY id LIMIT 1)
RETURNING data_json`
)

func unsupported(d resource.Dialect) error {
	return fmt.Errorf("jobs: unsupported dialect %q", d)
}
