// Package db is the decision audit store. Every gate decision, including
// suppressions, is recorded so downstream analytics can account for every
// placement that did or did not render.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/inscenium-media/scene.render/internal/render"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			decision_id        TEXT PRIMARY KEY,
			placement_id       TEXT NOT NULL,
			surface_id         TEXT NOT NULL,
			epoch_time         TIMESTAMP NOT NULL,
			state              TEXT NOT NULL,
			opacity            DOUBLE,
			resolution         TEXT,
			reason             TEXT,
			final_prs          DOUBLE,
			weight_scheme      TEXT,
			technical          DOUBLE,
			visibility         DOUBLE,
			temporal           DOUBLE,
			spatial            DOUBLE,
			brand_safety       DOUBLE,
			geometry_width     DOUBLE,
			temporal_stability DOUBLE,
			device_capability  DOUBLE,
			recorded_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS decisions_placement ON decisions (placement_id, epoch_time);
		CREATE INDEX IF NOT EXISTS decisions_epoch ON decisions (epoch_time);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordDecision persists one decision. Satisfies the pipeline's audit sink
// contract.
func (db *DB) RecordDecision(ctx context.Context, rec render.DecisionRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO decisions (
			decision_id, placement_id, surface_id, epoch_time,
			state, opacity, resolution, reason,
			final_prs, weight_scheme,
			technical, visibility, temporal, spatial, brand_safety,
			geometry_width, temporal_stability, device_capability
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DecisionID, rec.PlacementID, rec.SurfaceID, rec.EpochTime.UTC(),
		rec.State, rec.Opacity, rec.Resolution, rec.Reason,
		rec.FinalPRS, rec.WeightScheme,
		rec.Technical, rec.Visibility, rec.Temporal, rec.Spatial, rec.BrandSafety,
		rec.GeometryWidth, rec.TemporalStability, rec.DeviceCapability,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision %s: %w", rec.DecisionID, err)
	}
	return nil
}

const decisionColumns = `decision_id, placement_id, surface_id, epoch_time,
		state, opacity, resolution, reason,
		final_prs, weight_scheme,
		technical, visibility, temporal, spatial, brand_safety,
		geometry_width, temporal_stability, device_capability`

func scanDecisions(rows *sql.Rows) ([]render.DecisionRecord, error) {
	defer rows.Close()

	var records []render.DecisionRecord
	for rows.Next() {
		var rec render.DecisionRecord
		if err := rows.Scan(
			&rec.DecisionID, &rec.PlacementID, &rec.SurfaceID, &rec.EpochTime,
			&rec.State, &rec.Opacity, &rec.Resolution, &rec.Reason,
			&rec.FinalPRS, &rec.WeightScheme,
			&rec.Technical, &rec.Visibility, &rec.Temporal, &rec.Spatial, &rec.BrandSafety,
			&rec.GeometryWidth, &rec.TemporalStability, &rec.DeviceCapability,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// RecentDecisions returns the newest decisions across all placements.
func (db *DB) RecentDecisions(ctx context.Context, limit int) ([]render.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions ORDER BY epoch_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanDecisions(rows)
}

// PlacementDecisions returns one placement's decisions, oldest first, for
// timeline reporting.
func (db *DB) PlacementDecisions(ctx context.Context, placementID string, limit int) ([]render.DecisionRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE placement_id = ? ORDER BY epoch_time ASC LIMIT ?`,
		placementID, limit)
	if err != nil {
		return nil, err
	}
	return scanDecisions(rows)
}

// StateCounts returns how many decisions landed in each gate state.
func (db *DB) StateCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT state, COUNT(*) FROM decisions GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://render-audit.db", db.DB, &tailsql.DBOptions{
		Label: "Render Audit DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the audit database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
