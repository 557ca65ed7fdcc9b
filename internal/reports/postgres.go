package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDatabase implements Database on a pgx connection pool.
type PGDatabase struct {
	pool *pgxpool.Pool
}

func NewPGDatabase(pool *pgxpool.Pool) *PGDatabase {
	return &PGDatabase{pool: pool}
}

func (db *PGDatabase) ReportsForDate(ctx context.Context, date time.Time) ([]Report, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT report_id, report_type, department, content,
		       COALESCE(key_metrics::text, ''), created_at
		FROM operational_reports
		WHERE created_at::date = $1::date
		ORDER BY department, report_type
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query operational reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Type, &r.Department, &r.Content, &r.KeyMetrics, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operational reports: %w", err)
	}
	return reports, nil
}

func (db *PGDatabase) EquipmentSpecs(ctx context.Context, equipmentID string) (string, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT equipment_id, name, model, manufacturer, department,
		       COALESCE(specs::text, ''), installed_at
		FROM equipment_specs
		WHERE equipment_id = $1
	`, equipmentID)

	var (
		id, name, model, manufacturer, department, specs string
		installedAt                                      time.Time
	)
	err := row.Scan(&id, &name, &model, &manufacturer, &department, &specs, &installedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query equipment specs: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "equipment_id: %s\n", id)
	fmt.Fprintf(&b, "name: %s\n", name)
	fmt.Fprintf(&b, "model: %s\n", model)
	fmt.Fprintf(&b, "manufacturer: %s\n", manufacturer)
	fmt.Fprintf(&b, "department: %s\n", department)
	if specs != "" {
		fmt.Fprintf(&b, "specs: %s\n", specs)
	}
	fmt.Fprintf(&b, "installed_at: %s\n", installedAt.Format(time.DateOnly))
	return b.String(), nil
}
