package spatial

import "context"

const extensionCheckSQL = `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = $1)`

// Health probes database connectivity and the presence of the postgis and
// pgrouting extensions. Check failures are reported, not returned: the
// caller renders the report regardless of which dependency is down.
func (g *Gateway) Health(ctx context.Context) HealthReport {
	var report HealthReport

	var one int
	if err := g.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err == nil {
		report.DatabaseOK = true
	}

	if !report.DatabaseOK {
		return report
	}

	var exists bool
	if err := g.db.QueryRow(ctx, extensionCheckSQL, "postgis").Scan(&exists); err == nil {
		report.PostGISOK = exists
	}

	exists = false
	if err := g.db.QueryRow(ctx, extensionCheckSQL, "pgrouting").Scan(&exists); err == nil {
		report.PgRoutingOK = exists
	}

	return report
}
