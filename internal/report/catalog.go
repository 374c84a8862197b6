package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/opsdesk/internal/persistence"
)

// Querier runs a parameterized SELECT.
type Querier interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) (*persistence.Result, error)
}

// Definition is a fixed report query. Every query takes the same two
// parameters: $1 lower and $2 upper bound on the report's date column.
type Definition struct {
	Name  string
	Title string
	SQL   string
}

var catalog = map[string]Definition{
	"tickets": {
		Name:  "tickets",
		Title: "Helpdesk Tickets",
		SQL: `SELECT id AS "Ticket", subject AS "Subject", requester_name AS "Requester", location AS "Location",
       status AS "Status", priority AS "Priority", COALESCE(assigned_to, '') AS "Assigned To",
       created_at AS "Created", first_response_at AS "First Response", resolved_at AS "Resolved"
FROM tickets
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at`,
	},
	"procurement": {
		Name:  "procurement",
		Title: "Procurement Requests",
		SQL: `SELECT request_number AS "Request", requester_name AS "Requester", department AS "Department",
       vendor_name AS "Vendor", status AS "Status", total_amount::text AS "Total",
       created_at AS "Created", ordered_at AS "Ordered", received_at AS "Received"
FROM procurement_requests
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at`,
	},
	"trips": {
		Name:  "trips",
		Title: "Vehicle Trips",
		SQL: `SELECT t.id AS "Trip", v.make || ' ' || v.model || ' (' || v.plate || ')' AS "Vehicle",
       t.requester_name AS "Driver", t.destination AS "Destination", t.status AS "Status",
       t.departure_time AS "Departed", t.return_time AS "Returned",
       t.starting_mileage AS "Start Miles", t.ending_mileage AS "End Miles",
       t.ending_mileage - t.starting_mileage AS "Miles Driven"
FROM vehicle_trips t
JOIN vehicles v ON v.id = t.vehicle_id
WHERE t.created_at >= $1 AND t.created_at < $2
ORDER BY t.created_at`,
	},
	"assets": {
		Name:  "assets",
		Title: "Asset Inventory",
		SQL: `SELECT asset_tag AS "Tag", name AS "Name", category AS "Category", serial_number AS "Serial",
       location AS "Location", COALESCE(assigned_to, '') AS "Assigned To", status AS "Status",
       purchase_date AS "Purchased", purchase_cost::text AS "Cost"
FROM assets
WHERE created_at >= $1 AND created_at < $2
ORDER BY asset_tag`,
	},
}

// Lookup returns the named report definition.
func Lookup(name string) (Definition, bool) {
	def, ok := catalog[name]
	return def, ok
}

// Names lists the available reports.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Range is a half-open [From, To) window. Zero values mean unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) bounds() (time.Time, time.Time) {
	from, to := r.From, r.To
	if from.IsZero() {
		from = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return from, to
}

// Build runs def over r and returns the table.
func Build(ctx context.Context, q Querier, def Definition, r Range) (Table, error) {
	from, to := r.bounds()
	if !to.After(from) {
		return Table{}, fmt.Errorf("report range end must be after start")
	}
	res, err := q.ExecuteQuery(ctx, def.SQL, from, to)
	if err != nil {
		return Table{}, err
	}
	return Table{Title: def.Title, Columns: res.Columns, Rows: res.Rows}, nil
}
