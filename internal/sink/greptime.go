package sink

import (
	"context"
	"log/slog"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"v2x-sim/internal/telemetry"
)

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes the event journal to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client           greptimeClient
	vehicleTable     string
	messageTable     string
	negotiationTable string
}

// NewGreptimeDBWriter connects to a GreptimeDB gRPC endpoint.
func NewGreptimeDBWriter(host string, port int, database string) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{
		client:           client,
		vehicleTable:     telemetry.VehicleTableName,
		messageTable:     telemetry.MessageTableName,
		negotiationTable: telemetry.NegotiationTableName,
	}, nil
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, rows int) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		slog.Error("greptime write failed", "table", name, "error", err)
		return err
	}
	slog.Debug("greptime wrote rows", "table", name, "rows", rows)
	return nil
}

// WriteMessage inserts a single message row.
func (w *GreptimeDBWriter) WriteMessage(row telemetry.MessageRow) error {
	return w.WriteMessages([]telemetry.MessageRow{row})
}

// WriteMessages inserts multiple message rows.
func (w *GreptimeDBWriter) WriteMessages(rows []telemetry.MessageRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.messageTable)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"run_id", true, types.STRING},
		{"station_id", true, types.INT64},
		{"kind", true, types.STRING},
		{"entity", false, types.STRING},
		{"reason", false, types.STRING},
		{"manoeuvre_id", false, types.INT64},
		{"gen_delta_time", false, types.INT64},
		{"bytes", false, types.INT64},
		{"delivered", false, types.BOOLEAN},
		{"error", false, types.STRING},
		{"sim_time", false, types.FLOAT64},
	} {
		if err := addColumn(tbl, c.name, c.tag, c.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.RunID, int64(r.StationID), r.Kind, r.Entity, r.Reason,
			int64(r.ManoeuvreID), int64(r.GenDeltaTime), int64(r.Bytes), r.Delivered, r.Error,
			r.SimTime, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(w.messageTable, tbl, len(rows))
}

// WriteNegotiation inserts a negotiation row.
func (w *GreptimeDBWriter) WriteNegotiation(r telemetry.NegotiationRow) error {
	tbl, err := table.New(w.negotiationTable)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"run_id", true, types.STRING},
		{"event", true, types.STRING},
		{"station_id", false, types.INT64},
		{"vehicle_id", false, types.STRING},
		{"manoeuvre_id", false, types.INT64},
		{"strategy", false, types.STRING},
		{"detail", false, types.STRING},
		{"sim_time", false, types.FLOAT64},
	} {
		if err := addColumn(tbl, c.name, c.tag, c.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(r.RunID, r.Event, int64(r.StationID), r.VehicleID, int64(r.ManoeuvreID),
		r.Strategy, r.Detail, r.SimTime, r.Timestamp); err != nil {
		return err
	}
	return w.write(w.negotiationTable, tbl, 1)
}

// WriteStates inserts one tick of vehicle state.
func (w *GreptimeDBWriter) WriteStates(rows []telemetry.VehicleRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.vehicleTable)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"run_id", true, types.STRING},
		{"vehicle_id", true, types.STRING},
		{"station_id", false, types.INT64},
		{"x", false, types.FLOAT64},
		{"y", false, types.FLOAT64},
		{"lat", false, types.FLOAT64},
		{"lon", false, types.FLOAT64},
		{"speed", false, types.FLOAT64},
		{"heading", false, types.FLOAT64},
		{"acceleration", false, types.FLOAT64},
		{"left_turn", false, types.BOOLEAN},
		{"right_turn", false, types.BOOLEAN},
		{"controlled", false, types.BOOLEAN},
		{"sim_time", false, types.FLOAT64},
	} {
		if err := addColumn(tbl, c.name, c.tag, c.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.RunID, r.VehicleID, int64(r.StationID), r.X, r.Y, r.Lat, r.Lon,
			r.Speed, r.Heading, r.Acceleration, r.LeftTurn, r.RightTurn, r.Controlled,
			r.SimTime, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(w.vehicleTable, tbl, len(rows))
}

func addColumn(tbl *table.Table, name string, tag bool, typ types.ColumnType) error {
	if tag {
		return tbl.AddTagColumn(name, typ)
	}
	return tbl.AddFieldColumn(name, typ)
}
