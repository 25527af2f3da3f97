package exporting

import (
	"fmt"
	"strconv"
	"time"

	"InstrCount/pkg/counters"
	"InstrCount/pkg/intercept"
)

// LaunchRow is one launch exit as written to the launch log.
type LaunchRow struct {
	Session           string `parquet:"session" json:"session"`
	Timestamp         int64  `parquet:"timestamp" json:"timestamp"`
	Ordinal           uint64 `parquet:"ordinal" json:"ordinal"`
	Function          string `parquet:"function" json:"function"`
	Kind              string `parquet:"kind" json:"kind"`
	GridX             uint32 `parquet:"grid_x" json:"grid_x"`
	GridY             uint32 `parquet:"grid_y" json:"grid_y"`
	GridZ             uint32 `parquet:"grid_z" json:"grid_z"`
	BlockX            uint32 `parquet:"block_x" json:"block_x"`
	BlockY            uint32 `parquet:"block_y" json:"block_y"`
	BlockZ            uint32 `parquet:"block_z" json:"block_z"`
	Active            bool   `parquet:"active" json:"active"`
	Cooperative       bool   `parquet:"cooperative" json:"cooperative"`
	Instructions      uint64 `parquet:"instructions" json:"instructions"`
	Indirect          uint64 `parquet:"indirect" json:"indirect"`
	Shuffle           uint64 `parquet:"shuffle" json:"shuffle"`
	Ballot            uint64 `parquet:"ballot" json:"ballot"`
	TotalInstructions uint64 `parquet:"total_instructions" json:"total_instructions"`
}

// NewLaunchRow converts an interceptor record.
func NewLaunchRow(session string, ts time.Time, r intercept.Record) LaunchRow {
	return LaunchRow{
		Session:           session,
		Timestamp:         ts.UnixNano(),
		Ordinal:           r.Ordinal,
		Function:          r.Function,
		Kind:              r.Kind.String(),
		GridX:             r.Params.Grid.X,
		GridY:             r.Params.Grid.Y,
		GridZ:             r.Params.Grid.Z,
		BlockX:            r.Params.Block.X,
		BlockY:            r.Params.Block.Y,
		BlockZ:            r.Params.Block.Z,
		Active:            r.Active,
		Cooperative:       r.Cooperative,
		Instructions:      r.Counts[counters.Generic],
		Indirect:          r.Counts[counters.Indirect],
		Shuffle:           r.Counts[counters.Shuffle],
		Ballot:            r.Counts[counters.Ballot],
		TotalInstructions: r.Totals.Instructions,
	}
}

// Columns is the column order of the delimited formats.
var Columns = []string{
	"session", "timestamp", "ordinal", "function", "kind",
	"grid_x", "grid_y", "grid_z", "block_x", "block_y", "block_z",
	"active", "cooperative",
	"instructions", "indirect", "shuffle", "ballot", "total_instructions",
}

func (r LaunchRow) fields() []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	u32 := func(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
	return []string{
		r.Session, strconv.FormatInt(r.Timestamp, 10), u(r.Ordinal), r.Function, r.Kind,
		u32(r.GridX), u32(r.GridY), u32(r.GridZ), u32(r.BlockX), u32(r.BlockY), u32(r.BlockZ),
		strconv.FormatBool(r.Active), strconv.FormatBool(r.Cooperative),
		u(r.Instructions), u(r.Indirect), u(r.Shuffle), u(r.Ballot), u(r.TotalInstructions),
	}
}

func parseFields(header, values []string) (LaunchRow, error) {
	var r LaunchRow
	for i, col := range header {
		if i >= len(values) {
			break
		}
		val := values[i]
		var err error
		switch col {
		case "session":
			r.Session = val
		case "timestamp":
			r.Timestamp, err = strconv.ParseInt(val, 10, 64)
		case "ordinal":
			r.Ordinal, err = strconv.ParseUint(val, 10, 64)
		case "function":
			r.Function = val
		case "kind":
			r.Kind = val
		case "grid_x":
			r.GridX, err = parseUint32(val)
		case "grid_y":
			r.GridY, err = parseUint32(val)
		case "grid_z":
			r.GridZ, err = parseUint32(val)
		case "block_x":
			r.BlockX, err = parseUint32(val)
		case "block_y":
			r.BlockY, err = parseUint32(val)
		case "block_z":
			r.BlockZ, err = parseUint32(val)
		case "active":
			r.Active, err = strconv.ParseBool(val)
		case "cooperative":
			r.Cooperative, err = strconv.ParseBool(val)
		case "instructions":
			r.Instructions, err = strconv.ParseUint(val, 10, 64)
		case "indirect":
			r.Indirect, err = strconv.ParseUint(val, 10, 64)
		case "shuffle":
			r.Shuffle, err = strconv.ParseUint(val, 10, 64)
		case "ballot":
			r.Ballot, err = strconv.ParseUint(val, 10, 64)
		case "total_instructions":
			r.TotalInstructions, err = strconv.ParseUint(val, 10, 64)
		}
		if err != nil {
			return r, fmt.Errorf("column %s: %w", col, err)
		}
	}
	return r, nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
