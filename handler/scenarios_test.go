package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestored/core/cipher"
	"github.com/basestored/core/config"
	"github.com/basestored/core/expr"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	logger := slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	inst, err := storage.NewInstance(cfg, cipher.NewRegistry(), logger)
	require.NoError(t, err)
	t.Cleanup(inst.Close)
	h := New(inst)
	h.IsSuperuser = true // tests run as the bootstrap admin
	return h
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func selectJSON(t *testing.T, h *Handler, req *Request) map[string]any {
	t.Helper()
	req.Format = FormatJSON
	req.Kind = KindSelect
	var buf bytes.Buffer
	resp, err := h.dispatch(req, &buf, 1, 0, 1)
	require.NoError(t, err)
	require.True(t, resp.AlreadyWritten)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	return decoded
}

// Scenario 1: CREATE DATABASE TEST1 ... ; CREATE TABLE TEST1.T(C INT);
// INSERT INTO TEST1.T(C) VALUES (42); SELECT C FROM TEST1.T;
func TestScenarioCreateInsertSelect(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "TEST1", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)

	_, err = h.executeCreateTable(&Request{
		Database: "TEST1",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "C", Type: variant.TypeInt32, Nullable: true}},
	}, 1, 0, 1)
	require.NoError(t, err)

	insResp, err := h.executeInsert(&Request{
		Database:      "TEST1",
		Table:         "T",
		InsertColumns: []string{"C"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(42)}},
	}, 1, 0, 1)
	require.NoError(t, err)
	assert.Len(t, insResp.GeneratedTRIDs, 1)

	out := selectJSON(t, h, &Request{
		Database: "TEST1",
		From:     []TableRef{{Table: "T"}},
		ResultColumns: []ResultColumn{
			{Expr: expr.NewColumnRef("", "C")},
		},
	})
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, float64(42), row["C"])
}

// Scenario 2: SELECT * FROM SYS.SYS_DATABASES WHERE NAME='TEST1';
func TestScenarioShowDatabasesFiltersByName(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "TEST1", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateDatabase(&Request{Database: "OTHERDB", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)

	out := selectJSON(t, h, &Request{
		Database: storage.SystemDatabaseName,
		From:     []TableRef{{Table: "SYS_DATABASES"}},
		Where:    eqFilter("NAME", variant.NewString("TEST1")),
	})
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "TEST1", row["NAME"])
}

// Scenario 3: CREATE TABLE D.T(A INT, B INT); INSERT INTO D.T(A,B)
// VALUES(1,2); ALTER TABLE D.T ADD COLUMN C INT DEFAULT 7;
// SELECT A,B,C FROM D.T WHERE TRID=1;
func TestScenarioAddColumnBackfillsDefault(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns: []ColumnSpec{
			{Name: "A", Type: variant.TypeInt32, Nullable: true},
			{Name: "B", Type: variant.TypeInt32, Nullable: true},
		},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"A", "B"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(1), 1: variant.NewInt32(2)}},
	}, 1, 0, 1)
	require.NoError(t, err)

	_, err = h.executeAddColumn(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "C", Type: variant.TypeInt32, Nullable: true, Default: variant.NewInt32(7)}},
	}, 1, 0, 1)
	require.NoError(t, err)

	out := selectJSON(t, h, &Request{
		Database: "D",
		From:     []TableRef{{Table: "T"}},
		ResultColumns: []ResultColumn{
			{Expr: expr.NewColumnRef("", "A")},
			{Expr: expr.NewColumnRef("", "B")},
			{Expr: expr.NewColumnRef("", "C")},
		},
		Where: expr.NewComparison(expr.EqualOperator, expr.NewColumnRef("", "TRID"), expr.NewConstant(variant.NewUInt64(1))),
	})
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, float64(1), row["A"])
	assert.Equal(t, float64(2), row["B"])
	assert.Equal(t, float64(7), row["C"])
}

// Scenario 4: REST GET /databases/D/tables/T/rows after the previous
// INSERT -> {"status":200,"rows":[{"TRID":1,"A":1,"B":2,"C":7}]}.
func TestScenarioRestGetRowsEnvelope(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns: []ColumnSpec{
			{Name: "A", Type: variant.TypeInt32, Nullable: true},
			{Name: "B", Type: variant.TypeInt32, Nullable: true},
		},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"A", "B"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(1), 1: variant.NewInt32(2)}},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeAddColumn(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "C", Type: variant.TypeInt32, Nullable: true, Default: variant.NewInt32(7)}},
	}, 1, 0, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	resp, err := h.executeRestGetRows(&Request{Database: "D", Table: "T", Format: FormatJSON}, &buf, 0, 0, 1)
	require.NoError(t, err)
	require.True(t, resp.AlreadyWritten)

	var decoded struct {
		Status int `json:"status"`
		Rows   []struct {
			TRID float64 `json:"TRID"`
			A    float64 `json:"A"`
			B    float64 `json:"B"`
			C    float64 `json:"C"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 200, decoded.Status)
	require.Len(t, decoded.Rows, 1)
	assert.Equal(t, float64(1), decoded.Rows[0].TRID)
	assert.Equal(t, float64(1), decoded.Rows[0].A)
	assert.Equal(t, float64(2), decoded.Rows[0].B)
	assert.Equal(t, float64(7), decoded.Rows[0].C)
}

// Scenario 5: SELECT * FROM D.T WHERE A BETWEEN 1 AND 1; over rows
// (A=1,B=2), (A=2,B=3) -> one row [1,1,2].
func TestScenarioSelectBetween(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns: []ColumnSpec{
			{Name: "A", Type: variant.TypeInt32, Nullable: true},
			{Name: "B", Type: variant.TypeInt32, Nullable: true},
		},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"A", "B"},
		InsertRows: []map[int]variant.Variant{
			{0: variant.NewInt32(1), 1: variant.NewInt32(2)},
			{0: variant.NewInt32(2), 1: variant.NewInt32(3)},
		},
	}, 1, 0, 1)
	require.NoError(t, err)

	out := selectJSON(t, h, &Request{
		Database: "D",
		From:     []TableRef{{Table: "T"}},
		ResultColumns: []ResultColumn{
			{Expr: expr.NewColumnRef("", "TRID")},
			{Expr: expr.NewColumnRef("", "A")},
			{Expr: expr.NewColumnRef("", "B")},
		},
		Where: expr.NewBetween(
			expr.NewColumnRef("", "A"),
			expr.NewConstant(variant.NewInt32(1)),
			expr.NewConstant(variant.NewInt32(1)),
			false,
		),
	})
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, float64(1), row["TRID"])
	assert.Equal(t, float64(1), row["A"])
	assert.Equal(t, float64(2), row["B"])
}

// Scenario 6: DROP DATABASE NO_SUCH_DB; -> one error message, no rows,
// connection remains usable.
func TestScenarioDropNonexistentDatabase(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeDropDatabase(&Request{Database: "NO_SUCH_DB"}, 1, 0, 1)
	require.Error(t, err)
	serr, ok := err.(*storage.Error)
	require.True(t, ok)
	assert.Equal(t, storage.CodeSchemaNotFound, serr.Code)

	resp := errorResponse(1, 0, 1, err)
	assert.Len(t, resp.Messages, 1)
	assert.Empty(t, resp.Columns)
	assert.False(t, resp.HasAffectedRows)

	_, err = h.executeCreateDatabase(&Request{Database: "STILLUSABLE", CipherID: "none"}, 2, 0, 1)
	require.NoError(t, err)
}

// Closing an instance and reopening the same data directory must bring
// back databases, tables, column sets (including DEFAULT backfill for
// columns added after a row was written), and rows.
func TestRestartRehydratesCatalog(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	logger := slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))

	inst, err := storage.NewInstance(cfg, cipher.NewRegistry(), logger)
	require.NoError(t, err)
	h := New(inst)
	h.IsSuperuser = true

	_, err = h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "A", Type: variant.TypeInt32, Nullable: true}},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"A"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(11)}},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeAddColumn(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "B", Type: variant.TypeInt32, Nullable: true, Default: variant.NewInt32(9)}},
	}, 1, 0, 1)
	require.NoError(t, err)
	inst.Close()

	reopened, err := storage.NewInstance(cfg, cipher.NewRegistry(), logger)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	h2 := New(reopened)
	h2.IsSuperuser = true

	out := selectJSON(t, h2, &Request{
		Database: "D",
		From:     []TableRef{{Table: "T"}},
		ResultColumns: []ResultColumn{
			{Expr: expr.NewColumnRef("", "A")},
			{Expr: expr.NewColumnRef("", "B")},
		},
	})
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, float64(11), row["A"])
	assert.Equal(t, float64(9), row["B"])

	// The TRID generator resumes past the existing row.
	ins, err := h2.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"A"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(12)}},
	}, 1, 0, 1)
	require.NoError(t, err)
	require.Len(t, ins.GeneratedTRIDs, 1)
	assert.Equal(t, uint64(2), ins.GeneratedTRIDs[0])
}

// A non-superuser needs an explicit grant before touching a table.
func TestPermissionEnforcedOnDML(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "C", Type: variant.TypeInt32, Nullable: true}},
	}, 1, 0, 1)
	require.NoError(t, err)

	plain := New(h.Instance)
	plain.UserID = 42
	_, err = plain.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"C"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(1)}},
	}, 1, 0, 1)
	require.Error(t, err)
	serr, ok := err.(*storage.Error)
	require.True(t, ok)
	assert.Equal(t, storage.CodePermissionDenied, serr.Code)

	h.Instance.Permissions().Grant(42, storage.PermissionKey{
		DatabaseID: storage.NameID("D"),
		ObjectType: storage.ObjectTable,
		ObjectID:   storage.NameID("D.T"),
	}, storage.PrivInsert, 0)
	_, err = plain.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"C"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(1)}},
	}, 1, 0, 1)
	require.NoError(t, err)
}

// LIMIT 0 must stream zero rows, not one.
func TestSelectLimitZeroStreamsNoRows(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.executeCreateDatabase(&Request{Database: "D", CipherID: "none"}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeCreateTable(&Request{
		Database: "D",
		Table:    "T",
		Columns:  []ColumnSpec{{Name: "C", Type: variant.TypeInt32, Nullable: true}},
	}, 1, 0, 1)
	require.NoError(t, err)
	_, err = h.executeInsert(&Request{
		Database:      "D",
		Table:         "T",
		InsertColumns: []string{"C"},
		InsertRows:    []map[int]variant.Variant{{0: variant.NewInt32(1)}},
	}, 1, 0, 1)
	require.NoError(t, err)

	out := selectJSON(t, h, &Request{
		Database:      "D",
		From:          []TableRef{{Table: "T"}},
		ResultColumns: []ResultColumn{{Expr: expr.NewColumnRef("", "C")}},
		Limit:         expr.NewConstant(variant.NewInt32(0)),
	})
	rows := out["rows"].([]any)
	assert.Len(t, rows, 0)
}
