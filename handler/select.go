package handler

import (
	"fmt"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/expr"
	"github.com/basestored/core/jsonstream"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// executeSelect resolves the FROM tables, expands `*`, validates every
// result/WHERE expression, evaluates LIMIT/OFFSET by constant folding,
// then nested-loops the data set product emitting matching rows to a
// pluggable rowset writer.
func (h *Handler) executeSelect(req *Request, w codec.CodedOutputStream, requestID uint64, responseID, responseCount uint32) (*Response, error) {
	db, err := h.resolveDatabase(req)
	if err != nil {
		return nil, err
	}
	defer h.Instance.ReleaseDatabase(db)

	var bindings []expr.DataSetBinding
	var dataSets []*storage.DataSet
	seenAlias := make(map[string]bool)
	for _, ref := range req.From {
		targetDB := db
		if ref.Database != "" && ref.Database != db.Name {
			d, err := h.Instance.Database(ref.Database)
			if err != nil {
				return nil, err
			}
			defer h.Instance.ReleaseDatabase(d)
			targetDB = d
		}
		if err := h.requirePermission(targetDB.Name, ref.Table, storage.ObjectTable, storage.PrivSelect); err != nil {
			return nil, err
		}
		t, err := targetDB.Table(ref.Table)
		if err != nil {
			return nil, err
		}
		alias := ref.Alias
		if alias == "" {
			alias = ref.Table
		}
		if seenAlias[alias] {
			return nil, storage.NewError(storage.CodeSyntax, "duplicate table alias %q", alias)
		}
		seenAlias[alias] = true
		ds, err := storage.NewDataSet(t, nil, targetDB.NextTxnID)
		if err != nil {
			return nil, err
		}
		dataSets = append(dataSets, ds)
		bindings = append(bindings, expr.DataSetBinding{Alias: alias, DataSet: ds})
	}
	ctx := expr.NewContext(bindings)

	resultCols, err := h.expandResultColumns(req.ResultColumns, ctx)
	if err != nil {
		return nil, err
	}
	schema, err := h.buildSchema(resultCols, ctx)
	if err != nil {
		return nil, err
	}
	if req.Where != nil {
		if err := req.Where.Validate(ctx); err != nil {
			return nil, err
		}
	}

	emptyCtx := expr.NewContext(nil)
	limit, err := evalConstInt(req.Limit, emptyCtx, "LIMIT")
	if err != nil {
		return nil, err
	}
	offset, err := evalConstInt(req.Offset, emptyCtx, "OFFSET")
	if err != nil {
		return nil, err
	}

	statusCode := 200

	var rw RowsetWriter
	if req.Format == FormatJSON {
		jw := jsonstream.New(w)
		jrw, err := NewJSONRowsetWriter(jw, schema, statusCode)
		if err != nil {
			return nil, err
		}
		rw = jrw
	} else {
		resp := &Response{RequestID: requestID, ResponseID: responseID, ResponseCount: responseCount, Columns: schema}
		if err := resp.WriteTo(w); err != nil {
			return nil, err
		}
		rw = NewBinaryRowsetWriter(w, schema)
	}

	rowErr := h.streamRows(ctx, dataSets, resultCols, req.Where, limit, offset, rw)
	if rowErr != nil {
		h.log.Error("select row streaming terminated", "database", req.Database, "error", rowErr)
	}
	if err := rw.Close(); err != nil {
		return nil, err
	}
	return &Response{AlreadyWritten: true}, nil
}

// expandResultColumns replaces every `*`/`t.*` entry with one ColumnRef
// per bound column, leaving ordinary expressions untouched.
func (h *Handler) expandResultColumns(cols []ResultColumn, ctx *expr.Context) ([]ResultColumn, error) {
	if len(cols) == 0 {
		star := &expr.AllColumns{}
		refs, err := star.Expand(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]ResultColumn, len(refs))
		for i, r := range refs {
			out[i] = ResultColumn{Expr: r}
		}
		return out, nil
	}
	var out []ResultColumn
	for _, rc := range cols {
		if rc.Star != nil {
			refs, err := rc.Star.Expand(ctx)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				out = append(out, ResultColumn{Expr: r})
			}
			continue
		}
		out = append(out, rc)
	}
	return out, nil
}

// buildSchema validates every result expression and computes its output
// column name/type/nullability, rejecting duplicate aliases.
func (h *Handler) buildSchema(cols []ResultColumn, ctx *expr.Context) ([]ColumnDescription, error) {
	seen := make(map[string]bool, len(cols))
	schema := make([]ColumnDescription, len(cols))
	for i, rc := range cols {
		if err := rc.Expr.Validate(ctx); err != nil {
			return nil, err
		}
		typ, err := rc.Expr.ResultType(ctx)
		if err != nil {
			return nil, err
		}
		name := rc.Alias
		nullable := true
		if cr, ok := rc.Expr.(*expr.ColumnRef); ok {
			if name == "" {
				name = cr.Column
			}
			if dsIdx, colIdx, err := ctx.Resolve(cr.Alias, cr.Column); err == nil {
				nullable = ctx.DataSet(dsIdx).Column(colIdx).Nullable
			}
		}
		if name == "" {
			name = fmt.Sprintf("col%d", i+1)
		}
		if seen[name] {
			return nil, storage.NewError(storage.CodeSyntax, "duplicate result column alias %q", name)
		}
		seen[name] = true
		schema[i] = ColumnDescription{Name: name, Type: typ, Nullable: nullable}
	}
	return schema, nil
}

// evalConstInt constant-folds node (LIMIT/OFFSET) against an empty
// context, returning nil if node is nil ("no limit"/"no offset").
func evalConstInt(node expr.Node, ctx *expr.Context, what string) (*int64, error) {
	if node == nil {
		return nil, nil
	}
	if err := node.Validate(ctx); err != nil {
		return nil, err
	}
	v, err := node.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if !v.Type.IsInteger() {
		return nil, storage.NewError(storage.CodeSyntax, "%s must be an integer constant", what)
	}
	var n int64
	if v.Type.IsUnsigned() {
		n = int64(v.UInt64())
	} else {
		n = v.Int64()
	}
	if n < 0 {
		return nil, storage.NewError(storage.CodeSyntax, "%s must not be negative", what)
	}
	return &n, nil
}

// streamRows runs the nested-loop join over dataSets, writing every row
// that survives WHERE/OFFSET/LIMIT to rw.
func (h *Handler) streamRows(ctx *expr.Context, dataSets []*storage.DataSet, resultCols []ResultColumn, where expr.Node, limit, offset *int64, rw RowsetWriter) error {
	emit := func() error {
		values := make([]variant.Variant, len(resultCols))
		for i, rc := range resultCols {
			v, err := rc.Expr.Evaluate(ctx)
			if err != nil {
				return err
			}
			values[i] = v
		}
		return rw.WriteRow(values)
	}
	evalRow := func() (bool, error) {
		if where != nil {
			v, err := where.Evaluate(ctx)
			if err != nil {
				return false, err
			}
			if v.IsNull() || (v.Type == variant.TypeBool && !v.Bool()) {
				return false, nil
			}
		}
		if offset != nil && *offset > 0 {
			*offset--
			return false, nil
		}
		if limit != nil && *limit <= 0 {
			return true, nil
		}
		if err := emit(); err != nil {
			return false, err
		}
		if limit != nil {
			*limit--
		}
		return false, nil
	}
	if len(dataSets) == 0 {
		_, err := evalRow()
		return err
	}
	var loop func(level int) (bool, error)
	loop = func(level int) (bool, error) {
		ds := dataSets[level]
		ds.ResetCursor()
		for ds.MoveToNextRow() {
			var stop bool
			var err error
			if level+1 < len(dataSets) {
				stop, err = loop(level + 1)
			} else {
				stop, err = evalRow()
			}
			if err != nil {
				return false, err
			}
			if stop {
				return true, nil
			}
		}
		return false, nil
	}
	_, err := loop(0)
	return err
}
