package expr

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// ColumnRef is a single-column reference, `(table-alias, column)`,
// resolved during Validate to a (data-set-index, column-index) pair.
// Alias may be empty, meaning "resolve against whichever bound data set
// has this column, erroring on ambiguity".
type ColumnRef struct {
	Alias  string
	Column string

	dsIndex  int
	colIndex int
	resolved bool
}

func NewColumnRef(alias, column string) *ColumnRef {
	return &ColumnRef{Alias: alias, Column: column}
}

func (n *ColumnRef) ResultType(ctx *Context) (variant.Type, error) {
	if err := n.Validate(ctx); err != nil {
		return 0, err
	}
	return ctx.DataSet(n.dsIndex).Column(n.colIndex).Type, nil
}

func (n *ColumnRef) Validate(ctx *Context) error {
	if n.resolved {
		return nil
	}
	dsIdx, colIdx, err := ctx.Resolve(n.Alias, n.Column)
	if err != nil {
		return err
	}
	n.dsIndex, n.colIndex, n.resolved = dsIdx, colIdx, true
	return nil
}

func (n *ColumnRef) Evaluate(ctx *Context) (variant.Variant, error) {
	if !n.resolved {
		return variant.Variant{}, storage.NewError(storage.CodeInvariantViolated, "column reference %q evaluated before validation", n.Column)
	}
	return ctx.DataSet(n.dsIndex).GetValue(n.colIndex)
}

func (n *ColumnRef) SerializedSize() int {
	return 1 + lenPrefixedSize(n.Alias) + lenPrefixedSize(n.Column)
}

func (n *ColumnRef) Serialize(w codec.CodedOutputStream) error {
	if err := writeTag(w, tagColumnRef); err != nil {
		return err
	}
	if err := writeLenPrefixedString(w, n.Alias); err != nil {
		return err
	}
	return writeLenPrefixedString(w, n.Column)
}

func deserializeColumnRef(c *codec.Cursor) (Node, error) {
	alias, err := readLenPrefixedString(c)
	if err != nil {
		return nil, err
	}
	column, err := readLenPrefixedString(c)
	if err != nil {
		return nil, err
	}
	return &ColumnRef{Alias: alias, Column: column}, nil
}

// AllColumns is `*` or `t.*`. It has no expression wire tag: a request
// carries it as a result column's star flag plus alias, and the request
// handler expands it into a ColumnRef per bound column before validation.
type AllColumns struct {
	Alias string // empty for bare `*`
}

// Expand returns one ColumnRef per column bound to the matching data
// set(s): every data set if Alias is empty, else only the aliased one.
func (n *AllColumns) Expand(ctx *Context) ([]*ColumnRef, error) {
	var refs []*ColumnRef
	if n.Alias != "" {
		idx, ok := ctx.byAlias[n.Alias]
		if !ok {
			return nil, storage.NewError(storage.CodeSchemaNotFound, "unknown table alias %q", n.Alias)
		}
		ds := ctx.DataSet(idx)
		for i := 0; i < ds.ColumnCount(); i++ {
			refs = append(refs, &ColumnRef{Alias: n.Alias, Column: ds.Column(i).Name, dsIndex: idx, colIndex: i, resolved: true})
		}
		return refs, nil
	}
	for i := 0; i < ctx.DataSetCount(); i++ {
		ds := ctx.DataSet(i)
		for j := 0; j < ds.ColumnCount(); j++ {
			refs = append(refs, &ColumnRef{Alias: ctx.bindings[i].Alias, Column: ds.Column(j).Name, dsIndex: i, colIndex: j, resolved: true})
		}
	}
	return refs, nil
}
