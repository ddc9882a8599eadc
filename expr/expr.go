// Package expr implements the expression tree the request handler
// evaluates for result columns, WHERE/LIMIT/OFFSET, and CAST targets: a
// tagged enum of node kinds dispatched by a 1-byte wire tag rather than a
// class hierarchy. Every node answers four questions: its result type
// without reading any row (ResultType), how it binds to the data sets in
// scope (Validate), what it evaluates to for the current row (Evaluate),
// and how it round-trips on the wire (SerializedSize/Serialize, plus the
// package-level Deserialize dispatcher).
package expr

import (
	"fmt"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// Node is the common contract every expression tree node implements.
type Node interface {
	// ResultType computes the node's result type without reading any row.
	ResultType(ctx *Context) (variant.Type, error)
	// Validate resolves column references against ctx's bound data sets,
	// recording data-set/column indices. Must be called once before
	// Evaluate.
	Validate(ctx *Context) error
	// Evaluate reads whatever current-row state it needs and returns the
	// node's value.
	Evaluate(ctx *Context) (variant.Variant, error)
	// SerializedSize returns the exact byte count Serialize would emit.
	SerializedSize() int
	// Serialize appends this node's wire tag, payload, and children.
	Serialize(w codec.CodedOutputStream) error
}

// DataSetBinding names a data set in scope for column resolution: an
// alias (or bare table name if unaliased) bound to its index in
// Context.DataSets.
type DataSetBinding struct {
	Alias   string
	DataSet *storage.DataSet
}

// Context is the evaluation/validation environment threaded through a
// tree: the data sets a SELECT's FROM clause bound, indexed by alias for
// column resolution.
type Context struct {
	bindings []DataSetBinding
	byAlias  map[string]int
}

// NewContext builds a Context over bindings, indexing each by its alias.
// Duplicate aliases are a caller bug (validated by the handler's FROM
// clause processing before a Context is ever built) and simply let the
// later binding win.
func NewContext(bindings []DataSetBinding) *Context {
	ctx := &Context{bindings: bindings, byAlias: make(map[string]int, len(bindings))}
	for i, b := range bindings {
		ctx.byAlias[b.Alias] = i
	}
	return ctx
}

// DataSetCount reports how many data sets are bound.
func (ctx *Context) DataSetCount() int { return len(ctx.bindings) }

// DataSet returns the bound data set at idx.
func (ctx *Context) DataSet(idx int) *storage.DataSet { return ctx.bindings[idx].DataSet }

// Resolve finds (dataSetIndex, columnIndex) for a (table-alias, column)
// reference. An empty alias resolves against every bound data set in
// order, erroring on ambiguity; a non-empty alias resolves only against
// the matching binding.
func (ctx *Context) Resolve(alias, column string) (int, int, error) {
	if alias != "" {
		idx, ok := ctx.byAlias[alias]
		if !ok {
			return 0, 0, storage.NewError(storage.CodeSchemaNotFound, "unknown table alias %q", alias)
		}
		ci, ok := columnIndex(ctx.bindings[idx].DataSet, column)
		if !ok {
			return 0, 0, storage.NewError(storage.CodeSchemaNotFound, "column %q not found on %q", column, alias)
		}
		return idx, ci, nil
	}
	found := -1
	foundCol := -1
	for i, b := range ctx.bindings {
		if ci, ok := columnIndex(b.DataSet, column); ok {
			if found != -1 {
				return 0, 0, storage.NewError(storage.CodeSyntax, "column %q is ambiguous", column)
			}
			found, foundCol = i, ci
		}
	}
	if found == -1 {
		return 0, 0, storage.NewError(storage.CodeSchemaNotFound, "column %q not found", column)
	}
	return found, foundCol, nil
}

func columnIndex(ds *storage.DataSet, name string) (int, bool) {
	for i := 0; i < ds.ColumnCount(); i++ {
		if ds.Column(i).Name == name {
			return i, true
		}
	}
	return -1, false
}

// wire tags. Stable once persisted; never renumber.
const (
	tagConstant byte = iota + 1
	tagColumnRef
	tagArithBinary
	tagArithUnary
	tagBitwiseBinary
	tagBitwiseUnary
	tagComparison
	tagLogicalBinary
	tagLogicalNot
	tagIs
	tagBetween
	tagIn
	tagLike
	tagConcat
	tagCast
)

// ErrUnknownTag is returned by Deserialize when the leading byte does not
// match any known node kind.
var ErrUnknownTag = fmt.Errorf("expr: unknown node tag")

// Deserialize reads one node (tag, payload, and children) from c.
func Deserialize(c *codec.Cursor) (Node, error) {
	tagByte, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	switch tagByte[0] {
	case tagConstant:
		return deserializeConstant(c)
	case tagColumnRef:
		return deserializeColumnRef(c)
	case tagArithBinary:
		return deserializeArithBinary(c)
	case tagArithUnary:
		return deserializeArithUnary(c)
	case tagBitwiseBinary:
		return deserializeBitwiseBinary(c)
	case tagBitwiseUnary:
		return deserializeBitwiseUnary(c)
	case tagComparison:
		return deserializeComparison(c)
	case tagLogicalBinary:
		return deserializeLogicalBinary(c)
	case tagLogicalNot:
		return deserializeLogicalNot(c)
	case tagIs:
		return deserializeIs(c)
	case tagBetween:
		return deserializeBetween(c)
	case tagIn:
		return deserializeIn(c)
	case tagLike:
		return deserializeLike(c)
	case tagConcat:
		return deserializeConcat(c)
	case tagCast:
		return deserializeCast(c)
	default:
		return nil, ErrUnknownTag
	}
}

func writeTag(w codec.CodedOutputStream, tag byte) error {
	_, err := w.Write([]byte{tag})
	return err
}

func serializeChildren(w codec.CodedOutputStream, children ...Node) error {
	for _, ch := range children {
		if err := ch.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func childrenSize(children ...Node) int {
	n := 0
	for _, ch := range children {
		n += ch.SerializedSize()
	}
	return n
}
