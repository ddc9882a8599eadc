package handler

import (
	"github.com/basestored/core/codec"
	"github.com/basestored/core/expr"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/variant"
)

// DecodeRequest reads one DatabaseEngineRequest body from c, written in
// the same varint/length-prefixed field style Response.marshalBody uses:
// a flat field sequence rather than a oneof per Kind, since most Kinds
// share most fields. The front door reads the MessageDatabaseEngineRequest
// tag and length itself and hands DecodeRequest a cursor scoped to exactly
// the body bytes.
func DecodeRequest(c *codec.Cursor) (*Request, uint64, uint32, uint32, error) {
	requestID, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	responseID64, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	responseCount64, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	kindByte, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}

	req := &Request{Kind: Kind(kindByte)}
	if req.Database, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.Table, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.NewName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}

	colCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < colCount; i++ {
		var cs ColumnSpec
		if cs.Name, err = readString(c); err != nil {
			return nil, 0, 0, 0, err
		}
		tb, err := c.ReadBytes(1)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		cs.Type = variant.Type(tb[0])
		nb, err := c.ReadBytes(1)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		cs.Nullable = nb[0] != 0
		hasDefault, err := c.ReadBytes(1)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		if hasDefault[0] != 0 {
			cs.Default, err = codec.Decode(c, cs.Type, codec.DefaultLimits, nil)
			if err != nil {
				return nil, 0, 0, 0, err
			}
		}
		req.Columns = append(req.Columns, cs)
	}

	if req.ColumnName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.IndexName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	idxColCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < idxColCount; i++ {
		s, err := readString(c)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		req.IndexColumns = append(req.IndexColumns, s)
	}
	if req.CipherID, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.NextTRID, err = c.ReadVarint(); err != nil {
		return nil, 0, 0, 0, err
	}

	fromCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < fromCount; i++ {
		var ref TableRef
		if ref.Database, err = readString(c); err != nil {
			return nil, 0, 0, 0, err
		}
		if ref.Table, err = readString(c); err != nil {
			return nil, 0, 0, 0, err
		}
		if ref.Alias, err = readString(c); err != nil {
			return nil, 0, 0, 0, err
		}
		req.From = append(req.From, ref)
	}

	resultCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < resultCount; i++ {
		var rc ResultColumn
		starFlag, err := c.ReadBytes(1)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		if starFlag[0] != 0 {
			alias, err := readString(c)
			if err != nil {
				return nil, 0, 0, 0, err
			}
			rc.Star = &expr.AllColumns{Alias: alias}
		} else {
			node, err := expr.Deserialize(c)
			if err != nil {
				return nil, 0, 0, 0, err
			}
			alias, err := readString(c)
			if err != nil {
				return nil, 0, 0, 0, err
			}
			rc.Expr = node
			rc.Alias = alias
		}
		req.ResultColumns = append(req.ResultColumns, rc)
	}

	if req.Where, err = readOptionalNode(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.Limit, err = readOptionalNode(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.Offset, err = readOptionalNode(c); err != nil {
		return nil, 0, 0, 0, err
	}
	formatByte, err := c.ReadBytes(1)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	req.Format = RowsetFormat(formatByte[0])

	insColCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < insColCount; i++ {
		s, err := readString(c)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		req.InsertColumns = append(req.InsertColumns, s)
	}
	rowCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < rowCount; i++ {
		row, err := readValueMap(c)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		req.InsertRows = append(req.InsertRows, row)
	}

	if req.TRID, err = c.ReadVarint(); err != nil {
		return nil, 0, 0, 0, err
	}
	updColCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < updColCount; i++ {
		s, err := readString(c)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		req.UpdateColumns = append(req.UpdateColumns, s)
	}
	updValCount, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	for i := uint64(0); i < updValCount; i++ {
		v, err := readTaggedValue(c)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		req.UpdateValues = append(req.UpdateValues, v)
	}

	if req.UserName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.Password, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	superByte, err := c.ReadBytes(1)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	req.IsSuperuser = superByte[0] != 0
	if req.KeyName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	if req.Token, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}

	if req.GrantUserName, err = readString(c); err != nil {
		return nil, 0, 0, 0, err
	}
	objTypeByte, err := c.ReadBytes(1)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	req.ObjectType = storage.ObjectType(objTypeByte[0])
	priv, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	req.Privileges = storage.Privilege(priv)
	grantOpt, err := c.ReadVarint()
	if err != nil {
		return nil, 0, 0, 0, err
	}
	req.GrantOption = storage.Privilege(grantOpt)

	return req, requestID, uint32(responseID64), uint32(responseCount64), nil
}

func readString(c *codec.Cursor) (string, error) {
	n, err := c.ReadVarint()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readOptionalNode(c *codec.Cursor) (expr.Node, error) {
	present, err := c.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	return expr.Deserialize(c)
}

func readTaggedValue(c *codec.Cursor) (variant.Variant, error) {
	tb, err := c.ReadBytes(1)
	if err != nil {
		return variant.Variant{}, err
	}
	return codec.Decode(c, variant.Type(tb[0]), codec.DefaultLimits, nil)
}

func readValueMap(c *codec.Cursor) (map[int]variant.Variant, error) {
	count, err := c.ReadVarint()
	if err != nil {
		return nil, err
	}
	row := make(map[int]variant.Variant, count)
	for i := uint64(0); i < count; i++ {
		idx, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		v, err := readTaggedValue(c)
		if err != nil {
			return nil, err
		}
		row[int(idx)] = v
	}
	return row, nil
}
