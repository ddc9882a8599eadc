package frontend

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/handler"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/stream"
	"github.com/basestored/core/util"
	"github.com/basestored/core/variant"
)

// RESTServer maps the REST surface onto handler.Handler.ExecuteREST: GET
// endpoints stream a JSON rowset body directly; POST/PATCH/DELETE build
// a small `{"status":...}` envelope from the returned Response. Every
// request runs as the pre-authenticated UserID/IsSuperuser this server
// was constructed with — the auth handshake is out of scope.
type RESTServer struct {
	Instance    *storage.Instance
	UserID      uint64
	IsSuperuser bool
	MaxPayload  int64 // max bytes of a POST/PATCH body; 0 means unbounded
}

func NewRESTServer(inst *storage.Instance, userID uint64, isSuperuser bool, maxPayload int64) *RESTServer {
	return &RESTServer{Instance: inst, UserID: userID, IsSuperuser: isSuperuser, MaxPayload: maxPayload}
}

// body bounds an incoming request body by MaxPayload. The returned check
// func turns a decode failure at an exhausted budget into the
// payload-too-large error instead of the decoder's own truncation error.
func (s *RESTServer) body(r *http.Request) (io.Reader, func(error) error) {
	if s.MaxPayload <= 0 {
		return r.Body, func(err error) error { return err }
	}
	lim := stream.NewLimitedInputStream(r.Body, s.MaxPayload)
	return lim, func(err error) error {
		if err != nil && lim.Remaining() == 0 {
			return storage.NewError(storage.CodeValueOutOfRange, "request body exceeds max JSON payload size (%d bytes)", s.MaxPayload)
		}
		return err
	}
}

// Handler builds the http.Handler to hand to an http.Server.
func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /databases", s.wrap(func(r *http.Request, req *handler.Request) {
		req.Kind = handler.KindRestGetDatabases
	}))
	mux.HandleFunc("GET /databases/{db}/tables", s.wrap(func(r *http.Request, req *handler.Request) {
		req.Kind = handler.KindRestGetTables
		req.Database = r.PathValue("db")
	}))
	mux.HandleFunc("GET /databases/{db}/tables/{table}/rows", s.wrap(func(r *http.Request, req *handler.Request) {
		req.Kind = handler.KindRestGetAllRows
		req.Database = r.PathValue("db")
		req.Table = r.PathValue("table")
	}))
	mux.HandleFunc("GET /databases/{db}/tables/{table}/rows/{trid}", s.wrap(func(r *http.Request, req *handler.Request) {
		req.Kind = handler.KindRestGetRow
		req.Database = r.PathValue("db")
		req.Table = r.PathValue("table")
		req.TRID, _ = strconv.ParseUint(r.PathValue("trid"), 10, 64)
	}))
	mux.HandleFunc("POST /databases/{db}/tables/{table}/rows", s.wrapErr(func(r *http.Request, req *handler.Request) error {
		req.Kind = handler.KindRestPostRows
		req.Database = r.PathValue("db")
		req.Table = r.PathValue("table")
		t, release, err := s.lookupTable(req.Database, req.Table)
		if err != nil {
			return err
		}
		defer release()
		body, check := s.body(r)
		req.InsertColumns, req.InsertRows, err = decodeRESTRows(body, t)
		return check(err)
	}))
	mux.HandleFunc("PATCH /databases/{db}/tables/{table}/rows/{trid}", s.wrapErr(func(r *http.Request, req *handler.Request) error {
		req.Kind = handler.KindRestPatchRow
		req.Database = r.PathValue("db")
		req.Table = r.PathValue("table")
		req.TRID, _ = strconv.ParseUint(r.PathValue("trid"), 10, 64)
		t, release, err := s.lookupTable(req.Database, req.Table)
		if err != nil {
			return err
		}
		defer release()
		body, check := s.body(r)
		req.UpdateColumns, req.UpdateValues, err = decodeRESTUpdate(body, t)
		return check(err)
	}))
	mux.HandleFunc("DELETE /databases/{db}/tables/{table}/rows/{trid}", s.wrap(func(r *http.Request, req *handler.Request) {
		req.Kind = handler.KindRestDeleteRow
		req.Database = r.PathValue("db")
		req.Table = r.PathValue("table")
		req.TRID, _ = strconv.ParseUint(r.PathValue("trid"), 10, 64)
	}))
	return mux
}

// wrap builds a Request via build, runs it through ExecuteREST, and
// writes either the streamed rowset (GET, via AlreadyWritten) or the
// status/affectedRowCount/trids envelope (POST/PATCH/DELETE).
func (s *RESTServer) wrap(build func(*http.Request, *handler.Request)) http.HandlerFunc {
	return s.wrapErr(func(r *http.Request, req *handler.Request) error {
		build(r, req)
		return nil
	})
}

func (s *RESTServer) wrapErr(build func(*http.Request, *handler.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &handler.Request{Format: handler.FormatJSON}
		if err := build(r, req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			writeRESTError(w, err)
			return
		}

		h := handler.New(s.Instance)
		h.UserID = s.UserID
		h.IsSuperuser = s.IsSuperuser

		w.Header().Set("Content-Type", "application/json")
		resp, err := h.ExecuteREST(req, w)
		if err != nil {
			writeRESTError(w, err)
			return
		}
		if resp.AlreadyWritten {
			return
		}
		status := resp.RESTStatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(restEnvelope{
			Status:           status,
			AffectedRowCount: resp.AffectedRowCount,
			TRIDs:            resp.GeneratedTRIDs,
		})
	}
}

type restEnvelope struct {
	Status           int      `json:"status"`
	AffectedRowCount uint64   `json:"affectedRowCount"`
	TRIDs            []uint64 `json:"trids,omitempty"`
}

func writeRESTError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if se, ok := err.(*storage.Error); ok {
		switch {
		case se.Code == storage.CodeSchemaNotFound:
			code = http.StatusNotFound
		case se.Code == storage.CodePermissionDenied:
			code = http.StatusForbidden
		case se.Code.IsUserVisible():
			code = http.StatusBadRequest
		}
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": code, "message": err.Error()})
}

// lookupTable pins db and resolves t, returning a release func the caller
// must invoke exactly once (mirroring handler.resolveDatabase's
// pin/release contract for the REST front door, which has no handler.Handler
// of its own to hold the pin across a single call).
func (s *RESTServer) lookupTable(dbName, tableName string) (*storage.Table, func(), error) {
	db, err := s.Instance.Database(dbName)
	if err != nil {
		return nil, nil, err
	}
	t, err := db.Table(tableName)
	if err != nil {
		s.Instance.ReleaseDatabase(db)
		return nil, nil, err
	}
	return t, func() { s.Instance.ReleaseDatabase(db) }, nil
}

// restRow is the JSON shape a POST/PATCH body carries: a flat column-name
// to value map, matching the rows the GET side emits.
type restRow = map[string]json.RawMessage

// decodeRESTRows reads either a single JSON row object or an array of
// them, resolving each field name against t's current column set and
// returning the InsertColumns/InsertRows shape executeInsert expects: a
// sparse map from column position to value.
func decodeRESTRows(body io.Reader, t *storage.Table) ([]string, []map[int]variant.Variant, error) {
	var raw []restRow
	dec := json.NewDecoder(body)
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, storage.NewError(storage.CodeSyntax, "invalid JSON body: %s", err)
	}
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		for dec.More() {
			var row restRow
			if err := dec.Decode(&row); err != nil {
				return nil, nil, storage.NewError(storage.CodeSyntax, "invalid JSON row: %s", err)
			}
			raw = append(raw, row)
		}
	} else {
		row := make(restRow)
		if err := decodeRemainingObject(tok, dec, row); err != nil {
			return nil, nil, storage.NewError(storage.CodeSyntax, "invalid JSON body: %s", err)
		}
		raw = append(raw, row)
	}

	colSet := make(map[string]bool)
	for _, row := range raw {
		for name := range row {
			if name != "TRID" {
				colSet[name] = true
			}
		}
	}
	columns := make([]string, 0, len(colSet))
	colIndex := make(map[string]int, len(colSet))
	for name := range util.CanonicalMapIter(colSet) {
		colIndex[name] = len(columns)
		columns = append(columns, name)
	}

	rows := make([]map[int]variant.Variant, 0, len(raw))
	for _, row := range raw {
		values := make(map[int]variant.Variant, len(row))
		for name, msg := range row {
			if name == "TRID" {
				continue
			}
			cd, ok := t.ColumnByName(name)
			if !ok {
				return nil, nil, storage.NewError(storage.CodeSchemaNotFound, "column %q not found on table %s", name, t.Name)
			}
			v, err := jsonToVariant(msg, cd.Type)
			if err != nil {
				return nil, nil, err
			}
			values[colIndex[name]] = v
		}
		rows = append(rows, values)
	}
	return columns, rows, nil
}

// decodeRESTUpdate reads a single JSON row object for PATCH, returning
// the UpdateColumns/UpdateValues pair executeUpdate expects.
func decodeRESTUpdate(body io.Reader, t *storage.Table) ([]string, []variant.Variant, error) {
	row := make(restRow)
	if err := json.NewDecoder(body).Decode(&row); err != nil {
		return nil, nil, storage.NewError(storage.CodeSyntax, "invalid JSON body: %s", err)
	}
	var columns []string
	var values []variant.Variant
	for name, msg := range row {
		if name == "TRID" {
			continue
		}
		cd, ok := t.ColumnByName(name)
		if !ok {
			return nil, nil, storage.NewError(storage.CodeSchemaNotFound, "column %q not found on table %s", name, t.Name)
		}
		v, err := jsonToVariant(msg, cd.Type)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, name)
		values = append(values, v)
	}
	return columns, values, nil
}

// decodeRemainingObject finishes decoding a JSON object whose opening
// '{' token has already been consumed from dec, filling row in place.
func decodeRemainingObject(first json.Token, dec *json.Decoder, row restRow) error {
	if delim, ok := first.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object"}
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		row[key] = raw
	}
	_, err := dec.Token() // consume closing '}'
	return err
}

// jsonToVariant converts a single JSON value to the variant type a
// column expects. Numeric types come through encoding/json as
// float64/json.Number-compatible text; integers are parsed from their
// decimal text to avoid float64's 53-bit mantissa truncating UInt64.
func jsonToVariant(msg json.RawMessage, t variant.Type) (variant.Variant, error) {
	if string(msg) == "null" {
		return variant.Null, nil
	}
	switch t {
	case variant.TypeBool:
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected bool: %s", err)
		}
		return variant.NewBool(b), nil
	case variant.TypeInt8, variant.TypeInt16, variant.TypeInt32, variant.TypeInt64:
		var n int64
		if err := json.Unmarshal(msg, &n); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected integer: %s", err)
		}
		switch t {
		case variant.TypeInt8:
			return variant.NewInt8(int8(n)), nil
		case variant.TypeInt16:
			return variant.NewInt16(int16(n)), nil
		case variant.TypeInt32:
			return variant.NewInt32(int32(n)), nil
		default:
			return variant.NewInt64(n), nil
		}
	case variant.TypeUInt8, variant.TypeUInt16, variant.TypeUInt32, variant.TypeUInt64:
		var n uint64
		if err := json.Unmarshal(msg, &n); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected unsigned integer: %s", err)
		}
		switch t {
		case variant.TypeUInt8:
			return variant.NewUInt8(uint8(n)), nil
		case variant.TypeUInt16:
			return variant.NewUInt16(uint16(n)), nil
		case variant.TypeUInt32:
			return variant.NewUInt32(uint32(n)), nil
		default:
			return variant.NewUInt64(n), nil
		}
	case variant.TypeFloat:
		var f float64
		if err := json.Unmarshal(msg, &f); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected number: %s", err)
		}
		return variant.NewFloat(float32(f)), nil
	case variant.TypeDouble:
		var f float64
		if err := json.Unmarshal(msg, &f); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected number: %s", err)
		}
		return variant.NewDouble(f), nil
	case variant.TypeString:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected string: %s", err)
		}
		return variant.NewString(s), nil
	case variant.TypeDateTime:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected date/time string: %s", err)
		}
		dt, err := variant.ParseDateTime(s)
		if err != nil {
			return variant.Variant{}, storage.WrapError(storage.CodeSyntax, err, "invalid date/time value")
		}
		return variant.NewDateTime(dt), nil
	case variant.TypeClob:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected string: %s", err)
		}
		return variant.NewClob(codec.NewMemoryLOB([]byte(s))), nil
	case variant.TypeBinary:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected hex string: %s", err)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "invalid hex binary: %s", err)
		}
		return variant.NewBinary(b), nil
	case variant.TypeBlob:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "expected hex string: %s", err)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return variant.Variant{}, storage.NewError(storage.CodeSyntax, "invalid hex binary: %s", err)
		}
		return variant.NewBlob(codec.NewMemoryLOB(b)), nil
	default:
		return variant.Variant{}, storage.NewError(storage.CodeSyntax, "unsupported REST column type %s", t)
	}
}
