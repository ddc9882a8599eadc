// Command basestored-dump reconstructs the CREATE DATABASE / CREATE TABLE
// / ALTER TABLE ... SET NEXT_TRID / INSERT INTO text for every database
// in a data directory by reading its system catalog, the same
// reconstruction format the CLI dump format section of the wire protocol
// documents. It opens the data directory directly rather than connecting
// over the network, so a dump works against a stopped server.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	"github.com/basestored/core/cipher"
	"github.com/basestored/core/config"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/util"
	"github.com/basestored/core/variant"
)

var version string

type cliOptions struct {
	DataDir       string `long:"data-dir" description:"Directory holding every database's on-disk files" value-name:"path" default:"./data"`
	Debug         bool   `long:"debug" description:"Pretty-print each catalog row before emitting its reconstruction statement"`
	LogLevel      string `long:"log-level" description:"slog level for the storage engine's own diagnostics" value-name:"level" default:"info"`
	AdminToken    string `long:"admin-token" description:"Admin session token, overridden by $BASESTORED_ADMIN_TOKEN" value-name:"token"`
	TokenPrompt   bool   `long:"token-prompt" description:"Force an admin token prompt instead of --admin-token"`
	Help          bool   `long:"help" description:"Show this help"`
	Version       bool   `long:"version" description:"Show this version"`
}

func parseOptions(args []string) cliOptions {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[options]"
	if _, err := parser.ParseArgs(args); err != nil {
		log.Fatal(err)
	}
	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}
	return opts
}

// adminToken resolves the admin credential the dump tool authenticates
// with, the same env-then-flag-then-prompt layering basestored's own
// --admin-password uses.
func adminToken(opts cliOptions) string {
	token, ok := os.LookupEnv("BASESTORED_ADMIN_TOKEN")
	if !ok {
		token = opts.AdminToken
	}
	if opts.TokenPrompt {
		fmt.Print("Enter admin token: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal(err)
		}
		token = string(pass)
	}
	return token
}

// checkAdmin requires a valid admin session token before reading a data
// directory, unless no admin user has been bootstrapped yet (a fresh,
// still-empty directory).
func checkAdmin(inst *storage.Instance, opts cliOptions) error {
	admin, err := inst.User("admin")
	if err != nil {
		return nil
	}
	token := adminToken(opts)
	if token == "" || !admin.CheckToken(token) {
		return storage.NewError(storage.CodePermissionDenied, "dump requires a valid admin session token")
	}
	return nil
}

func main() {
	opts := parseOptions(os.Args[1:])

	cfg := config.Defaults()
	cfg.DataDir = opts.DataDir
	logger := util.NewLogger(opts.LogLevel)
	ciphers := cipher.NewRegistry()

	inst, err := storage.NewInstance(cfg, ciphers, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer inst.Close()

	if err := checkAdmin(inst, opts); err != nil {
		log.Fatal(err)
	}

	printer := pp.New()
	printer.SetColoringEnabled(false)

	dbRows, err := scanSystemTable(inst, storage.SystemDatabaseName, "SYS_DATABASES")
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range dbRows {
		if opts.Debug {
			printer.Println(row)
		}
		name := row["NAME"].String_()
		fmt.Printf("CREATE DATABASE %s WITH CIPHER_ID=%s, CIPHER_KEY_SEED=%s;\n",
			name, sqlLiteral(row["CIPHER_ID"]), sqlLiteral(row["CIPHER_KEY_SEED"]))
		if err := dumpDatabase(inst, name, printer, opts.Debug); err != nil {
			log.Fatal(err)
		}
	}
}

func dumpDatabase(inst *storage.Instance, dbName string, printer *pp.PrettyPrinter, debug bool) error {
	tableRows, err := scanSystemTable(inst, dbName, "SYS_TABLES")
	if err != nil {
		return err
	}
	columnRows, err := scanSystemTable(inst, dbName, "SYS_COLUMNS")
	if err != nil {
		return err
	}

	for _, tr := range tableRows {
		tableName := tr["TABLE_NAME"].String_()
		if debug {
			printer.Println(tr)
		}
		var cols []string
		for _, cr := range columnRows {
			if cr["TABLE_NAME"].String_() != tableName {
				continue
			}
			if debug {
				printer.Println(cr)
			}
			nullable := ""
			if !cr["NULLABLE"].Bool() {
				nullable = " NOT NULL"
			}
			cols = append(cols, fmt.Sprintf("%s %s%s", cr["NAME"].String_(), cr["DATA_TYPE"].String_(), nullable))
		}
		fmt.Printf("CREATE TABLE %s.%s(%s);\n", dbName, tableName, joinComma(cols))

		if err := dumpRows(inst, dbName, tableName, printer, debug); err != nil {
			return err
		}
	}
	return nil
}

func dumpRows(inst *storage.Instance, dbName, tableName string, printer *pp.PrettyPrinter, debug bool) error {
	db, err := inst.Database(dbName)
	if err != nil {
		return err
	}
	defer inst.ReleaseDatabase(db)
	t, err := db.Table(tableName)
	if err != nil {
		return err
	}
	// The live generator value, not the catalog's snapshot from the last
	// DDL statement, is what a replay must resume from.
	fmt.Printf("ALTER TABLE %s.%s SET NEXT_TRID=%d;\n", dbName, tableName, t.NextTRID())

	ds, err := storage.NewDataSet(t, nil, db.NextTxnID)
	if err != nil {
		return err
	}
	ds.ResetCursor()
	colNames := make([]string, ds.ColumnCount())
	for i := 0; i < ds.ColumnCount(); i++ {
		colNames[i] = ds.Column(i).Name
	}
	for ds.MoveToNextRow() {
		values := make([]string, ds.ColumnCount())
		for i := range values {
			v, err := ds.GetValue(i)
			if err != nil {
				return err
			}
			values[i] = sqlLiteral(v)
		}
		if debug {
			printer.Println(values)
		}
		fmt.Printf("INSERT INTO %s.%s(%s) VALUES (%s);\n", dbName, tableName, joinComma(colNames), joinComma(values))
	}
	return nil
}

// scanSystemTable reads every row of dbName.tableName into a name-keyed
// map, for the small, bounded-size catalog tables the dump tool never
// needs to stream.
func scanSystemTable(inst *storage.Instance, dbName, tableName string) ([]map[string]variant.Variant, error) {
	db, err := inst.Database(dbName)
	if err != nil {
		return nil, err
	}
	defer inst.ReleaseDatabase(db)
	t, err := db.Table(tableName)
	if err != nil {
		return nil, err
	}
	ds, err := storage.NewDataSet(t, nil, db.NextTxnID)
	if err != nil {
		return nil, err
	}
	ds.ResetCursor()
	var rows []map[string]variant.Variant
	for ds.MoveToNextRow() {
		row := make(map[string]variant.Variant, ds.ColumnCount())
		for i := 0; i < ds.ColumnCount(); i++ {
			v, err := ds.GetValue(i)
			if err != nil {
				return nil, err
			}
			row[ds.Column(i).Name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sqlLiteral(v variant.Variant) string {
	switch {
	case v.IsNull():
		return "NULL"
	case v.Type == variant.TypeString:
		return "'" + escapeQuote(v.String_()) + "'"
	case v.Type == variant.TypeClob:
		b, err := readLOB(v.LOBValue())
		if err != nil {
			return "NULL"
		}
		return "'" + escapeQuote(string(b)) + "'"
	case v.Type == variant.TypeBinary:
		return "x'" + hex.EncodeToString(v.Binary()) + "'"
	case v.Type == variant.TypeBlob:
		b, err := readLOB(v.LOBValue())
		if err != nil {
			return "x''"
		}
		return "x'" + hex.EncodeToString(b) + "'"
	case v.Type == variant.TypeBool:
		if v.Bool() {
			return "TRUE"
		}
		return "FALSE"
	default:
		return v.CanonicalString()
	}
}

// readLOB drains a LOB's remaining bytes; the dump tool reads every value
// up front so there is no benefit to streaming a clob/blob column here.
func readLOB(l variant.LOB) ([]byte, error) {
	defer l.Close()
	return io.ReadAll(struct{ io.Reader }{l})
}

func escapeQuote(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
