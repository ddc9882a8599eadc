package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/basestored/core/cipher"
	"github.com/basestored/core/config"
	"github.com/basestored/core/frontend"
	"github.com/basestored/core/handler"
	"github.com/basestored/core/storage"
	"github.com/basestored/core/util"
)

var version string

type cliOptions struct {
	DataDir           string `long:"data-dir" description:"Directory holding every database's on-disk files" value-name:"path"`
	Cipher            string `long:"cipher" description:"Default cipher id for newly created databases" value-name:"cipher_id"`
	UserCacheSize     int    `long:"user-cache-size" description:"Max resident users" value-name:"n"`
	DatabaseCacheSize int    `long:"database-cache-size" description:"Max resident databases" value-name:"n"`
	TableCacheSize    int    `long:"table-cache-size" description:"Max resident tables per database" value-name:"n"`
	BlockCacheSize    int    `long:"block-cache-size" description:"Max resident column blocks" value-name:"n"`
	MaxJSONPayload    int64  `long:"max-json-payload" description:"Max bytes of a single REST-JSON payload" value-name:"bytes"`
	Config            string `long:"config" description:"YAML file layering the options above" value-name:"path"`
	LogLevel          string `long:"log-level" description:"slog level for the storage engine's own diagnostics" value-name:"level" default:"info"`

	TCPAddr  string `long:"tcp-addr" description:"Address the binary protocol front door listens on" value-name:"addr" default:":50321"`
	RESTAddr string `long:"rest-addr" description:"Address the REST front door listens on" value-name:"addr" default:":50322"`

	AdminPassword string `long:"admin-password" description:"Password for the bootstrap admin user, overridden by $BASESTORED_ADMIN_PASSWORD" value-name:"password"`
	PasswordPrompt bool  `long:"password-prompt" description:"Force an admin password prompt instead of --admin-password"`

	Help    bool `long:"help" description:"Show this help"`
	Version bool `long:"version" description:"Show this version"`
}

func parseOptions(args []string) (cliOptions, config.Options) {
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

	cfg := config.Defaults()
	if opts.Config != "" {
		if err := config.LoadYAML(&cfg, opts.Config); err != nil {
			log.Fatal(err)
		}
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Cipher != "" {
		cfg.DefaultCipherID = opts.Cipher
	}
	if opts.UserCacheSize != 0 {
		cfg.UserCacheSize = opts.UserCacheSize
	}
	if opts.DatabaseCacheSize != 0 {
		cfg.DatabaseCacheSize = opts.DatabaseCacheSize
	}
	if opts.TableCacheSize != 0 {
		cfg.TableCacheSize = opts.TableCacheSize
	}
	if opts.BlockCacheSize != 0 {
		cfg.BlockCacheSize = opts.BlockCacheSize
	}
	if opts.MaxJSONPayload != 0 {
		cfg.MaxJSONPayload = opts.MaxJSONPayload
	}
	return opts, cfg
}

// adminPassword resolves the bootstrap admin's password: the
// BASESTORED_ADMIN_PASSWORD environment variable, if set, takes precedence
// over --admin-password, and --password-prompt overrides both.
func adminPassword(opts cliOptions) string {
	password, ok := os.LookupEnv("BASESTORED_ADMIN_PASSWORD")
	if !ok {
		password = opts.AdminPassword
	}
	if opts.PasswordPrompt {
		fmt.Print("Enter admin password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal(err)
		}
		password = string(pass)
	}
	return password
}

// bootstrapAdmin ensures a superuser named "admin" exists, creating one on
// first run through the request handler so the SYS_USERS catalog row is
// written alongside the in-memory record. The handshake that maps an
// incoming connection to a user id is out of scope; every front door this
// binary starts runs as this one bootstrap user.
func bootstrapAdmin(inst *storage.Instance, password string) (*storage.User, error) {
	u, err := inst.User("admin")
	if err == nil {
		return u, nil
	}
	h := handler.New(inst)
	h.IsSuperuser = true
	req := &handler.Request{Kind: handler.KindCreateUser, UserName: "admin", Password: password, IsSuperuser: true}
	if _, err := h.ExecuteREST(req, nil); err != nil {
		return nil, err
	}
	return inst.User("admin")
}

func main() {
	opts, cfg := parseOptions(os.Args[1:])

	logger := util.NewLogger(opts.LogLevel)
	ciphers := cipher.NewRegistry()

	inst, err := storage.NewInstance(cfg, ciphers, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer inst.Close()

	password := adminPassword(opts)
	admin, err := bootstrapAdmin(inst, password)
	if err != nil {
		log.Fatal(err)
	}

	ln, err := net.Listen("tcp", opts.TCPAddr)
	if err != nil {
		log.Fatal(err)
	}
	tcpServer := frontend.NewTCPServer(ln, inst, admin.ID, admin.IsSuperuser)
	go func() {
		if err := tcpServer.Serve(); err != nil {
			logger.Error("tcp frontend stopped", "error", err)
		}
	}()

	restServer := frontend.NewRESTServer(inst, admin.ID, admin.IsSuperuser, cfg.MaxJSONPayload)
	httpServer := &http.Server{Addr: opts.RESTAddr, Handler: restServer.Handler()}

	// Closing the listeners unblocks every handler's next stream I/O;
	// Instance.Close flips the shutdown flag first so a retried EINTR
	// becomes terminal instead of spinning.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		_ = httpServer.Close()
		_ = ln.Close()
		inst.Close()
		os.Exit(0)
	}()

	logger.Info("basestored listening", "tcp", opts.TCPAddr, "rest", opts.RESTAddr, "data_dir", cfg.DataDir)
	log.Fatal(httpServer.ListenAndServe())
}
