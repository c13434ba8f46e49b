// mailctl inspects the local collaborator database.
//
//	mailctl -data ./data users
//	mailctl -config config.toml messages -for alice@example.com
//	mailctl -data ./data -engine sqlite messages
package main

import (
	"context"
	"cuchimail/backend/local"
	"cuchimail/config"
	"cuchimail/storage"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.etcd.io/bbolt"
)

func main() {
	configPath := flag.String("config", "", "Optional TOML configuration file to read local.data_dir and local.message_engine from")
	dataDir := flag.String("data", "", "Local collaborator data directory (default ./data)")
	engine := flag.String("engine", "", "Message engine, bolt or sqlite (default bolt)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: mailctl [-config file] [-data dir] [-engine bolt|sqlite] users | messages [-for address] [-limit n]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	opts, err := resolveOptions(*configPath, *dataDir, *engine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	db, err := storage.OpenReadOnly(opts.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error while opening database:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "users":
		err = listUsers(os.Stdout, db)
	case "messages":
		err = listMessages(os.Stdout, db, opts, flag.Args()[1:])
	default:
		flag.Usage()
		db.Close()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		db.Close()
		os.Exit(1)
	}
}

// resolveOptions reads the config file when given; non-empty flags win
func resolveOptions(configPath, dataDir, engine string) (local.Options, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return local.Options{}, err
		}
		cfg = loaded
	}

	opts := local.Options{DataDir: cfg.Local.DataDir, MessageEngine: cfg.Local.MessageEngine}
	if dataDir != "" {
		opts.DataDir = dataDir
	}
	if engine != "" {
		opts.MessageEngine = strings.ToLower(engine)
	}
	switch opts.MessageEngine {
	case "", local.EngineBolt, local.EngineSQLite:
	default:
		return local.Options{}, fmt.Errorf("unknown message engine %q", opts.MessageEngine)
	}
	return opts, nil
}

// openMessages opens the message store of the configured engine.
// A missing SQLite file is an error rather than an empty listing.
func openMessages(db *bbolt.DB, opts local.Options) (storage.MessageStore, error) {
	if opts.MessageEngine != local.EngineSQLite {
		return storage.NewBoltMessageStorage(db), nil
	}

	path := filepath.Join(opts.DataDir, storage.SQLiteFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("message database %s: %w", path, err)
	}
	return storage.NewSQLiteMessageStorage(path)
}

func listUsers(w io.Writer, db *bbolt.DB) error {
	users, err := storage.NewUserStorage(db).ListUsers()
	if err != nil {
		return err
	}

	table := newTable(w, []string{"Email", "ID", "Created", "Last login"})
	for _, u := range users {
		lastLogin := "-"
		if !u.LastLoginAt.IsZero() {
			lastLogin = u.LastLoginAt.Local().Format(time.DateTime)
		}
		table.Append([]string{u.Email, u.ID, u.CreatedAt.Local().Format(time.DateTime), lastLogin})
	}
	table.Render()
	return nil
}

func listMessages(w io.Writer, db *bbolt.DB, opts local.Options, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	forAddr := fs.String("for", "", "Only messages sent or received by this address")
	limit := fs.Int("limit", 50, "Maximum number of rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openMessages(db, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	messages, err := store.FindMessages(context.Background(), storage.MessageFilter{})
	if err != nil {
		return err
	}

	addr := strings.ToLower(strings.TrimSpace(*forAddr))
	table := newTable(w, []string{"Created", "From", "To", "Subject", "ID"})
	shown := 0
	for _, m := range messages {
		if addr != "" && m.SenderEmail != addr && m.RecipientEmail != addr {
			continue
		}
		if *limit > 0 && shown >= *limit {
			break
		}
		id := m.ID
		if len(id) > 8 {
			id = id[:8]
		}
		table.Append([]string{m.CreatedAt.Local().Format(time.DateTime), m.SenderEmail, m.RecipientEmail, m.Subject, id})
		shown++
	}
	table.Render()
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
