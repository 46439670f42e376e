// Command admin is the operator CLI: seed maps and accounts, inspect
// state, and read the compressed audit trail. It opens the sqlite
// database directly, so run it against a stopped server or a copy.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/ledger"
	"neighborhood.land/internal/mapdata"
	"neighborhood.land/internal/persistence/sqlite"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "import-map":
			importMapCmd(os.Args[2:])
			return
		case "retire-map":
			retireMapCmd(os.Args[2:])
			return
		case "seed-account":
			seedAccountCmd(os.Args[2:])
			return
		case "plots":
			plotsCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <import-map|retire-map|seed-account|plots|stats|export|audit> [flags]")
	os.Exit(2)
}

func openStore(dbPath, configDir string) *ledger.Store {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		fatal("load catalogs:", err)
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		fatal("open db:", err)
	}
	logger := log.New(os.Stderr, "[admin] ", log.LstdFlags)
	return ledger.NewStore(db, cats, logger)
}

func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}

func importMapCmd(args []string) {
	fs := flag.NewFlagSet("import-map", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	mapPath := fs.String("map", "", "map document path (required)")
	_ = fs.Parse(args)
	if *mapPath == "" {
		fmt.Fprintln(os.Stderr, "import-map: -map is required")
		os.Exit(2)
	}

	doc, err := mapdata.Load(*mapPath)
	if err != nil {
		fatal("load map document:", err)
	}
	store := openStore(*dbPath, *configDir)
	n, err := store.ImportMap(context.Background(), doc)
	if err != nil {
		fatal("import map:", err)
	}
	fmt.Printf("imported %s: %d plots seeded\n", doc.ID, n)
}

func retireMapCmd(args []string) {
	fs := flag.NewFlagSet("retire-map", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	mapID := fs.String("map_id", "", "map id (required)")
	_ = fs.Parse(args)
	if *mapID == "" {
		fmt.Fprintln(os.Stderr, "retire-map: -map_id is required")
		os.Exit(2)
	}

	store := openStore(*dbPath, *configDir)
	if err := store.RetireMap(context.Background(), *mapID); err != nil {
		fatal("retire map:", err)
	}
	fmt.Printf("retired %s\n", *mapID)
}

func seedAccountCmd(args []string) {
	fs := flag.NewFlagSet("seed-account", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	id := fs.String("id", "", "account id (required)")
	userID := fs.String("user_id", "", "external user id (required)")
	name := fs.String("name", "", "display name")
	_ = fs.Parse(args)
	if *id == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "seed-account: -id and -user_id are required")
		os.Exit(2)
	}

	store := openStore(*dbPath, *configDir)
	a, err := store.CreateAccount(context.Background(), *id, *userID, *name)
	if err != nil {
		fatal("create account:", err)
	}
	fmt.Printf("account %s bound to user %s\n", a.ID, a.UserID)
}

func plotsCmd(args []string) {
	fs := flag.NewFlagSet("plots", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	onlyOwned := fs.Bool("owned", false, "list only owned plots")
	_ = fs.Parse(args)

	store := openStore(*dbPath, *configDir)
	list, err := store.AllPlots(context.Background())
	if err != nil {
		fatal("list plots:", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	for _, p := range list {
		if *onlyOwned && !p.Owned() {
			continue
		}
		owner := p.OwnerID
		if owner == "" {
			owner = "-"
		}
		fmt.Printf("%-20s %-12s (%g,%g %gx%g) price=%g owner=%s likes=%d\n",
			p.ID, p.PlotType, p.X, p.Y, p.Width, p.Height, p.Price, owner, p.LikesCount)
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)

	store := openStore(*dbPath, *configDir)
	st, err := store.Stats(context.Background())
	if err != nil {
		fatal("stats:", err)
	}
	out, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(out))
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "./data/neighborhood.sqlite", "sqlite database path")
	configDir := fs.String("configs", "./configs", "config directory")
	outPath := fs.String("out", "", "output path (default stdout)")
	_ = fs.Parse(args)

	store := openStore(*dbPath, *configDir)
	exp, err := store.ExportState(context.Background())
	if err != nil {
		fatal("export:", err)
	}
	raw, _ := json.MarshalIndent(exp, "", "  ")
	if *outPath == "" {
		fmt.Println(string(raw))
		return
	}
	if err := os.WriteFile(*outPath, raw, 0o644); err != nil {
		fatal("write export:", err)
	}
	fmt.Printf("wrote %s\n", *outPath)
}

// auditCmd decompresses and prints audit trail entries, optionally
// filtered to a single plot.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	plotID := fs.String("plot_id", "", "filter by plot id")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "audit")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fatal("read audit dir:", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := dumpAuditFile(filepath.Join(dir, name), *plotID); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		}
	}
}

func dumpAuditFile(path, plotID string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if plotID != "" {
			var e ledger.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil || e.PlotID != plotID {
				continue
			}
		}
		fmt.Println(string(line))
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
