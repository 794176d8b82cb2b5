// Phfgen builds a perfect-hash table file from a static key set, for use as
// a build step.
//
// Usage:
//
//	phfgen -in words.tsv -out words.pht -go-package words
//	phfgen -sqlite data.db -query "SELECT name, id FROM users" -out users.pht
//
// Input formats (by -format, or by the -in extension):
//
//	json   an object {"key": "value", ...} or an array [{"key": ..., "value": ...}, ...]
//	tsv    one key<TAB>value per line; lines without a tab build a key set
//	sqlite rows of (key, value) or (key) from -query against -sqlite
//
// The table is written to a temporary file and renamed into place only
// after it is built (and verified with -verify), so a failed run leaves no
// output behind. Any failure exits with status 1.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tamirms/phtable"
)

type config struct {
	in          string
	format      string
	sqlitePath  string
	query       string
	out         string
	goPackage   string
	goVar       string
	verify      bool
	workers     int
	lambda      float64
	alpha       float64
	retries     int
	maxDisplace int
	seed        uint64
	hash        string
	maxKeys     int
	meta        string
	verbose     bool
}

func parseFlags(args []string, output io.Writer) (*config, error) {
	fs := flag.NewFlagSet("phfgen", flag.ContinueOnError)
	fs.SetOutput(output)

	cfg := &config{}
	fs.StringVar(&cfg.in, "in", "", "input file (.json or .tsv)")
	fs.StringVar(&cfg.format, "format", "", "input format: json or tsv (default: from -in extension)")
	fs.StringVar(&cfg.sqlitePath, "sqlite", "", "SQLite database to read entries from")
	fs.StringVar(&cfg.query, "query", "", "SQL query returning (key, value) or (key) rows")
	fs.StringVar(&cfg.out, "out", "", "output table file")
	fs.StringVar(&cfg.goPackage, "go-package", "", "also write a Go file in this package embedding the table")
	fs.StringVar(&cfg.goVar, "go-var", "Table", "variable name of the embedded table")
	fs.BoolVar(&cfg.verify, "verify", true, "verify the written table against the input")
	fs.IntVar(&cfg.workers, "workers", 4, "parallel workers for -verify")
	fs.Float64Var(&cfg.lambda, "lambda", phtable.DefaultLoadFactor, "average keys per bucket")
	fs.Float64Var(&cfg.alpha, "alpha", phtable.DefaultSlotLoad, "fraction of slots holding a key (1 for a minimal table)")
	fs.IntVar(&cfg.retries, "retries", phtable.DefaultMaxRetries, "construction attempts")
	fs.IntVar(&cfg.maxDisplace, "max-displacement", 0, "displacement search bound per bucket (0 = number of slots)")
	fs.Uint64Var(&cfg.seed, "seed", 0x1234567890abcdef, "seed of the first construction attempt")
	fs.StringVar(&cfg.hash, "hash", "xxh3", "key hash: xxh3, siphash or murmur3")
	fs.IntVar(&cfg.maxKeys, "max-keys", phtable.DefaultMaxKeys, "key capacity")
	fs.StringVar(&cfg.meta, "meta", "", "user metadata stored in the table")
	fs.BoolVar(&cfg.verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	switch {
	case cfg.out == "":
		return nil, errors.New("-out is required")
	case cfg.in == "" && cfg.sqlitePath == "":
		return nil, errors.New("one of -in or -sqlite is required")
	case cfg.in != "" && cfg.sqlitePath != "":
		return nil, errors.New("-in and -sqlite are mutually exclusive")
	case cfg.sqlitePath != "" && cfg.query == "":
		return nil, errors.New("-sqlite requires -query")
	}
	if cfg.in != "" && cfg.format == "" {
		cfg.format = strings.TrimPrefix(filepath.Ext(cfg.in), ".")
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "phfgen:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "phfgen:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("generation failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run loads the entries, builds the table and writes the outputs.
func run(ctx context.Context, cfg *config, logger *zap.Logger) error {
	algo, err := phtable.ParseHashAlgorithm(cfg.hash)
	if err != nil {
		return err
	}

	in, err := loadInput(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("loaded input",
		zap.String("source", in.source),
		zap.Int("entries", len(in.entries)),
		zap.Bool("set", in.set))

	opts := []phtable.BuildOption{
		phtable.WithLoadFactor(cfg.lambda),
		phtable.WithSlotLoad(cfg.alpha),
		phtable.WithMaxRetries(cfg.retries),
		phtable.WithMaxDisplacement(cfg.maxDisplace),
		phtable.WithGlobalSeed(cfg.seed),
		phtable.WithHashAlgorithm(algo),
		phtable.WithMaxKeys(cfg.maxKeys),
		phtable.WithLogger(logger.Named("build")),
	}
	if cfg.meta != "" {
		opts = append(opts, phtable.WithUserMetadata([]byte(cfg.meta)))
	}

	var tbl *phtable.Table
	if in.set {
		keys := make([][]byte, len(in.entries))
		for i := range in.entries {
			keys[i] = in.entries[i].Key
		}
		tbl, err = phtable.BuildSet(keys, opts...)
	} else {
		tbl, err = phtable.Build(in.entries, opts...)
	}
	if err != nil {
		return err
	}

	st := tbl.Stats()
	logger.Info("built table",
		zap.Uint64("keys", st.NumKeys),
		zap.Uint32("buckets", st.NumBuckets),
		zap.Uint32("slots", st.NumSlots),
		zap.Int("attempts", st.Attempts),
		zap.Uint64("seed", tbl.Seed()),
		zap.Int64("bytes", st.TableSize))

	tmp := cfg.out + ".tmp"
	if err := writeTable(ctx, cfg, tbl, in.entries, tmp); err != nil {
		return errors.Join(err, removeIfExists(tmp))
	}

	if cfg.goPackage != "" {
		if err := writeGoFile(cfg, in.source); err != nil {
			return errors.Join(err, removeIfExists(tmp))
		}
	}

	if err := os.Rename(tmp, cfg.out); err != nil {
		return errors.Join(fmt.Errorf("rename table file: %w", err), removeIfExists(tmp))
	}
	logger.Info("wrote table", zap.String("path", cfg.out))
	return nil
}

// writeTable writes tbl to path and, with -verify, reopens it and checks
// every entry.
func writeTable(ctx context.Context, cfg *config, tbl *phtable.Table, entries []phtable.Entry, path string) error {
	if err := tbl.WriteFile(path); err != nil {
		return err
	}
	if !cfg.verify {
		return nil
	}

	written, err := phtable.Open(path)
	if err != nil {
		return fmt.Errorf("reopen written table: %w", err)
	}
	verifyErr := written.Verify()
	if verifyErr == nil {
		verifyErr = written.CheckEntries(ctx, entries, cfg.workers)
	}
	return errors.Join(verifyErr, written.Close())
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
