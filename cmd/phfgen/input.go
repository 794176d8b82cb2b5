package main

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"github.com/tamirms/phtable"
)

// input is the loaded source set.
type input struct {
	source  string
	entries []phtable.Entry
	set     bool // keys only
}

func loadInput(ctx context.Context, cfg *config) (*input, error) {
	if cfg.sqlitePath != "" {
		return loadSQLite(ctx, cfg.sqlitePath, cfg.query)
	}
	switch cfg.format {
	case "json":
		return loadJSON(cfg.in)
	case "tsv", "txt":
		return loadTSV(cfg.in)
	default:
		return nil, fmt.Errorf("unknown input format %q (use -format json or tsv)", cfg.format)
	}
}

// jsonEntry is one element of the array form of JSON input.
type jsonEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// loadJSON reads an object of key/value strings or an array of
// {"key", "value"} objects.
func loadJSON(path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)

	in := &input{source: path}
	switch {
	case len(data) > 0 && data[0] == '{':
		entries, err := decodeJSONObject(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		in.entries = entries
	case len(data) > 0 && data[0] == '[':
		var arr []jsonEntry
		if err := sonnet.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		in.entries = make([]phtable.Entry, len(arr))
		for i, e := range arr {
			in.entries[i] = phtable.Entry{Key: []byte(e.Key), Value: []byte(e.Value)}
		}
	default:
		return nil, fmt.Errorf("decode %s: expected a JSON object or array", path)
	}
	return in, nil
}

// decodeJSONObject walks an object of string members in document order.
// Repeated member names are kept so the build can reject them.
func decodeJSONObject(data []byte) ([]phtable.Entry, error) {
	dec := sonnet.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return nil, err
	} else if tok != sonnet.Delim('{') {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var entries []phtable.Entry
	for dec.More() {
		key, err := jsonString(dec)
		if err != nil {
			return nil, err
		}
		value, err := jsonString(dec)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		entries = append(entries, phtable.Entry{Key: []byte(key), Value: []byte(value)})
	}
	if tok, err := dec.Token(); err != nil {
		return nil, err
	} else if tok != sonnet.Delim('}') {
		return nil, fmt.Errorf("expected end of object, got %v", tok)
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	return entries, nil
}

func jsonString(dec *sonnet.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	str, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", tok)
	}
	return str, nil
}

// loadTSV reads key<TAB>value lines. Blank lines are skipped. If no line
// has a tab the input is a key set; mixing both forms is an error.
func loadTSV(path string) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	defer f.Close()

	in := &input{source: path}
	var withValue, withoutValue int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSuffix(sc.Text(), "\r")
		if text == "" {
			continue
		}
		key, value, ok := strings.Cut(text, "\t")
		e := phtable.Entry{Key: []byte(key)}
		if ok {
			e.Value = []byte(value)
			withValue++
		} else {
			withoutValue++
		}
		if withValue > 0 && withoutValue > 0 {
			return nil, fmt.Errorf("%s:%d: mixes lines with and without values", path, line)
		}
		in.entries = append(in.entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	in.set = withValue == 0
	return in, nil
}

// loadSQLite runs query against the database at path. One result column
// gives a key set; two give key/value entries. NULL values are empty.
func loadSQLite(ctx context.Context, path, query string) (*input, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != 1 && len(cols) != 2 {
		return nil, fmt.Errorf("query returns %d columns, want (key) or (key, value)", len(cols))
	}

	in := &input{source: path, set: len(cols) == 1}
	for rows.Next() {
		var e phtable.Entry
		if in.set {
			err = rows.Scan(&e.Key)
		} else {
			err = rows.Scan(&e.Key, &e.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		in.entries = append(in.entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return in, nil
}
