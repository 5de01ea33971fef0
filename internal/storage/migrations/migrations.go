package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// ErrUnterminatedLiteral is returned when a migration ends inside a quoted string.
var ErrUnterminatedLiteral = errors.New("unterminated string literal")

// Migration is one embedded SQL file. Version is the file name without the
// .sql suffix and orders migrations lexically.
type Migration struct {
	Version    string
	Statements []string
}

// Load reads the SQL files of dir from fsys, ordered by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		stmts, err := splitStatements(string(data))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		if len(stmts) == 0 {
			continue
		}
		out = append(out, Migration{
			Version:    strings.TrimSuffix(entry.Name(), ".sql"),
			Statements: stmts,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// pending filters out migrations whose version was already applied.
func pending(all []Migration, applied map[string]struct{}) []Migration {
	var out []Migration
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// splitStatements splits a script on semicolons outside single-quoted
// literals. Lines starting with -- are skipped. The ClickHouse driver
// rejects multi-statement Exec.
func splitStatements(script string) ([]string, error) {
	var (
		stmts  []string
		cur    strings.Builder
		quoted bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		if !quoted && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			if ch == ';' && !quoted {
				flush()
				continue
			}
			// '' inside a literal toggles twice and stays quoted
			if ch == '\'' {
				quoted = !quoted
			}
			cur.WriteByte(ch)
		}
		cur.WriteByte('\n')
	}
	if quoted {
		return nil, ErrUnterminatedLiteral
	}
	flush()
	return stmts, nil
}
