package sql

import (
	"cmp"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations brings the schema of a database up to date.
type Migrations func(Executor) error

// Migration is one numbered schema change. Files are named
// <version>_<description>.sql and hold ';' separated statements.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// LoadMigrations reads the migrations in dir of fsys ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var rst []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, _, _ := strings.Cut(e.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid migration %s: %w", e.Name(), err)
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		m := Migration{Version: version, Name: e.Name()}
		for _, stmt := range strings.Split(string(data), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				m.Statements = append(m.Statements, stmt+";")
			}
		}
		rst = append(rst, m)
	}
	slices.SortFunc(rst, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	for i := 1; i < len(rst); i++ {
		if rst[i].Version == rst[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", rst[i].Version)
		}
	}
	return rst, nil
}

// Migrate applies the migrations newer than the schema version of the
// database and records the new version.
func Migrate(migrations []Migration) Migrations {
	return func(db Executor) error {
		current, err := Version(db)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if m.Version <= current {
				continue
			}
			for _, stmt := range m.Statements {
				if _, err := db.Exec(stmt, nil, nil); err != nil {
					return fmt.Errorf("exec %s: %w", m.Name, err)
				}
			}
			// pragma values cannot be bound
			if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", m.Version), nil, nil); err != nil {
				return fmt.Errorf("set schema version %d: %w", m.Version, err)
			}
		}
		return nil
	}
}

func embeddedMigrations(db Executor) error {
	migrations, err := LoadMigrations(embedded, "migrations")
	if err != nil {
		return err
	}
	return Migrate(migrations)(db)
}

// Version returns the schema version of the database.
func Version(db Executor) (int, error) {
	var version int
	if _, err := db.Exec("PRAGMA user_version;", nil, func(stmt *Statement) bool {
		version = stmt.ColumnInt(0)
		return false
	}); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
