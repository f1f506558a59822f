package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/phrazzld/apptest/internal/platform/logger"
)

// Seeder fills the database with data. Go seeders take precedence over
// seed files of the same name.
type Seeder func(ctx context.Context, db *sql.DB) error

// RegisterSeeder adds a Go seeder under name.
func (m *Migrator) RegisterSeeder(name string, s Seeder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeders[name] = s
}

// Seed runs the seeder called name: a registered Go seeder or <name>.sql
// in the seed path. An empty name runs every seeder in name order.
func (m *Migrator) Seed(ctx context.Context, env, name string) error {
	if err := m.checkEnvironment(env); err != nil {
		return err
	}

	files, err := m.seedFiles()
	if err != nil {
		return err
	}

	names := []string{name}
	if name == "" {
		names = m.seederNames(files)
	}

	log := logger.FromContext(ctx).With(slog.String("environment", env))
	for _, n := range names {
		if err := m.runSeeder(ctx, n, files); err != nil {
			return err
		}
		log.Debug("seeder ran", slog.String("seeder", n))
	}
	return nil
}

func (m *Migrator) runSeeder(ctx context.Context, name string, files map[string]string) error {
	m.mu.Lock()
	s, ok := m.seeders[name]
	m.mu.Unlock()
	if ok {
		if err := s(ctx, m.db); err != nil {
			return fmt.Errorf("seeder %s: %w", name, err)
		}
		return nil
	}

	file, ok := files[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeederNotFound, name)
	}
	dir, err := m.dir(m.cfg.SeedPath)
	if err != nil {
		return fmt.Errorf("seed path %s: %w", m.cfg.SeedPath, err)
	}
	data, err := fs.ReadFile(dir, file)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", file, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	if _, err := m.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("seed %s: %w", file, err)
	}
	return nil
}

// seedFiles maps seeder name to file name for the .sql files in the seed
// path. A missing or unset seed path has no files.
func (m *Migrator) seedFiles() (map[string]string, error) {
	files := make(map[string]string)
	if m.cfg.SeedPath == "" {
		return files, nil
	}

	dir, err := m.dir(m.cfg.SeedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return files, nil
		}
		return nil, fmt.Errorf("seed path %s: %w", m.cfg.SeedPath, err)
	}
	entries, err := fs.ReadDir(dir, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isSQLFile(e.Name()) {
			continue
		}
		name := e.Name()
		files[name[:len(name)-len(".sql")]] = name
	}
	return files, nil
}

func (m *Migrator) seederNames(files map[string]string) []string {
	set := make(map[string]bool, len(files))
	for n := range files {
		set[n] = true
	}
	m.mu.Lock()
	for n := range m.seeders {
		set[n] = true
	}
	m.mu.Unlock()

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
