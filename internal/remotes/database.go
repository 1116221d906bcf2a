package remotes

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Snapshot is one immutable generation of the remote database. Readers hold
// a snapshot for the duration of an operation; a reload never mutates an
// existing snapshot.
type Snapshot struct {
	remotes []*Remote
	byName  map[string]*Remote
}

// All returns the remotes in config file order.
func (s *Snapshot) All() []*Remote { return s.remotes }

// Find returns the remote with the given name.
func (s *Snapshot) Find(name string) (*Remote, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// FindCode resolves a remote name and button name to the code definition.
func (s *Snapshot) FindCode(remoteName, codeName string) (*Remote, *Code, error) {
	r, ok := s.byName[remoteName]
	if !ok {
		return nil, nil, fmt.Errorf("remote %q: %w", remoteName, ErrNotFound)
	}
	c, ok := r.Code(codeName)
	if !ok {
		return nil, nil, fmt.Errorf("code %q in remote %q: %w", codeName, remoteName, ErrNotFound)
	}
	return r, c, nil
}

// Len returns the number of loaded remotes.
func (s *Snapshot) Len() int { return len(s.remotes) }

// Database is the in-memory collection of remote definitions. The whole
// collection is replaced atomically on reload; a failed reload keeps the
// previous snapshot.
type Database struct {
	path    string
	current atomic.Pointer[Snapshot]
}

// Load reads the remote definitions at path and returns a database holding
// them. A parse error here is fatal to the caller: there is no previous
// snapshot to fall back to.
func Load(path string) (*Database, error) {
	snap, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	db := &Database{path: path}
	db.current.Store(snap)
	log.Info().
		Str("path", path).
		Int("remotes", snap.Len()).
		Msg("remote database loaded")
	return db, nil
}

// Empty returns a database with no remotes, for daemons that only relay
// peer events.
func Empty() *Database {
	db := &Database{}
	db.current.Store(&Snapshot{byName: map[string]*Remote{}})
	return db
}

// Snapshot returns the current generation.
func (db *Database) Snapshot() *Snapshot { return db.current.Load() }

// Path returns the config file backing the database.
func (db *Database) Path() string { return db.path }

// Reload re-reads the config file and swaps in the new snapshot. On error
// the previous snapshot stays in place and keeps serving readers.
func (db *Database) Reload() error {
	if db.path == "" {
		return nil
	}
	snap, err := loadSnapshot(db.path)
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", db.path).
			Msg("reload failed, keeping previous remote database")
		return err
	}
	db.current.Store(snap)
	log.Info().
		Str("path", db.path).
		Int("remotes", snap.Len()).
		Msg("remote database reloaded")
	return nil
}

func loadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open remotes config: %w", err)
	}
	defer f.Close()

	list, err := parseConfig(path, f)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Remote, len(list))
	for _, r := range list {
		byName[r.Name] = r
	}
	return &Snapshot{remotes: list, byName: byName}, nil
}
