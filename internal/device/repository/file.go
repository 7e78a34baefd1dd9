package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// devicesFile is the per-tenant record file name.
const devicesFile = "devices.json"

// deviceRecord is the on-disk shape: {"sessions": ["sales", "support"]}.
type deviceRecord struct {
	Sessions []string `json:"sessions"`
}

// FileRepository stores one devices.json per tenant under a base directory.
// Used when no database is configured. Read-modify-write for a tenant is
// guarded by a per-tenant mutex, so two sessions of the same tenant
// transitioning concurrently cannot lose an insert or remove.
type FileRepository struct {
	fs      afero.Fs
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileRepository returns a file-backed device repository rooted at
// baseDir on the given filesystem. Tests pass an in-memory afero Fs.
func NewFileRepository(fs afero.Fs, baseDir string) *FileRepository {
	return &FileRepository{
		fs:      fs,
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *FileRepository) tenantLock(tenantID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tenantID] = l
	}
	return l
}

func (r *FileRepository) recordPath(tenantID string) string {
	return filepath.Join(r.baseDir, tenantID, devicesFile)
}

func (r *FileRepository) read(tenantID string) (deviceRecord, error) {
	data, err := afero.ReadFile(r.fs, r.recordPath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return deviceRecord{}, nil
		}
		return deviceRecord{}, err
	}
	var rec deviceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return deviceRecord{}, err
	}
	return rec, nil
}

func (r *FileRepository) write(tenantID string, rec deviceRecord) error {
	if rec.Sessions == nil {
		rec.Sessions = []string{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := r.fs.MkdirAll(filepath.Join(r.baseDir, tenantID), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(r.fs, r.recordPath(tenantID), data, 0o644)
}

// List returns the session ids recorded for the tenant.
func (r *FileRepository) List(ctx context.Context, tenantID string) ([]string, error) {
	l := r.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()
	rec, err := r.read(tenantID)
	if err != nil {
		return nil, err
	}
	return rec.Sessions, nil
}

// Add records a session id for the tenant. No-op if already present.
func (r *FileRepository) Add(ctx context.Context, tenantID, sessionID string) error {
	l := r.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()
	rec, err := r.read(tenantID)
	if err != nil {
		return err
	}
	for _, id := range rec.Sessions {
		if id == sessionID {
			return nil
		}
	}
	rec.Sessions = append(rec.Sessions, sessionID)
	return r.write(tenantID, rec)
}

// Remove deletes a session id for the tenant. No-op if absent.
func (r *FileRepository) Remove(ctx context.Context, tenantID, sessionID string) error {
	l := r.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()
	rec, err := r.read(tenantID)
	if err != nil {
		return err
	}
	kept := rec.Sessions[:0]
	for _, id := range rec.Sessions {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	rec.Sessions = kept
	return r.write(tenantID, rec)
}

// Tenants returns all tenants that have a device record on disk.
func (r *FileRepository) Tenants(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tenants []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ok, err := afero.Exists(r.fs, filepath.Join(r.baseDir, e.Name(), devicesFile))
		if err != nil {
			return nil, err
		}
		if ok {
			tenants = append(tenants, e.Name())
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}
