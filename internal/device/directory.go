package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Directory is the persistent list of every device that has ever registered.
//
// It is a JSON array on disk, loaded once by OpenDirectory and rewritten
// after every change. Records are unique by IMEI; the last write wins.
//
// All public methods are thread-safe. Returned records are deep copies.
type Directory struct {
	path    string
	mu      sync.Mutex
	records []*RegisteredDevice
	logger  Logger
	now     func() time.Time
}

// OpenDirectory loads the directory stored at path.
// A missing file yields an empty directory; the file is created on the
// first change.
//
// Parameters:
//   - path: Location of the JSON document
//
// Returns:
//   - *Directory: Directory ready for use
//   - error: If the file exists but cannot be read or parsed
func OpenDirectory(path string) (*Directory, error) {
	d := &Directory{
		path:   path,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("reading device directory: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return d, nil
	}

	var records []*RegisteredDevice
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing device directory %s: %w", path, err)
	}
	d.records = dedupe(records)
	return d, nil
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// Path returns the backing file location.
func (d *Directory) Path() string {
	return d.path
}

// All returns every record in first-registration order.
func (d *Directory) All() []RegisteredDevice {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]RegisteredDevice, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, *r.DeepCopy())
	}
	return out
}

// Find returns the record for imei or ErrDeviceNotFound.
func (d *Directory) Find(imei string) (*RegisteredDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r := d.lookup(imei); r != nil {
		return r.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

// Touch records a registration: a new record on first sight, otherwise the
// base info is refreshed and last_seen moves to now.
func (d *Directory) Touch(id Identity) (*RegisteredDevice, error) {
	id.SignalQuality = 0

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var r *RegisteredDevice
	existing := d.lookup(id.IMEI)
	if existing == nil {
		r = &RegisteredDevice{
			BaseInfo:  id,
			Tags:      []string{},
			FirstSeen: now,
			LastSeen:  now,
		}
	} else {
		r = existing.DeepCopy()
		r.BaseInfo = id
		r.LastSeen = now
	}

	if err := d.commitLocked(r); err != nil {
		return nil, err
	}
	if existing == nil {
		d.logger.Info("new device in directory", "imei", id.IMEI)
	}
	return r.DeepCopy(), nil
}

// SetName sets the display name for imei. An empty name clears it.
func (d *Directory) SetName(imei, name string) (*RegisteredDevice, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
	}

	return d.update(imei, func(r *RegisteredDevice) {
		if name == "" {
			r.Name = nil
			return
		}
		r.Name = &name
	})
}

// AddTag adds tag to imei. Adding a tag already present is a no-op.
func (d *Directory) AddTag(imei, tag string) (*RegisteredDevice, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}
	tag = normaliseTag(tag)

	return d.update(imei, func(r *RegisteredDevice) {
		if !slices.Contains(r.Tags, tag) {
			r.Tags = append(r.Tags, tag)
			slices.Sort(r.Tags)
		}
	})
}

// RemoveTag removes tag from imei. Removing an absent tag is a no-op.
func (d *Directory) RemoveTag(imei, tag string) (*RegisteredDevice, error) {
	tag = normaliseTag(tag)

	return d.update(imei, func(r *RegisteredDevice) {
		r.Tags = slices.DeleteFunc(r.Tags, func(t string) bool { return t == tag })
	})
}

// update applies fn to a copy of the record for imei and saves it.
func (d *Directory) update(imei string, fn func(*RegisteredDevice)) (*RegisteredDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.lookup(imei)
	if existing == nil {
		return nil, ErrDeviceNotFound
	}
	r := existing.DeepCopy()
	fn(r)

	if err := d.commitLocked(r); err != nil {
		return nil, err
	}
	return r.DeepCopy(), nil
}

// commitLocked saves the records with r in place of its IMEI's current
// record, or appended when new. Memory is only changed once the file is
// written. Caller must hold d.mu.
func (d *Directory) commitLocked(r *RegisteredDevice) error {
	next := make([]*RegisteredDevice, 0, len(d.records)+1)
	replaced := false
	for _, cur := range d.records {
		if cur.BaseInfo.IMEI == r.BaseInfo.IMEI {
			next = append(next, r)
			replaced = true
			continue
		}
		next = append(next, cur)
	}
	if !replaced {
		next = append(next, r)
	}
	next = dedupe(next)

	if err := d.saveLocked(next); err != nil {
		return err
	}
	d.records = next
	return nil
}

// lookup returns the live record for imei. Caller must hold d.mu.
func (d *Directory) lookup(imei string) *RegisteredDevice {
	for _, r := range d.records {
		if r.BaseInfo.IMEI == imei {
			return r
		}
	}
	return nil
}

// saveLocked writes records atomically via a temp file and rename.
// Caller must hold d.mu.
func (d *Directory) saveLocked(records []*RegisteredDevice) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device directory: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", d.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck,gosec // already failing
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("writing device directory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("closing device directory: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("replacing device directory: %w", err)
	}
	return nil
}

// dedupe keeps the last record for each IMEI at the position of its first
// occurrence.
func dedupe(records []*RegisteredDevice) []*RegisteredDevice {
	pos := make(map[string]int, len(records))
	out := make([]*RegisteredDevice, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		if i, ok := pos[r.BaseInfo.IMEI]; ok {
			out[i] = r
			continue
		}
		pos[r.BaseInfo.IMEI] = len(out)
		out = append(out, r)
	}
	return out
}
