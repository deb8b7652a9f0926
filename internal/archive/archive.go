// Package archive persists clustering runs to an object store as
// compressed, checksummed protobuf-wire records.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pointlab/pointlab/internal/cache"
	"github.com/pointlab/pointlab/internal/logging"
	"github.com/pointlab/pointlab/internal/metrics"
	"github.com/pointlab/pointlab/pkg/objectstore"
)

var (
	// ErrNotFound is returned when no run exists under an ID.
	ErrNotFound = errors.New("run not found")
	// ErrCorrupt is returned when a stored record fails to decode.
	ErrCorrupt = errors.New("corrupt run record")
	// ErrInvalidRun is returned when saving a run whose labels do not match its points and centers.
	ErrInvalidRun = errors.New("invalid run")
	// ErrInvalidID is returned for run IDs containing characters outside [0-9a-f-].
	ErrInvalidID = errors.New("invalid run id")
	// ErrInvalidLabel is returned when asking for members of a cluster that does not exist.
	ErrInvalidLabel = errors.New("invalid cluster label")
)

const (
	keyPrefix   = "runs/"
	keySuffix   = ".plr"
	contentType = "application/x-pointlab-run"

	defaultListLimit = 100
)

// Key returns the object key a run ID is stored under.
func Key(id string) string {
	return keyPrefix + id + keySuffix
}

func checkID(id string) error {
	if id == "" || len(id) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && c != '-' {
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

// Info summarizes a stored run without decoding it.
type Info struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Archive saves and loads runs.
type Archive struct {
	store  objectstore.Store
	codec  *codec
	want   Codec
	logger *logging.Logger
	cache  *cache.MemoryCache
}

// New creates an archive writing records compressed with want.
func New(store objectstore.Store, want Codec, logger *logging.Logger) (*Archive, error) {
	if want != CodecNone && want != CodecZstd && want != CodecLZ4 {
		return nil, fmt.Errorf("unsupported codec %s", want)
	}
	c, err := newCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Archive{store: store, codec: c, want: want, logger: logger}, nil
}

// UseCache keeps encoded records in c so repeated loads skip the store. It
// must be called before the archive is shared.
func (a *Archive) UseCache(c *cache.MemoryCache) {
	a.cache = c
}

// Close releases the compression state.
func (a *Archive) Close() {
	a.codec.close()
}

// Save writes run and returns its ID. A missing ID or creation time is
// filled in; seeded runs get a content fingerprint so repeating the same
// request overwrites the same record.
func (a *Archive) Save(ctx context.Context, run *Run) (string, error) {
	if err := run.validate(); err != nil {
		return "", err
	}
	if run.ID == "" {
		run.ID = run.NewID()
	} else if err := checkID(run.ID); err != nil {
		return "", err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	data, err := a.codec.encode(run, a.want)
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	sum := sha256.Sum256(data)

	_, err = a.store.Put(ctx, Key(run.ID), bytes.NewReader(data), int64(len(data)), &objectstore.PutOptions{
		ContentType: contentType,
		Checksum:    base64.StdEncoding.EncodeToString(sum[:]),
	})
	if err != nil {
		return "", fmt.Errorf("store run %s: %w", run.ID, err)
	}
	a.remember(run.ID, data)
	metrics.AddArchiveBytes(a.want.String(), len(data))
	a.logger.Debug("archived run",
		"run_id", run.ID,
		"bytes", len(data),
		"points", len(run.Points),
		"k", run.K,
		"compression", a.want.String(),
	)
	return run.ID, nil
}

// Load reads and decodes a run.
func (a *Archive) Load(ctx context.Context, id string) (*Run, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if a.cache != nil {
		if data, err := a.cache.Get(id); err == nil {
			if run, err := a.codec.decode(data); err == nil {
				return run, nil
			}
			a.cache.Delete(id)
		}
	}

	rc, _, err := a.store.Get(ctx, Key(id))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	run, err := a.codec.decode(data)
	if err != nil {
		a.logger.Warn("failed to decode run", "run_id", id, "error", err)
		return nil, err
	}
	a.remember(id, data)
	return run, nil
}

// List returns up to limit stored runs ordered by ID. limit <= 0 uses a
// default of 100.
func (a *Archive) List(ctx context.Context, limit int) ([]Info, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		infos  []Info
		marker string
	)
	for len(infos) < limit {
		res, err := a.store.List(ctx, &objectstore.ListOptions{
			Prefix:  keyPrefix,
			Marker:  marker,
			MaxKeys: limit - len(infos),
		})
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		for _, obj := range res.Objects {
			id, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, keyPrefix), keySuffix)
			if !ok || checkID(id) != nil {
				continue
			}
			infos = append(infos, Info{ID: id, Size: obj.Size, UpdatedAt: obj.LastModified})
		}
		if !res.IsTruncated {
			break
		}
		marker = res.NextMarker
	}
	return infos, nil
}

// Delete removes a run.
func (a *Archive) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if a.cache != nil {
		a.cache.Delete(id)
	}
	if _, err := a.store.Head(ctx, Key(id)); err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
		}
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if err := a.store.Delete(ctx, Key(id)); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return nil
}

func (a *Archive) remember(id string, data []byte) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Put(id, data); err != nil {
		a.logger.Debug("run not cached", "run_id", id, "bytes", len(data), "error", err)
	}
}
