package cache

import (
	"sync"

	"github.com/notargets/krnl"
)

// Embedded is a cache literal compiled into a Go package. It is decoded at
// most once per process.
type Embedded struct {
	Version string
	Data    string

	once  sync.Once
	cache *Cache
	err   error
}

type embedKey struct {
	version string
	data    string
}

var (
	registryMu sync.Mutex
	registry   = make(map[embedKey]*Embedded)

	decode = Decode
)

// Embed returns the process-wide cell for a cache literal. Every call with
// the same version and data returns the same *Embedded.
func Embed(version, data string) *Embedded {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := embedKey{version: version, data: data}
	if e, ok := registry[key]; ok {
		return e
	}
	e := &Embedded{Version: version, Data: data}
	registry[key] = e
	return e
}

// Load decodes the literal and checks it against krnl.Version. The result,
// success or failure, is memoized.
func (e *Embedded) Load() (*Cache, error) {
	e.once.Do(func() {
		e.cache, e.err = e.load(krnl.Version)
	})
	return e.cache, e.err
}

func (e *Embedded) load(consumer string) (*Cache, error) {
	if e.Data == "" {
		return &Cache{Version: e.Version}, nil
	}
	c, err := decode(e.Data)
	if err != nil {
		return nil, err
	}
	if c.Version != e.Version {
		return nil, formatError(nil, "cache records version %q but is declared as %q", c.Version, e.Version)
	}
	if err := CheckVersion(c.Version, consumer); err != nil {
		return nil, err
	}
	return c, nil
}

// MustLoad is like Load but panics on a malformed cache. Other errors are
// returned.
func (e *Embedded) MustLoad() (*Cache, error) {
	c, err := e.Load()
	if err != nil {
		if _, ok := err.(*CacheFormatError); ok {
			panic(err)
		}
	}
	return c, err
}
