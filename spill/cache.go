package spill

import (
	"container/list"
	"fmt"
	"log"
	"os"
	"path"
	"sync"

	"github.com/docker/docker/pkg/locker"
	uuid "github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"

	errors "github.com/go-skim/skim/errors"
)

// Config configures a Cache
type Config struct {
	// Size is the total number of entries the two memory tiers may hold
	Size int
	// CompressedFraction is the fraction of Size reserved for the
	// compressed tier
	CompressedFraction float32
	// DiskPath is the directory receiving entries demoted past memory
	DiskPath string
	// Codec compresses the compressed and disk tiers
	Codec Codec
}

// validate reports every configuration violation at once
func (c *Config) validate() error {
	var result *multierror.Error
	if c.Size < 5 {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("cache size %d must be at least 5", c.Size)})
	}
	if c.CompressedFraction < 0 || c.CompressedFraction > 1 {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("compressed fraction %f must be between 0 and 1", c.CompressedFraction)})
	}
	if c.DiskPath == "" {
		result = multierror.Append(result, errors.ConfigurationError{Reason: "disk path must not be empty"})
	}
	if c.Codec > CodecZstd {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("unknown spill codec %d", c.Codec)})
	}
	return result.ErrorOrNil()
}

// Cache is a tiered store for serialized cell state. Fresh entries land in
// an uncompressed memory tier; as tiers fill, the least recently added
// entries demote to a compressed memory tier and then to envelope files on
// disk. Get removes the entry from whichever tier holds it, since spilled
// state is merged back exactly once.
type Cache struct {
	config                     *Config
	ser                        *Serializer
	serLock                    sync.Mutex
	klocks                     *locker.Locker
	smapLock                   sync.Mutex
	smap                       map[string]*list.Element
	compressedSmapLock         sync.Mutex
	compressedSmap             map[string]*list.Element
	recentUncompressedListLock sync.Mutex
	recentUncompressedList     *list.List // back is oldest, front is newest
	recentCompressedListLock   sync.Mutex
	recentCompressedList       *list.List // back is oldest, front is newest
	diskLock                   sync.Mutex
	disk                       map[string]string // key -> envelope file path
	maxUncompressed            int
	maxCompressed              int
}

type cachedState struct {
	key   string
	value []byte
}

// NewCache produces a Cache for the given Config, creating the disk tier's
// directory if needed
func NewCache(config *Config) (*Cache, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.DiskPath, 0755); err != nil {
		return nil, err
	}
	ser, err := NewSerializer(config.Codec)
	if err != nil {
		return nil, err
	}
	maxUncompressed := int(float32(config.Size) * (1 - config.CompressedFraction))
	maxCompressed := config.Size - maxUncompressed
	return &Cache{
		config:                 config,
		ser:                    ser,
		klocks:                 locker.New(),
		smap:                   make(map[string]*list.Element),
		compressedSmap:         make(map[string]*list.Element),
		recentUncompressedList: list.New(),
		recentCompressedList:   list.New(),
		disk:                   make(map[string]string),
		maxUncompressed:        maxUncompressed,
		maxCompressed:          maxCompressed,
	}, nil
}

// Destroy deletes any disk-resident entries and releases compression
// state. The Cache must not be used after Destroy.
func (c *Cache) Destroy() error {
	var result *multierror.Error
	c.diskLock.Lock()
	for key, p := range c.disk {
		if err := os.Remove(p); err != nil {
			result = multierror.Append(result, err)
		}
		delete(c.disk, key)
	}
	c.diskLock.Unlock()
	if err := c.ser.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Len returns the number of entries across all tiers
func (c *Cache) Len() int {
	c.smapLock.Lock()
	n := len(c.smap)
	c.smapLock.Unlock()
	c.compressedSmapLock.Lock()
	n += len(c.compressedSmap)
	c.compressedSmapLock.Unlock()
	c.diskLock.Lock()
	n += len(c.disk)
	c.diskLock.Unlock()
	return n
}

// Add stores serialized cell state under key, demoting the oldest entries
// to colder tiers as the hotter ones overflow. Keys are expected to be
// unique until removed by Get.
func (c *Cache) Add(key string, state []byte) error {
	c.klocks.Lock(key)
	defer c.klocks.Unlock(key)

	c.smapLock.Lock()
	c.recentUncompressedListLock.Lock()
	e := c.recentUncompressedList.PushFront(&cachedState{key: key, value: state})
	c.smap[key] = e
	over := c.recentUncompressedList.Len() > c.maxUncompressed
	c.recentUncompressedListLock.Unlock()
	c.smapLock.Unlock()

	// if we're full, it can only be because the uncompressed tier has
	// grown, so demote its oldest entry
	if over {
		if err := c.demoteToCompressed(); err != nil {
			return err
		}
	}
	return nil
}

// Get removes the state for key from whichever tier holds it and returns
// it. Returns a NotCachedError otherwise.
func (c *Cache) Get(key string) (value []byte, err error) {
	c.klocks.Lock(key)
	defer c.klocks.Unlock(key)
	value, err = c.getFromCache(key)
	if err != nil {
		value, err = c.getFromCompressedCache(key)
		if err != nil {
			value, err = c.getFromDisk(key)
			if err != nil {
				return nil, err
			}
		}
	}
	return
}

// getFromCache removes the state for key from the uncompressed tier and
// returns it, if present
func (c *Cache) getFromCache(key string) ([]byte, error) {
	c.smapLock.Lock()
	defer c.smapLock.Unlock()
	ve, ok := c.smap[key]
	if !ok {
		return nil, errors.NotCachedError{Key: key}
	}
	delete(c.smap, key)
	c.recentUncompressedListLock.Lock()
	c.recentUncompressedList.Remove(ve)
	c.recentUncompressedListLock.Unlock()
	return ve.Value.(*cachedState).value, nil
}

// getFromCompressedCache removes the state for key from the compressed
// tier, unwraps it and returns it, if present
func (c *Cache) getFromCompressedCache(key string) ([]byte, error) {
	c.compressedSmapLock.Lock()
	cve, ok := c.compressedSmap[key]
	if !ok {
		c.compressedSmapLock.Unlock()
		return nil, errors.NotCachedError{Key: key}
	}
	delete(c.compressedSmap, key)
	c.recentCompressedListLock.Lock()
	c.recentCompressedList.Remove(cve)
	c.recentCompressedListLock.Unlock()
	c.compressedSmapLock.Unlock()

	c.serLock.Lock()
	defer c.serLock.Unlock()
	return c.ser.Unwrap(cve.Value.(*cachedState).value)
}

// getFromDisk removes the state for key from the disk tier, unwraps it and
// returns it, if present
func (c *Cache) getFromDisk(key string) ([]byte, error) {
	c.diskLock.Lock()
	tempFilePath, ok := c.disk[key]
	if !ok {
		c.diskLock.Unlock()
		return nil, errors.NotCachedError{Key: key}
	}
	delete(c.disk, key)
	c.diskLock.Unlock()

	buf, err := os.ReadFile(tempFilePath)
	if err != nil {
		return nil, fmt.Errorf("Unable to load disk-swapped state %s: %v", tempFilePath, err)
	}
	if err = os.Remove(tempFilePath); err != nil {
		log.Printf("Unable to remove file %s", tempFilePath)
	}
	c.serLock.Lock()
	defer c.serLock.Unlock()
	return c.ser.Unwrap(buf)
}

// demoteToCompressed moves the oldest uncompressed entry into the
// compressed tier, pushing that tier's oldest entry to disk if it
// overflows in turn
func (c *Cache) demoteToCompressed() error {
	c.smapLock.Lock()
	c.recentUncompressedListLock.Lock()
	back := c.recentUncompressedList.Back()
	if back == nil {
		c.recentUncompressedListLock.Unlock()
		c.smapLock.Unlock()
		return nil
	}
	c.recentUncompressedList.Remove(back)
	cs := back.Value.(*cachedState)
	delete(c.smap, cs.key)
	c.recentUncompressedListLock.Unlock()
	c.smapLock.Unlock()

	c.serLock.Lock()
	wrapped, err := c.ser.Wrap(cs.value)
	c.serLock.Unlock()
	if err != nil {
		return err
	}

	c.compressedSmapLock.Lock()
	c.recentCompressedListLock.Lock()
	e := c.recentCompressedList.PushFront(&cachedState{key: cs.key, value: wrapped})
	c.compressedSmap[cs.key] = e
	over := c.recentCompressedList.Len() > c.maxCompressed
	c.recentCompressedListLock.Unlock()
	c.compressedSmapLock.Unlock()

	if over {
		return c.demoteToDisk()
	}
	return nil
}

// demoteToDisk moves the oldest compressed entry into an envelope file
// under the configured disk path
func (c *Cache) demoteToDisk() error {
	c.compressedSmapLock.Lock()
	c.recentCompressedListLock.Lock()
	back := c.recentCompressedList.Back()
	if back == nil {
		c.recentCompressedListLock.Unlock()
		c.compressedSmapLock.Unlock()
		return nil
	}
	c.recentCompressedList.Remove(back)
	cs := back.Value.(*cachedState)
	delete(c.compressedSmap, cs.key)
	c.recentCompressedListLock.Unlock()
	c.compressedSmapLock.Unlock()

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	tempFilePath := path.Join(c.config.DiskPath, id.String())
	if err := os.WriteFile(tempFilePath, cs.value, 0644); err != nil {
		return err
	}
	c.diskLock.Lock()
	c.disk[cs.key] = tempFilePath
	c.diskLock.Unlock()
	return nil
}
