// Package cache provides a write-through data cache adapter over a memory
// view, with tag and replacement state kept in Akita cache directory
// components. It models the access path of a cached bus without modeling
// timing; correctness-wise it is transparent, which makes it usable as a
// drop-in data bus for a simulated core.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
}

// DefaultConfig returns a small direct-mapped configuration: 4KB with 64B
// lines.
func DefaultConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 1,
		BlockSize:     64,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Data is the data read (for read operations).
	Data uint64
	// Evicted is true if a block was evicted to make room.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted).
	EvictedAddr uint64
}

// Statistics holds cache access statistics.
type Statistics struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// BackingStore is the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store. The second return value is
	// false if the range is not readable.
	Read(addr uint64, size int) ([]byte, bool)
	// Write stores data to the backing store, reporting success.
	Write(addr uint64, data []byte) bool
}

// Cache is a write-through, no-write-allocate cache using Akita cache
// directory components for tag and LRU state, with its own data storage.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	stats     Statistics
	backing   BackingStore
}

// New creates a cache with the given configuration over a backing store.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config { return c.config }

// Stats returns the access statistics.
func (c *Cache) Stats() Statistics { return c.stats }

// ResetStats clears the access statistics.
func (c *Cache) ResetStats() { c.stats = Statistics{} }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Read performs a cached read. On a miss the block is fetched from the
// backing store; the second return value of the result is false when the
// backing store cannot supply the block.
func (c *Cache) Read(addr uint64, size int) (AccessResult, bool) {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	offset := addr % uint64(c.config.BlockSize)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		data := extractData(c.dataStore[c.blockIndex(block)], offset, size)
		return AccessResult{Hit: true, Data: data}, true
	}

	c.stats.Misses++
	result := AccessResult{}

	blockData, ok := c.backing.Read(blockAddr, c.config.BlockSize)
	if !ok {
		return result, false
	}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result, false
	}
	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag
	}

	copy(c.dataStore[c.blockIndex(victim)], blockData)
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	result.Data = extractData(c.dataStore[c.blockIndex(victim)], offset, size)
	return result, true
}

// Write performs a cached write. The data always goes straight through to
// the backing store; a resident block is updated in place and a miss does
// not allocate.
func (c *Cache) Write(addr uint64, size int, data uint64) (AccessResult, bool) {
	c.stats.Writes++

	buf := make([]byte, size)
	storeData(buf, 0, size, data)
	if !c.backing.Write(addr, buf) {
		return AccessResult{}, false
	}

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		offset := addr % uint64(c.config.BlockSize)
		storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
		return AccessResult{Hit: true}, true
	}

	c.stats.Misses++
	return AccessResult{}, true
}

// Invalidate marks the cache line covering addr as invalid.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Reset invalidates every line and clears the statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// extractData extracts a little-endian value of the given size from data.
func extractData(data []byte, offset uint64, size int) uint64 {
	if int(offset)+size > len(data) {
		return 0
	}
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData stores a little-endian value of the given size into data.
func storeData(data []byte, offset uint64, size int, value uint64) {
	if int(offset)+size > len(data) {
		return
	}
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
