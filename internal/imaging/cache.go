package imaging

import (
	"image"
	"sync"
)

// Cache provides thread-safe caching of decoded rasters so that switching
// back to a tier, remounting a page, or refreshing a signed URL does not
// download and decode the same object again.
//
// Entries are keyed by AssetKey, so two signatures of one object share an
// entry. Cached images remain in memory until Evict or Clear is called.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		images: make(map[string]image.Image),
	}
}

// Get returns the cached raster for u, if any.
func (c *Cache) Get(u string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[AssetKey(u)]
	return img, ok
}

// Put stores img under u's asset key.
func (c *Cache) Put(u string, img image.Image) {
	c.mu.Lock()
	c.images[AssetKey(u)] = img
	c.mu.Unlock()
}

// Evict removes the entry for u. Unknown URLs are ignored.
func (c *Cache) Evict(u string) {
	c.mu.Lock()
	delete(c.images, AssetKey(u))
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Len returns the number of cached rasters.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
