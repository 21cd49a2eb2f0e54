package chainsync

import (
	"sync"

	"github.com/geanlabs/gean/types"
)

// BlockCache holds blocks seen during sync and tracks orphans: blocks whose
// parent has not been seen yet. Gossip timing, parallel req/resp downloads,
// and brief disconnects all make out-of-order arrival routine, so every block
// passes through here before the store decides it is processable.
type BlockCache struct {
	mu sync.RWMutex

	blocks   map[types.Root]*types.SignedBlock
	orphans  map[types.Root]struct{}
	children map[types.Root]map[types.Root]struct{} // parent root -> child roots
}

// NewBlockCache creates an empty block cache.
func NewBlockCache() *BlockCache {
	return &BlockCache{
		blocks:   make(map[types.Root]*types.SignedBlock),
		orphans:  make(map[types.Root]struct{}),
		children: make(map[types.Root]map[types.Root]struct{}),
	}
}

// AddBlock inserts a block, updating orphan and parent-child tracking, and
// returns its root.
func (c *BlockCache) AddBlock(block *types.SignedBlock) types.Root {
	root, _ := block.Message.HashTreeRoot()
	parentRoot := block.Message.ParentRoot

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks[root] = block

	if c.children[parentRoot] == nil {
		c.children[parentRoot] = make(map[types.Root]struct{})
	}
	c.children[parentRoot][root] = struct{}{}

	if !parentRoot.IsZero() {
		if _, known := c.blocks[parentRoot]; !known {
			c.orphans[root] = struct{}{}
		}
	}

	// Adding this block may resolve orphans that were waiting on it.
	for child := range c.children[root] {
		delete(c.orphans, child)
	}

	return root
}

// GetBlock retrieves a cached block by root.
func (c *BlockCache) GetBlock(root types.Root) (*types.SignedBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[root]
	return b, ok
}

// Contains reports whether a root is cached.
func (c *BlockCache) Contains(root types.Root) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocks[root]
	return ok
}

// IsOrphan reports whether a cached block's parent is unknown.
func (c *BlockCache) IsOrphan(root types.Root) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.orphans[root]
	return ok
}

// GetOrphans returns all currently orphaned block roots.
func (c *BlockCache) GetOrphans() []types.Root {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Root, 0, len(c.orphans))
	for root := range c.orphans {
		out = append(out, root)
	}
	return out
}

// GetMissingParents returns the deduplicated set of parent roots referenced by
// orphans but not themselves cached.
func (c *BlockCache) GetMissingParents() []types.Root {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[types.Root]struct{})
	var out []types.Root
	for orphanRoot := range c.orphans {
		block, ok := c.blocks[orphanRoot]
		if !ok {
			continue
		}
		parentRoot := block.Message.ParentRoot
		if parentRoot.IsZero() {
			continue
		}
		if _, cached := c.blocks[parentRoot]; cached {
			continue
		}
		if _, dup := seen[parentRoot]; dup {
			continue
		}
		seen[parentRoot] = struct{}{}
		out = append(out, parentRoot)
	}
	return out
}

// GetProcessableBlocks returns blocks whose parent is known (or genesis).
func (c *BlockCache) GetProcessableBlocks() []types.Root {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []types.Root
	for root, block := range c.blocks {
		parentRoot := block.Message.ParentRoot
		if parentRoot.IsZero() {
			out = append(out, root)
			continue
		}
		if _, ok := c.blocks[parentRoot]; ok {
			out = append(out, root)
		}
	}
	return out
}

// RemoveBlock deletes a block, marking its children as orphans since their
// parent chain is no longer resolvable through the cache.
func (c *BlockCache) RemoveBlock(root types.Root) (*types.SignedBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	block, ok := c.blocks[root]
	if !ok {
		return nil, false
	}
	delete(c.blocks, root)
	delete(c.orphans, root)

	parentRoot := block.Message.ParentRoot
	if siblings := c.children[parentRoot]; siblings != nil {
		delete(siblings, root)
		if len(siblings) == 0 {
			delete(c.children, parentRoot)
		}
	}

	for child := range c.children[root] {
		c.orphans[child] = struct{}{}
	}

	return block, true
}

// GetSlot returns the slot of a cached block.
func (c *BlockCache) GetSlot(root types.Root) (types.Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.blocks[root]
	if !ok {
		return 0, false
	}
	return block.Message.Slot, true
}

// GetChildren returns the known children of a block.
func (c *BlockCache) GetChildren(root types.Root) []types.Root {
	c.mu.RLock()
	defer c.mu.RUnlock()
	children := c.children[root]
	out := make([]types.Root, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	return out
}

// GetChainLength walks parent links from root back to genesis or the earliest
// cached ancestor, returning the number of hops taken.
func (c *BlockCache) GetChainLength(root types.Root) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.blocks[root]; !ok {
		return 0, false
	}

	length := 0
	current := root
	for {
		block, ok := c.blocks[current]
		if !ok {
			break
		}
		parentRoot := block.Message.ParentRoot
		if parentRoot.IsZero() {
			break
		}
		length++
		if _, ok := c.blocks[parentRoot]; !ok {
			break
		}
		current = parentRoot
	}
	return length, true
}

// Clear empties the cache.
func (c *BlockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = make(map[types.Root]*types.SignedBlock)
	c.orphans = make(map[types.Root]struct{})
	c.children = make(map[types.Root]map[types.Root]struct{})
}

// Len returns the number of cached blocks.
func (c *BlockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
