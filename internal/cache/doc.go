// Package cache provides the bounded LRU used to memoize shader
// compilation results.
//
//	memo := cache.New[uint64, []uint32](256)
//	words := memo.GetOrCreate(hash, func() []uint32 { return compile(src) })
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
