// Package cache provides a small generic LRU cache with a soft limit.
//
// It backs the compiled-shader cache: marks built from identical channel
// configurations produce identical WGSL, and naga compiles each distinct
// source once.
//
//	c := cache.New[string, []uint32](64)
//	words, err := c.GetOrCreate(key, compile)
package cache
