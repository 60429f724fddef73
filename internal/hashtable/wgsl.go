package hashtable

import _ "embed"

// WGSL declares HashEntry, the HASH_* constants, hash32, hashLookup and
// hashContains. It must be included once in any shader that binds a table.
//
//go:embed shaders/hash_table.wgsl
var WGSL string
