package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/zeebo/xxh3"

	"github.com/gogpu/markgpu/internal/cache"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// compiled holds SPIR-V by 128-bit WGSL hash. Marks with the same channel
// configuration share one entry.
var compiled = cache.New[xxh3.Uint128, []uint32](128)

// Compile translates WGSL to SPIR-V words with naga. Results are cached;
// callers must not modify the returned slice.
func Compile(code string) ([]uint32, error) {
	return compiled.GetOrCreate(xxh3.HashString128(code), func() ([]uint32, error) {
		return compile(code)
	})
}

// CacheStats reports the compiled-shader cache usage.
func CacheStats() cache.Stats {
	return compiled.Stats()
}

func compile(code string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(code)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shader: compile: truncated SPIR-V (%d bytes)", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("shader: compile: invalid SPIR-V magic 0x%08X", words[0])
	}
	return words, nil
}

// Validate reports whether naga accepts the generated WGSL.
func Validate(code string) error {
	_, err := Compile(code)
	return err
}
