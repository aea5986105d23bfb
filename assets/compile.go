package assets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

var (
	// ErrInvalidSPIRV is returned for code that is not a SPIR-V module.
	ErrInvalidSPIRV = errors.New("assets: invalid SPIR-V")

	// ErrCompile wraps WGSL compilation failures.
	ErrCompile = errors.New("assets: WGSL compilation failed")
)

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return wordsFromBytes(b)
}

// wordsFromBytes converts little-endian SPIR-V bytes to words and checks
// the module header.
func wordsFromBytes(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of 4", ErrInvalidSPIRV, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if err := validate(words); err != nil {
		return nil, err
	}
	return words, nil
}

func bytesFromWords(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func validate(words []uint32) error {
	if len(words) == 0 || words[0] != SPIRVMagic {
		return fmt.Errorf("%w: missing magic number", ErrInvalidSPIRV)
	}
	return nil
}

// hashWords returns the FNV-1a hash of the little-endian code bytes.
func hashWords(words []uint32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf[:], w)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// hashSource keys compiled WGSL in the memo and the disk cache.
func hashSource(src string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(src))
	return h.Sum64()
}
