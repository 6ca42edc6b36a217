package core

import "math/bits"

const (
	// EntrySize is the size in bytes of one table slot
	EntrySize = 4
	// Stepping is the number of candidates a worker probes between stop checks
	Stepping = 1024
	// MaxLookup is the largest table class, 2^32 slots
	MaxLookup = 32
	// MaxTableSize is the table size of MaxLookup
	MaxTableSize = uint64(EntrySize) << MaxLookup
)

// LookupToEntries converts a table class to a slot count
func LookupToEntries(lookup uint8) uint64 {
	return uint64(1) << lookup
}

// LookupToTableSize converts a table class to a size in bytes
func LookupToTableSize(lookup uint8) uint64 {
	return LookupToEntries(lookup) * EntrySize
}

// TableSizeToEntries converts a size in bytes to a slot count
func TableSizeToEntries(size uint64) uint64 {
	return size / EntrySize
}

// TableSizeToLookup converts a valid table size to its class
func TableSizeToLookup(size uint64) uint8 {
	return uint8(bits.TrailingZeros64(TableSizeToEntries(size)))
}

// CheckTableSize verifies size is a power of two between EntrySize and MaxTableSize
func CheckTableSize(size uint64) error {
	if size < EntrySize || size > MaxTableSize || size&(size-1) != 0 {
		return NewError(CodeWorkInvalidTableSize)
	}
	return nil
}

// CheckDifficultyClass verifies a class accepted by RecommendedLookup
func CheckDifficultyClass(class uint8) error {
	if class == 0 || class >= 64 {
		return ErrDifficultyInvalid
	}
	return nil
}
