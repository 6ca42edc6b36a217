package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTableSize = 4 << 12

func solveSmall(t *testing.T, seed Nonce, difficulty uint64) (*LookupTable, Nonce) {
	t.Helper()
	table, err := NewLookupTable(testTableSize)
	require.NoError(t, err)

	c := NewCanonical(seed)
	table.Fill(c)

	solution, found := table.Search(c, difficulty, SearchOrigin(seed), 1, CandidateMask)
	require.True(t, found, "no solution found")
	return table, solution
}

func TestErrorContextLifecycle(t *testing.T) {
	ec := NewErrorContext()
	defer ec.Close()

	assert.False(t, ec.Failed())
	assert.Equal(t, CategorySuccess, ec.ErrorCategory())
	assert.Equal(t, "success", ec.ErrorString())
	assert.Equal(t, "success", ec.CategoryString())
	assert.NotEmpty(t, ec.ID())

	ec.Set(ErrInvalidIndex)
	assert.True(t, ec.Failed())
	assert.Equal(t, CategoryGeneric, ec.ErrorCategory())
	assert.Equal(t, int64(0x80000001), ec.ErrorCode())
	assert.Equal(t, "Index out of bounds", ec.ErrorString())
	assert.Equal(t, "generic", ec.CategoryString())
	assert.ErrorIs(t, ec.Err(), ErrInvalidIndex)

	ec.Set(nil)
	assert.False(t, ec.Failed())
	assert.Equal(t, "success", ec.ErrorString())
	assert.NoError(t, ec.Err())
}

func TestErrorContextCategories(t *testing.T) {
	ec := NewErrorContext()

	ec.Set(NewOpenCLError(-61, ""))
	assert.Equal(t, CategoryOpenCL, ec.ErrorCategory())
	assert.Equal(t, int64(-61), ec.ErrorCode())
	assert.Equal(t, "opencl", ec.CategoryString())

	ec.Set(errors.New("disk on fire"))
	assert.Equal(t, CategoryGeneric, ec.ErrorCategory())
	assert.Equal(t, int64(CodeUnknown), ec.ErrorCode())
	assert.Equal(t, "disk on fire", ec.ErrorString())

	ec.Set(errors.New(""))
	assert.Equal(t, "Unknown error", ec.ErrorString())

	ec.Set(fmt.Errorf("open driver: %w", NewError(CodeDeviceNotFound, "platform 3")))
	assert.Equal(t, int64(CodeDeviceNotFound), ec.ErrorCode())
	assert.Equal(t, "Device not found", ec.ErrorString())
}

func TestErrorStringIntoTruncates(t *testing.T) {
	ec := NewErrorContext()
	ec.Set(ErrThreadInvalidCount)

	buf := make([]byte, 0, 7)
	n := ec.ErrorStringInto(buf)
	assert.Equal(t, 7, n)
	assert.Equal(t, "Invalid", string(buf[:n]))

	large := make([]byte, 64)
	n = ec.ErrorStringInto(large)
	assert.Equal(t, "Invalid thread count", string(large[:n]))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		code Code
		msg  string
	}{
		{ErrInvalidIndex, ErrBase + 1, "Index out of bounds"},
		{ErrDriverInvalid, ErrBase + 2, "Invalid driver"},
		{ErrDriverInvalidType, ErrBase + 3, "Invalid driver type"},
		{ErrDeviceInvalid, ErrBase + 4, "Invalid device"},
		{ErrDeviceNotFound, ErrBase + 5, "Device not found"},
		{ErrDeviceListInvalid, ErrBase + 6, "Invalid device list"},
		{ErrThreadInvalidCount, ErrBase + 7, "Invalid thread count"},
		{ErrDifficultyInvalid, ErrBase + 8, "Invalid difficulty"},
		{ErrWorkInvalidTableSize, ErrBase + 9, "Invalid table size"},
		{ErrInsufficientMemory, ErrBase + 10, "Insufficient memory available"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			var e *Error
			require.True(t, errors.As(tt.err, &e))
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, CategoryGeneric, e.Category)
			assert.Equal(t, tt.msg, e.Error())
		})
	}
}

func TestWorkAccessors(t *testing.T) {
	w := NewWork()
	hi, lo := w.Solution()
	assert.Zero(t, hi)
	assert.Zero(t, lo)

	w.SetNonce(1, 2)
	w.SetDifficulty(0xffffc00000000000)
	w.SetTableSize(256 << 20)
	w.SetSolution(3, 4)

	assert.Equal(t, Nonce{Hi: 1, Lo: 2}, w.Seed())
	assert.Equal(t, uint64(0xffffc00000000000), w.Difficulty())
	assert.Equal(t, uint64(256<<20), w.TableSize())
	hi, lo = w.Solution()
	assert.Equal(t, uint64(3), hi)
	assert.Equal(t, uint64(4), lo)
}

func TestCanonicalDeterminism(t *testing.T) {
	a := NewCanonical(Nonce{Hi: 1, Lo: 0})
	b := NewCanonical(Nonce{Hi: 1, Lo: 0})
	other := NewCanonical(Nonce{Hi: 2, Lo: 0})

	assert.Equal(t, a.H0(42), b.H0(42))
	assert.NotEqual(t, a.H0(42), other.H0(42))
	assert.NotEqual(t, a.H0(42), a.H1(42))
	assert.Equal(t, a.H1(5), a.H1(5|1<<CandidateBits), "candidate is truncated to 48 bits")
}

func TestBitDifficulty(t *testing.T) {
	assert.Equal(t, uint64(0), BitDifficulty(0))
	assert.Equal(t, uint64(0x8000000000000000), BitDifficulty(1))
	assert.Equal(t, uint64(0xffffc00000000000), BitDifficulty(18))
	assert.Equal(t, ^uint64(0), BitDifficulty(64))
}

func TestQuickMask(t *testing.T) {
	assert.Equal(t, uint64(0), QuickMask(0))
	assert.Equal(t, uint64(0x3ffff), QuickMask(0xffffc00000000000))
	assert.Equal(t, ^uint64(0), QuickMask(^uint64(0)))

	// a sum rejected by the mask never passes
	d := BitDifficulty(10)
	for sum := uint64(1); sum < 1<<10; sum++ {
		assert.False(t, Passes(sum, d))
	}
	assert.True(t, Passes(0, d))
}

func TestPassesMonotonic(t *testing.T) {
	c := NewCanonical(Nonce{Hi: 7, Lo: 9})
	for i := uint64(0); i < 2000; i++ {
		sum := c.Sum(i, i*31)
		for d := uint8(1); d < 20; d++ {
			if Passes(sum, BitDifficulty(d+1)) {
				assert.True(t, Passes(sum, BitDifficulty(d)))
			}
		}
	}
}

func TestCheckTableSize(t *testing.T) {
	assert.NoError(t, CheckTableSize(4))
	assert.NoError(t, CheckTableSize(256<<20))
	assert.NoError(t, CheckTableSize(MaxTableSize))
	assert.ErrorIs(t, CheckTableSize(0), ErrWorkInvalidTableSize)
	assert.ErrorIs(t, CheckTableSize(2), ErrWorkInvalidTableSize)
	assert.ErrorIs(t, CheckTableSize(12), ErrWorkInvalidTableSize)
	assert.ErrorIs(t, CheckTableSize(MaxTableSize*2), ErrWorkInvalidTableSize)
}

func TestConversions(t *testing.T) {
	assert.Equal(t, uint64(256<<20), LookupToTableSize(26))
	assert.Equal(t, uint8(26), TableSizeToLookup(256<<20))
	assert.Equal(t, uint64(1<<26), TableSizeToEntries(256<<20))
	assert.ErrorIs(t, CheckDifficultyClass(0), ErrDifficultyInvalid)
	assert.ErrorIs(t, CheckDifficultyClass(64), ErrDifficultyInvalid)
	assert.NoError(t, CheckDifficultyClass(63))
}

func TestTableFillOrderIndependent(t *testing.T) {
	seed := Nonce{Hi: 0xdeadbeef, Lo: 17}
	c := NewCanonical(seed)

	serial, err := NewLookupTable(testTableSize)
	require.NoError(t, err)
	serial.Fill(c)

	parallel, err := NewLookupTable(testTableSize)
	require.NoError(t, err)
	entries := parallel.Entries()
	var wg sync.WaitGroup
	for i := uint64(0); i < 8; i++ {
		wg.Add(1)
		go func(part uint64) {
			defer wg.Done()
			// reverse partition order to stress the max rule
			begin := entries / 8 * (7 - part)
			parallel.FillRange(c, begin, begin+entries/8)
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < entries; i++ {
		require.Equal(t, serial.Slot(i), parallel.Slot(i), "slot %d", i)
	}
}

func TestSearchAndValidate(t *testing.T) {
	seed := Nonce{Hi: 1, Lo: 0}
	difficulty := BitDifficulty(20)
	table, solution := solveSmall(t, seed, difficulty)

	c := NewCanonical(seed)
	assert.True(t, table.Verify(c, solution, difficulty))
	assert.GreaterOrEqual(t, c.Difficulty(solution), difficulty)

	w := NewWork()
	w.SetNonce(seed.Hi, seed.Lo)
	w.SetDifficulty(difficulty)
	w.SetTableSize(testTableSize)
	w.SetSolution(solution.Hi, solution.Lo)

	ok, err := Validate(w)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := Validate(w)
	require.NoError(t, err)
	assert.Equal(t, ok, again)
}

func TestValidateRejects(t *testing.T) {
	seed := Nonce{Hi: 99, Lo: 3}
	difficulty := BitDifficulty(16)
	_, solution := solveSmall(t, seed, difficulty)

	base := func() *Work {
		w := NewWork()
		w.SetNonce(seed.Hi, seed.Lo)
		w.SetDifficulty(difficulty)
		w.SetTableSize(testTableSize)
		w.SetSolution(solution.Hi, solution.Lo)
		return w
	}

	t.Run("other seed", func(t *testing.T) {
		w := base()
		w.SetNonce(seed.Hi+1, seed.Lo)
		ok, err := Validate(w)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("preimage out of range", func(t *testing.T) {
		w := base()
		w.SetSolution(TableSizeToEntries(testTableSize), solution.Lo)
		ok, err := Validate(w)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("candidate out of range", func(t *testing.T) {
		w := base()
		w.SetSolution(solution.Hi, solution.Lo|1<<CandidateBits)
		ok, err := Validate(w)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("harder threshold", func(t *testing.T) {
		w := base()
		w.SetDifficulty(^uint64(0))
		ok, err := Validate(w)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid table size", func(t *testing.T) {
		w := base()
		w.SetTableSize(0)
		ok, err := Validate(w)
		assert.ErrorIs(t, err, ErrWorkInvalidTableSize)
		assert.False(t, ok)
	})

	t.Run("nil work", func(t *testing.T) {
		ok, err := Validate(nil)
		assert.ErrorIs(t, err, ErrWorkInvalid)
		assert.False(t, ok)
	})
}

func TestSearchOriginInRange(t *testing.T) {
	for i := uint64(0); i < 100; i++ {
		origin := SearchOrigin(Nonce{Hi: i, Lo: i * 3})
		assert.LessOrEqual(t, origin, CandidateMask)
	}
	assert.Equal(t, SearchOrigin(Nonce{Hi: 1}), SearchOrigin(Nonce{Hi: 1}))
}

func BenchmarkH0(b *testing.B) {
	c := NewCanonical(Nonce{Hi: 1})
	for i := 0; i < b.N; i++ {
		c.H0(uint64(i))
	}
}

func BenchmarkProbe(b *testing.B) {
	seed := Nonce{Hi: 1}
	c := NewCanonical(seed)
	table, err := NewLookupTable(4 << 16)
	require.NoError(b, err)
	table.Fill(c)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table.Probe(c, uint64(i))
	}
}
