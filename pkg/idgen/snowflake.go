package idgen

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"
)

// ============================================================================
// Snowflake ID generator
// ============================================================================
//
// Layout (64 bits):
//
//   0 - 41 bit timestamp - 10 bit worker id - 12 bit sequence
//
// Used for credit journal entry numbers. Transaction codes shown to users are
// random instead (see GenerateTxCode): they must not reveal order volume.
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake generates time-ordered unique ids.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init sets up the default generator. Later calls are ignored.
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			log.Fatalf("workerID must be within 0-%d", maxWorkerID)
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

// NextID returns the next id from the default generator.
func NextID() int64 {
	Init(1)
	return defaultGenerator.Generate()
}

// Generate returns the next id.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted, spin to the next millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateEntryNo returns a credit journal entry number: CRE followed by the
// zero-padded snowflake id, so entry numbers sort by creation time.
func GenerateEntryNo() string {
	return fmt.Sprintf("CRE%019d", NextID())
}

const (
	txCodePrefix   = "TX"
	txCodeLength   = 10
	txCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateTxCode returns a human-readable top-up code: "TX" followed by ten
// uppercase base36 characters (about 51 bits of randomness).
func GenerateTxCode() (string, error) {
	buf := make([]byte, txCodeLength)
	max := big.NewInt(int64(len(txCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate tx code: %w", err)
		}
		buf[i] = txCodeAlphabet[n.Int64()]
	}
	return txCodePrefix + string(buf), nil
}

// IsTxCode reports whether s has the shape produced by GenerateTxCode.
func IsTxCode(s string) bool {
	if len(s) != len(txCodePrefix)+txCodeLength || s[:len(txCodePrefix)] != txCodePrefix {
		return false
	}
	for _, c := range s[len(txCodePrefix):] {
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
