package security

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

func ParseSnowflake(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty snowflake")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.New("snowflake must be numeric")
		}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid snowflake")
	}
	if id == 0 {
		return 0, errors.New("snowflake must be > 0")
	}
	return id, nil
}

// snowflakeEpoch is the platform epoch in unix milliseconds (2015-01-01).
const snowflakeEpoch int64 = 1420070400000

// Snowflake mints time-ordered 64-bit account identifiers:
// 42 bits of milliseconds since the epoch, 10 bits of node id, 12 bits of
// per-millisecond sequence. IDs from one generator never repeat; uniqueness
// across processes rests on distinct node ids.
type Snowflake struct {
	mu     sync.Mutex
	node   int64
	lastMs int64
	seq    int64
}

func NewSnowflake(node int64) (*Snowflake, error) {
	if node < 0 || node > 1023 {
		return nil, errors.New("snowflake node must be in [0,1023]")
	}
	return &Snowflake{node: node}, nil
}

// Next returns the next identifier as a decimal string, the form every wire
// and storage surface uses.
func (s *Snowflake) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.lastMs {
		// clock went backwards; hold the line at the last timestamp
		now = s.lastMs
	}

	if now == s.lastMs {
		s.seq = (s.seq + 1) & 0xFFF
		if s.seq == 0 {
			// sequence exhausted within this millisecond, wait out the tick
			for now <= s.lastMs {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.seq = 0
	}
	s.lastMs = now

	id := (now-snowflakeEpoch)<<22 | s.node<<12 | s.seq
	return strconv.FormatInt(id, 10)
}
