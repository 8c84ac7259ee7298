package backend

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// DeterministicSeed derives a positive sampler seed from the job inputs so
// identical requests reproduce identical graphs.
func DeterministicSeed(values ...any) int64 {
	if len(values) == 0 {
		return 1
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	value := int64(binary.BigEndian.Uint64(sum[:8]) & (1<<50 - 1))
	if value == 0 {
		value = 1
	}
	return value
}
