package platform

import (
	"hash/fnv"
	"strconv"
)

// Hash returns a short stable digest used to build ids for rows that carry
// no id attribute.
func Hash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
