package pds

import (
	"strconv"
	"strings"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// keyValues is one ASCII header block split into KEY=value pairs, in order.
type keyValues struct {
	keys   []string
	values map[string]string
}

func parseKeyValues(block []byte) keyValues {
	kv := keyValues{values: map[string]string{}}
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\x00 \r")
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if _, seen := kv.values[key]; !seen {
			kv.keys = append(kv.keys, key)
		}
		kv.values[key] = line[idx+1:]
	}
	return kv
}

func (kv keyValues) has(key string) bool {
	_, ok := kv.values[key]
	return ok
}

// str returns the value of key with quotes and padding removed.
func (kv keyValues) str(key string) string {
	v := strings.TrimSpace(kv.values[key])
	v = strings.TrimPrefix(v, "\"")
	v = strings.TrimSuffix(v, "\"")
	return strings.TrimSpace(v)
}

// stripUnit removes a trailing <unit> from a numeric value.
func stripUnit(v string) string {
	if idx := strings.IndexByte(v, '<'); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

func (kv keyValues) int64(key string) (int64, error) {
	v := stripUnit(kv.str(key))
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nadc.Fatalf(nadc.ErrPDSRd, key, "invalid integer %q", v)
	}
	return n, nil
}

// optInt64 parses key when present; absent keys give 0.
func (kv keyValues) optInt64(key string) (int64, error) {
	if !kv.has(key) {
		return 0, nil
	}
	return kv.int64(key)
}
