package cache

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/streamlytics/querycache/internal/util"
)

// Key builds a deterministic cache key "<op>:<digest>" from an operation
// name and its query parameters. Handlers use it so the same aggregate
// query always maps to the same key regardless of parameter struct layout.
func Key(op string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		// Fall back to a best-effort textual key rather than failing the
		// lookup; worst case is a duplicate cache slot.
		return fmt.Sprintf("%s:%v", op, params)
	}
	return op + ":" + strconv.FormatUint(util.Fnv64a(data), 16)
}
