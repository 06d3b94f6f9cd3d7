package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a deterministic hash identifying the logical result
// set for a (query, filters) pair. It is used as the scroll-state storage
// key and as part of the request deduplication key.
//
// Raw GPS coordinates are excluded: they change on every device position
// update and would explode key cardinality. The search radius is identity
// relevant and is included.
func Fingerprint(query string, f Filters) string {
	parts := []string{"q=" + strings.ToLower(strings.TrimSpace(query))}

	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+value)
		}
	}

	add("agency", f.Agency)
	add("kosher_category", f.KosherCategory)
	add("price_min", floatKey(f.PriceMin))
	add("price_max", floatKey(f.PriceMax))
	add("min_rating", floatKey(f.MinRating))
	add("radius_mi", floatKey(f.RadiusMiles))
	add("business_types", listKey(f.BusinessTypes))
	add("dietary", listKey(f.Dietary))

	sort.Strings(parts)
	sum := xxhash.Sum64String(strings.Join(parts, ":"))
	return fmt.Sprintf("%016x", sum)
}

func floatKey(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func listKey(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	for i, v := range values {
		sorted[i] = strings.ToLower(v)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
