package query

import (
	"net/url"
	"sort"
	"strings"

	"github.com/basflight/bas-console/internal/models"
)

// Operation families.
const (
	OpFlights       = "flights"
	OpStatistics    = "statistics"
	OpRegionRating  = "regions-rating"
	OpRegionDetails = "region-details"
)

// Key identifies one cached read: the operation, the date range it covers and
// any extra parameters.
type Key struct {
	Operation string
	Range     models.DateRange
	Params    map[string]string
}

// NewKey copies params so later mutation by the caller cannot change the key.
func NewKey(op string, r models.DateRange, params map[string]string) Key {
	var copied map[string]string
	if len(params) > 0 {
		copied = make(map[string]string, len(params))
		for k, v := range params {
			copied[k] = v
		}
	}
	return Key{Operation: op, Range: r, Params: copied}
}

// Family is the invalidation group the key belongs to.
func (k Key) Family() string { return k.Operation }

// String is the canonical form used for lookup and deduplication:
// op|start|end|k1=v1&k2=v2 with params sorted and escaped.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(k.Operation))
	b.WriteByte('|')
	b.WriteString(k.Range.StartDate())
	b.WriteByte('|')
	b.WriteString(k.Range.EndDate())
	b.WriteByte('|')

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(k.Params[name]))
	}
	return b.String()
}
