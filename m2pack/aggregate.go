package m2pack

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// AggregateMap maps a classification key to the set of distinct values seen
// for it. Merge is atomic per key and safe for concurrent producers.
type AggregateMap struct {
	mu   sync.Mutex
	sets map[string]mapset.Set[string]
}

// AggregateRow is one drained key with its members in ordinal order.
type AggregateRow struct {
	Key    string
	Values []string
}

func NewAggregateMap() *AggregateMap {
	return &AggregateMap{sets: make(map[string]mapset.Set[string])}
}

// Merge adds values to the set stored under key, creating it if needed.
func (m *AggregateMap) Merge(key string, values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		m.sets[key] = set
	}
	set.Append(values...)
}

// Len returns the number of keys.
func (m *AggregateMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sets)
}

// Values returns the members stored under key in ordinal order.
func (m *AggregateMap) Values(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	values := set.ToSlice()
	slices.Sort(values)
	return values
}

// Rows snapshots the map with keys and members sorted by ordinal comparison.
func (m *AggregateMap) Rows() []AggregateRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]AggregateRow, 0, len(m.sets))
	for key, set := range m.sets {
		values := set.ToSlice()
		slices.Sort(values)
		rows = append(rows, AggregateRow{Key: key, Values: values})
	}
	slices.SortFunc(rows, func(a, b AggregateRow) int {
		return strings.Compare(a.Key, b.Key)
	})
	return rows
}

// WriteSummary writes one line per key: the key padded to width, " - ", then
// the members joined by ", ".
func (m *AggregateMap) WriteSummary(w io.Writer, width int) error {
	bw := bufio.NewWriter(w)
	for _, row := range m.Rows() {
		if _, err := fmt.Fprintf(bw, "%-*s - %s\n", width, row.Key, strings.Join(row.Values, ", ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}
