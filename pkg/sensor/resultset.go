package sensor

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ResultSet is the ordered collection of per-sensor results produced by one
// analysis run. Iteration order is the sensors' registration order, stable
// across runs of identical input, so downstream explanation rendering and
// regression diffing stay deterministic regardless of actual execution order.
type ResultSet struct {
	order   []string
	results map[string]Result
}

// NewResultSet builds a ResultSet from results in the given order. A result
// with a duplicate or empty sensor id is rejected.
func NewResultSet(results ...Result) (*ResultSet, error) {
	rs := &ResultSet{results: make(map[string]Result, len(results))}
	for _, r := range results {
		if err := rs.Add(r); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Add appends r to the set, keyed by its sensor id.
func (rs *ResultSet) Add(r Result) error {
	if r.SensorID == "" {
		return fmt.Errorf("sensor: result with empty sensor id")
	}
	if rs.results == nil {
		rs.results = make(map[string]Result)
	}
	if _, dup := rs.results[r.SensorID]; dup {
		return fmt.Errorf("sensor: duplicate result for sensor %q", r.SensorID)
	}
	rs.order = append(rs.order, r.SensorID)
	rs.results[r.SensorID] = r
	return nil
}

// Get returns the result for the given sensor id.
func (rs *ResultSet) Get(id string) (Result, bool) {
	if rs == nil || rs.results == nil {
		return Result{}, false
	}
	r, ok := rs.results[id]
	return r, ok
}

// IDs returns the sensor ids in deterministic order.
func (rs *ResultSet) IDs() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, len(rs.order))
	copy(out, rs.order)
	return out
}

// Results returns the results in deterministic order.
func (rs *ResultSet) Results() []Result {
	if rs == nil {
		return nil
	}
	out := make([]Result, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, rs.results[id])
	}
	return out
}

// Len returns the number of results in the set.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.order)
}

// Determinate counts the results that carry a completed pass/fail judgement.
func (rs *ResultSet) Determinate() int {
	n := 0
	for _, id := range rs.IDs() {
		if rs.results[id].Determinate() {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the set as a JSON object keyed by sensor id. Go's
// encoder emits object keys in sorted order, so the encoded form is
// byte-stable for identical inputs.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]Result, len(rs.order))
	for id, r := range rs.results {
		m[id] = r
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a JSON object keyed by sensor id. JSON objects carry
// no ordering, so the restored set is ordered by sorted sensor id.
func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var m map[string]Result
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rs.order = rs.order[:0]
	rs.results = make(map[string]Result, len(m))
	for _, id := range ids {
		r := m[id]
		r.SensorID = id
		rs.order = append(rs.order, id)
		rs.results[id] = r
	}
	return nil
}
