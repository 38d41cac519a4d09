package model

import (
	"strconv"
)

// Counter is a per-node runtime counter that a profiled execution may or may not report.
// The zero value means "not applicable", which is never the same as a reported zero.
type Counter struct {
	Value int64
	Valid bool
}

// Reported returns a counter holding v.
func Reported(v int64) Counter {
	return Counter{Value: v, Valid: true}
}

// NotApplicable returns a counter with no reported value.
func NotApplicable() Counter {
	return Counter{}
}

// Add merges other into c. A not-applicable operand contributes nothing; the
// result stays not applicable only while neither side was ever reported.
func (c Counter) Add(other Counter) Counter {
	if !other.Valid {
		return c
	}
	if !c.Valid {
		return other
	}
	return Counter{Value: c.Value + other.Value, Valid: true}
}

// Int64 returns the value and whether it was reported.
func (c Counter) Int64() (int64, bool) {
	return c.Value, c.Valid
}

func (c Counter) String() string {
	if !c.Valid {
		return "n/a"
	}
	return strconv.FormatInt(c.Value, 10)
}

// MarshalJSON encodes not applicable as null.
func (c Counter) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, c.Value, 10), nil
}

// UnmarshalJSON accepts null or an integer.
func (c *Counter) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*c = Counter{}
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*c = Reported(v)
	return nil
}

// PlanNode is one row of a single execution's plan.
type PlanNode struct {
	Idx      int    `json:"idx"`
	SelectID int    `json:"selectid"`
	ParentID int    `json:"parentid"`
	Name     string `json:"name"`
	Explain  string `json:"explain"`

	Loops    Counter `json:"nloop"`
	Visits   Counter `json:"nvisit"`
	Cycles   Counter `json:"ncycle"`
	Estimate Counter `json:"est"`
}

// Key returns the identity of the node position used to merge executions of one plan shape.
func (n PlanNode) Key() NodeKey {
	return NodeKey{
		Idx:      n.Idx,
		SelectID: n.SelectID,
		ParentID: n.ParentID,
		Name:     n.Name,
		Explain:  n.Explain,
	}
}

// NodeKey is the structural identity of a plan node, ignoring counters.
type NodeKey struct {
	Idx      int
	SelectID int
	ParentID int
	Name     string
	Explain  string
}

// RootSelectID is the parent id carried by first-level plan nodes.
const RootSelectID = 0
