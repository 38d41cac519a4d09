package parser

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mickamy/scanprof/internal/model"
)

// Explain is a PostgreSQL EXPLAIN (FORMAT JSON) document flattened into scanstatus rows.
type Explain struct {
	Rows          []model.ScanStatus
	PlanningTime  float64
	ExecutionTime float64
	// Analyzed is false when the plan carries no actual run-time figures.
	Analyzed bool
}

// ParseExplain reads an EXPLAIN (FORMAT JSON) document and flattens its plan tree
// in pre-order. Each node gets selectid idx+1 and points at its parent's selectid;
// first-level nodes point at the root (0). Without ANALYZE the run-time counters
// carry the -1 sentinel.
func ParseExplain(r io.Reader) (*Explain, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planMapVal, ok := entry["Plan"]
	if !ok {
		return nil, errors.New("explain json: missing Plan root")
	}

	planMap, err := asObject(planMapVal)
	if err != nil {
		return nil, fmt.Errorf("explain json: invalid Plan node: %w", err)
	}

	f := &flattener{}
	if _, err := f.walk(planMap, model.RootSelectID, "0"); err != nil {
		return nil, err
	}

	_, analyzed := planMap["Actual Loops"]
	return &Explain{
		Rows:          f.rows,
		PlanningTime:  asFloat(entry["Planning Time"]),
		ExecutionTime: asFloat(entry["Execution Time"]),
		Analyzed:      analyzed,
	}, nil
}

type flattener struct {
	rows []model.ScanStatus
}

// walk appends data and its subtree and returns the node's inclusive time in ms.
func (f *flattener) walk(data map[string]any, parentID int, path string) (float64, error) {
	idx := len(f.rows)
	selectID := idx + 1
	f.rows = append(f.rows, model.ScanStatus{
		Idx:      idx,
		SelectID: selectID,
		ParentID: parentID,
		Name:     asString(data["Node Type"]),
		Explain:  describe(data),
		NLoop:    model.Raw(model.Sentinel),
		NVisit:   model.Raw(model.Sentinel),
		NCycle:   model.Raw(model.Sentinel),
		Est:      model.RawEstimate(model.Sentinel),
	})

	if _, ok := data["Plan Rows"]; ok {
		f.rows[idx].Est = model.RawEstimate(asFloat(data["Plan Rows"]))
	}

	_, analyzed := data["Actual Loops"]
	loops := asFloat(data["Actual Loops"])
	inclusive := asFloat(data["Actual Total Time"]) * math.Max(loops, 1)

	var childTime float64
	for i, childVal := range asSlice(data["Plans"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return 0, fmt.Errorf("parse child plan (%s.%d): %w", path, i, err)
		}
		t, err := f.walk(childMap, selectID, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return 0, err
		}
		childTime += t
	}

	if analyzed && loops > 0 {
		exclusive := math.Max(inclusive-childTime, 0)
		row := &f.rows[idx]
		row.NLoop = model.Raw(int64(math.Round(loops)))
		row.NVisit = model.Raw(int64(math.Round(asFloat(data["Actual Rows"]) * loops)))
		row.NCycle = model.Raw(int64(math.Round(exclusive * 1000)))
	} else if analyzed {
		// never executed
		row := &f.rows[idx]
		row.NLoop, row.NVisit, row.NCycle = model.Raw(0), model.Raw(0), model.Raw(0)
	}

	return inclusive, nil
}

// describe builds a stable one-line label. Costs and timings are left out so the
// label does not change between runs of the same plan.
func describe(data map[string]any) string {
	var b strings.Builder
	b.WriteString(asString(data["Node Type"]))
	if idx := asString(data["Index Name"]); idx != "" {
		b.WriteString(" using ")
		b.WriteString(idx)
	}
	if rel := asString(data["Relation Name"]); rel != "" {
		b.WriteString(" on ")
		b.WriteString(rel)
		if alias := asString(data["Alias"]); alias != "" && alias != rel {
			b.WriteString(" ")
			b.WriteString(alias)
		}
	}
	for _, key := range []string{"Index Cond", "Hash Cond", "Merge Cond", "Join Filter", "Filter"} {
		if cond := asString(data[key]); cond != "" {
			b.WriteString(" (")
			b.WriteString(cond)
			b.WriteString(")")
		}
	}
	if keys := asStringSlice(data["Sort Key"]); len(keys) > 0 {
		b.WriteString(" by ")
		b.WriteString(strings.Join(keys, ", "))
	}
	return b.String()
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, fmt.Errorf("explain json: invalid entry: %w", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	v, _ := val.([]any)
	return v
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asStringSlice(val any) []string {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, asString(item))
		}
		return out
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

// number matches the decoder's number type with UseNumber enabled.
type number interface {
	Float64() (float64, error)
}

func asFloat(val any) float64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
