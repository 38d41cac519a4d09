package model

// Stats holds the whole-execution counters of one statement run. They carry no
// sentinel and are summed unconditionally when executions are grouped.
type Stats struct {
	FullscanStep int64 `json:"fullscan_step"`
	Sort         int64 `json:"sort"`
	AutoIndex    int64 `json:"autoindex"`
	VMStep       int64 `json:"vm_step"`
	Reprepare    int64 `json:"reprepare"`
	Run          int64 `json:"run"`
	FilterMiss   int64 `json:"filter_miss"`
	FilterHit    int64 `json:"filter_hit"`
	MemUsed      int64 `json:"memused"`
	TookNs       int64 `json:"took_ns"`
}

// Add returns the field-wise sum of s and other.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		FullscanStep: s.FullscanStep + other.FullscanStep,
		Sort:         s.Sort + other.Sort,
		AutoIndex:    s.AutoIndex + other.AutoIndex,
		VMStep:       s.VMStep + other.VMStep,
		Reprepare:    s.Reprepare + other.Reprepare,
		Run:          s.Run + other.Run,
		FilterMiss:   s.FilterMiss + other.FilterMiss,
		FilterHit:    s.FilterHit + other.FilterHit,
		MemUsed:      s.MemUsed + other.MemUsed,
		TookNs:       s.TookNs + other.TookNs,
	}
}

// TookSeconds converts the accumulated wall-clock duration to seconds.
func (s Stats) TookSeconds() float64 {
	return float64(s.TookNs) * 1e-9
}

// ExecutionRecord is one observed statement execution. Records are immutable once read.
type ExecutionRecord struct {
	Session    string
	Counter    int64
	Timestamp  float64
	Query      string
	Expanded   string
	Normalized string
	Stats      Stats
	Nodes      []PlanNode
}

// TraceLine mirrors one NDJSON object of the profiler log. Node counters keep
// the raw -1 sentinel until the record is normalized.
type TraceLine struct {
	Session      string       `json:"session"`
	Counter      int64        `json:"counter"`
	DBPtr        uint64       `json:"db_ptr"`
	StmtPtr      uint64       `json:"stmt_ptr"`
	Timestamp    float64      `json:"timestamp"`
	FullscanStep int64        `json:"fullscan_step"`
	Sort         int64        `json:"sort"`
	AutoIndex    int64        `json:"autoindex"`
	VMStep       int64        `json:"vm_step"`
	Reprepare    int64        `json:"reprepare"`
	Run          int64        `json:"run"`
	FilterMiss   int64        `json:"filter_miss"`
	FilterHit    int64        `json:"filter_hit"`
	MemUsed      int64        `json:"memused"`
	TookNs       int64        `json:"took_ns"`
	Unexpanded   string       `json:"unexpanded"`
	Expanded     string       `json:"expanded"`
	Normalized   string       `json:"normalized,omitempty"`
	ScanStatus   []ScanStatus `json:"scanstatus"`
}

// ScanStatus is one raw plan row of a TraceLine. A counter that is absent or
// null on the wire decodes as nil; a reported counter may still hold Sentinel.
type ScanStatus struct {
	Idx      int      `json:"idx"`
	NLoop    *int64   `json:"nloop"`
	NVisit   *int64   `json:"nvisit"`
	Est      *float64 `json:"est"`
	SelectID int      `json:"selectid"`
	ParentID int      `json:"parentid"`
	NCycle   *int64   `json:"ncycle"`
	Name     string   `json:"name"`
	Explain  string   `json:"explain"`
}

// Clone returns a copy of s that shares no counter storage with it.
func (s ScanStatus) Clone() ScanStatus {
	out := s
	out.NLoop = cloneOf(s.NLoop)
	out.NVisit = cloneOf(s.NVisit)
	out.NCycle = cloneOf(s.NCycle)
	out.Est = cloneOf(s.Est)
	return out
}

func cloneOf[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Raw returns a raw counter holding v.
func Raw(v int64) *int64 {
	return &v
}

// RawEstimate returns a raw row estimate holding v.
func RawEstimate(v float64) *float64 {
	return &v
}

// Sentinel is the raw value a profiler writes for an unreported counter.
const Sentinel = -1
