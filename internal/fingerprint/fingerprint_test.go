package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mickamy/scanprof/internal/fingerprint"
	"github.com/mickamy/scanprof/internal/model"
)

func samplePlan() []model.PlanNode {
	return []model.PlanNode{
		{Idx: 0, SelectID: 2, ParentID: 0, Name: "users", Explain: "SCAN users", Loops: model.Reported(1), Cycles: model.Reported(100)},
		{Idx: 1, SelectID: 3, ParentID: 2, Name: "orders_idx", Explain: "SEARCH orders USING INDEX orders_idx (user_id=?)", Visits: model.Reported(40)},
	}
}

func TestComputeDeterministic(t *testing.T) {
	plan := samplePlan()
	assert.Equal(t, fingerprint.Compute(plan), fingerprint.Compute(plan))
	assert.Len(t, fingerprint.Compute(plan).String(), 16)
}

func TestComputeIgnoresCounters(t *testing.T) {
	base := fingerprint.Compute(samplePlan())

	noisy := samplePlan()
	noisy[0].Cycles = model.Reported(999999)
	noisy[0].Loops = model.NotApplicable()
	noisy[1].Visits = model.Reported(1)
	noisy[1].Estimate = model.Reported(5)

	assert.Equal(t, base, fingerprint.Compute(noisy))
}

func TestComputeStructureSensitive(t *testing.T) {
	base := fingerprint.Compute(samplePlan())

	mutations := map[string]func([]model.PlanNode){
		"idx":      func(p []model.PlanNode) { p[1].Idx = 7 },
		"selectid": func(p []model.PlanNode) { p[1].SelectID = 4 },
		"parentid": func(p []model.PlanNode) { p[1].ParentID = 0 },
		"name":     func(p []model.PlanNode) { p[0].Name = "user" },
		"explain":  func(p []model.PlanNode) { p[0].Explain = "SCAN users AS u" },
		"order":    func(p []model.PlanNode) { p[0], p[1] = p[1], p[0] },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			plan := samplePlan()
			mutate(plan)
			assert.NotEqual(t, base, fingerprint.Compute(plan))
		})
	}
}

func TestComputeUnambiguousStrings(t *testing.T) {
	a := []model.PlanNode{{Name: "ab", Explain: "c"}}
	b := []model.PlanNode{{Name: "a", Explain: "bc"}}
	assert.NotEqual(t, fingerprint.Compute(a), fingerprint.Compute(b))

	assert.NotEqual(t, fingerprint.Compute(nil), fingerprint.Compute([]model.PlanNode{{}}))
}
