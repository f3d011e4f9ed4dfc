package nasbench

import (
	"testing"

	"nasbench201/pkg/topology"
)

func TestTrialRecordLatency(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 1})
	if got := rec.Latency(); got != LatencyUnavailable {
		t.Fatalf("expected unavailable latency, got %v", got)
	}
	rec.UpdateLatency([]float64{0.01, 0.03})
	if got := rec.Latency(); !approx(got, 0.02) {
		t.Fatalf("expected mean latency 0.02, got %v", got)
	}
}

func TestTrialRecordTrainEpochs(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 1, epochs: 3, acc: 80})
	if err := rec.UpdateTrainInfo([]float64{10, 20, 30}, nil, []float64{3, 2, 1}, []float64{1, 2, 3}); err != nil {
		t.Fatalf("update train info: %v", err)
	}
	last, err := rec.Train(LastEpoch)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if last.Epoch != 2 || last.Accuracy != 30 || last.Loss != 1 {
		t.Fatalf("unexpected last epoch metrics %+v", last)
	}
	if last.AllTime == nil || *last.AllTime != 6 || *last.CurTime != 3 {
		t.Fatalf("unexpected timing %+v", last)
	}
	first, err := rec.Train(AtEpoch(0))
	if err != nil {
		t.Fatalf("train epoch 0: %v", err)
	}
	if first.Accuracy != 10 || *first.AllTime != 1 {
		t.Fatalf("unexpected first epoch metrics %+v", first)
	}
	_, err = rec.Train(AtEpoch(3))
	wantErr(t, err, ErrInvalidArgument)
	_, err = rec.Train(AtEpoch(-1))
	wantErr(t, err, ErrInvalidArgument)
}

func TestTrialRecordUntimedMetrics(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 1, evalSets: []string{SetValid}})
	m, err := rec.Train(LastEpoch)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if m.CurTime != nil || m.AllTime != nil {
		t.Fatalf("expected absent timing, got %+v", m)
	}
	times := rec.Times()
	if v, ok := times["T-train@epoch"]; !ok || v != nil {
		t.Fatalf("expected T-train@epoch present and nil, got %v", times)
	}
	if v, ok := times["T-x-valid@total"]; !ok || v != nil {
		t.Fatalf("expected T-x-valid@total present and nil, got %v", times)
	}
}

func TestTrialRecordEval(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 1, acc: 70, evalSets: []string{SetValid, SetOriTest}})
	if got := rec.EvalSets(); len(got) != 2 || got[0] != SetOriTest || got[1] != SetValid {
		t.Fatalf("unexpected eval sets %v", got)
	}
	m, err := rec.Eval(SetValid, AtEpoch(1))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if m.Accuracy != 71 || m.Epoch != 1 {
		t.Fatalf("unexpected eval metrics %+v", m)
	}
	_, err = rec.Eval(SetTest, LastEpoch)
	wantErr(t, err, ErrNotFound)

	err = rec.UpdateEval(map[string]float64{"x-valid@0": 1, "x-valid@1": 1, "x-valid@2": 1}, map[string]float64{"x-valid@0": 1, "x-valid@1": 1, "x-valid@2": 1}, nil)
	wantErr(t, err, ErrInconsistentState)

	err = rec.UpdateEval(map[string]float64{"x-test@0": 1}, map[string]float64{"x-test@0": 1}, nil)
	wantErr(t, err, ErrInvalidArgument)
	if rec.HasEvalSet(SetTest) {
		t.Fatalf("partial eval set must not be registered")
	}

	rec.ResetEval()
	if len(rec.EvalSets()) != 0 {
		t.Fatalf("expected no eval sets after reset")
	}
}

func TestTrialRecordRejectsShortCurves(t *testing.T) {
	_, err := NewTrialRecord(TrialSpec{Name: "short", Epochs: 3, TrainAcc1: []float64{1, 2}, TrainLosses: []float64{1, 2, 3}})
	wantErr(t, err, ErrInvalidArgument)
	_, err = NewTrialRecord(TrialSpec{Name: "empty"})
	wantErr(t, err, ErrInvalidArgument)
}

func TestTrialRecordStateIsolation(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 5, evalSets: []string{SetValid}})
	st := rec.State()
	st.TrainAcc1[0] = -1
	st.EvalAcc1[evalKey(SetValid, 0)] = -1
	m, err := rec.Train(AtEpoch(0))
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if m.Accuracy == -1 {
		t.Fatalf("state copy aliases the record")
	}

	restored, err := NewTrialRecordFromState(rec.State())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.String() != rec.String() {
		t.Fatalf("restored %s, want %s", restored, rec)
	}
}

func TestTrialRecordConfig(t *testing.T) {
	rec := newTrial(t, archA, trialOpts{seed: 1})
	cfg, err := rec.Config(nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Name != "infer.tiny" || cfg.C != 16 || cfg.N != 5 || cfg.NumClasses != 10 || cfg.ArchStr != archA {
		t.Fatalf("unexpected config %+v", cfg)
	}
	cfg, err = rec.Config(func(s string) (any, error) { return topology.Decode(s) })
	if err != nil {
		t.Fatalf("config with decoder: %v", err)
	}
	if cfg.ArchStr != "" {
		t.Fatalf("decoded config should not carry arch_str")
	}
	if g, ok := cfg.Genotype.(topology.Topology); !ok || g.NumNodes() != 4 {
		t.Fatalf("unexpected genotype %#v", cfg.Genotype)
	}
}
