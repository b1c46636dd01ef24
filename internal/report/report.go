// Package report summarises a run for people: pooling rate and how the
// riders who shared fared against a private ride.
package report

import (
    "fmt"
    "io"
    "math"
    "text/tabwriter"
    "time"

    "darpm/internal/model"
)

// Dist describes one per-request quantity over the shared riders.
type Dist struct {
    N     int     `json:"n"`
    Mean  float64 `json:"mean"`
    Stdev float64 `json:"stdev"` // sample standard deviation
    Min   float64 `json:"min"`
    Max   float64 `json:"max"`
}

type Summary struct {
    Requests       int           `json:"requests"`
    Objective      int           `json:"objective"`
    Iterations     int           `json:"iterations"`
    PoolingPercent float64       `json:"poolingPercent"`
    Delay          Dist          `json:"delaySec"`
    DelayPercent   Dist          `json:"delayPercent"`
    Saving         Dist          `json:"savingPercent"`
    Advance        Dist          `json:"pickupAdvanceSec"`
    AdvancePercent Dist          `json:"pickupAdvancePercent"`
    Elapsed        time.Duration `json:"elapsed"`
    PerIteration   time.Duration `json:"perIteration"`
}

func Summarize(res model.RunResult) Summary {
    s := Summary{
        Requests:       res.Requests,
        Objective:      res.Objective,
        Iterations:     res.Iterations,
        PoolingPercent: res.PoolingPercent,
        Elapsed:        time.Duration(res.ElapsedMs) * time.Millisecond,
    }
    if res.Iterations > 0 {
        s.PerIteration = s.Elapsed / time.Duration(res.Iterations)
    }
    pick := func(f func(model.RequestStat) float64) Dist {
        xs := make([]float64, len(res.Shared))
        for i, st := range res.Shared {
            xs[i] = f(st)
        }
        return describe(xs)
    }
    s.Delay = pick(func(st model.RequestStat) float64 { return st.DelaySec })
    s.DelayPercent = pick(func(st model.RequestStat) float64 { return st.DelayPercent })
    s.Saving = pick(func(st model.RequestStat) float64 { return st.SavingPercent })
    s.Advance = pick(func(st model.RequestStat) float64 { return st.PickupAdvanceSec })
    s.AdvancePercent = pick(func(st model.RequestStat) float64 { return st.PickupAdvancePercent })
    return s
}

func describe(xs []float64) Dist {
    d := Dist{N: len(xs)}
    if d.N == 0 {
        return d
    }
    d.Min, d.Max = math.Inf(1), math.Inf(-1)
    sum := 0.0
    for _, x := range xs {
        sum += x
        d.Min = math.Min(d.Min, x)
        d.Max = math.Max(d.Max, x)
    }
    d.Mean = sum / float64(d.N)
    if d.N > 1 {
        ss := 0.0
        for _, x := range xs {
            ss += (x - d.Mean) * (x - d.Mean)
        }
        d.Stdev = math.Sqrt(ss / float64(d.N-1))
    }
    return d
}

// Write prints the summary as an aligned table.
func Write(w io.Writer, s Summary) error {
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    rows := [][2]string{
        {"requests", fmt.Sprint(s.Requests)},
        {"grasp iterations", fmt.Sprint(s.Iterations)},
        {"best objective", fmt.Sprint(s.Objective)},
        {"pooling", fmt.Sprintf("%.1f %%", s.PoolingPercent)},
    }
    if s.Delay.N > 0 {
        rows = append(rows,
            [2]string{"delay mean", fmt.Sprintf("%.1f s (+%.1f %%)", s.Delay.Mean, s.DelayPercent.Mean)},
            [2]string{"delay stdev", fmt.Sprintf("%.1f s", s.Delay.Stdev)},
            [2]string{"delay max", fmt.Sprintf("%.1f s (+%.1f %%)", s.Delay.Max, s.DelayPercent.Max)},
            [2]string{"delay min", fmt.Sprintf("%.1f s (+%.1f %%)", s.Delay.Min, s.DelayPercent.Min)},
            [2]string{"price saving mean", fmt.Sprintf("-%.1f %%", s.Saving.Mean)},
            [2]string{"price saving max", fmt.Sprintf("-%.1f %%", s.Saving.Max)},
            [2]string{"price saving min", fmt.Sprintf("-%.1f %%", s.Saving.Min)},
            [2]string{"pickup advance mean", fmt.Sprintf("%.1f s (%.0f %%)", s.Advance.Mean, s.AdvancePercent.Mean)},
            [2]string{"pickup advance stdev", fmt.Sprintf("%.0f s", s.Advance.Stdev)},
            [2]string{"pickup advance max", fmt.Sprintf("%.0f s (%.0f %%)", s.Advance.Max, s.AdvancePercent.Max)},
            [2]string{"pickup advance min", fmt.Sprintf("%.0f s (%.0f %%)", s.Advance.Min, s.AdvancePercent.Min)},
        )
    }
    rows = append(rows,
        [2]string{"computation time", s.Elapsed.Round(time.Millisecond).String()},
        [2]string{"per iteration", s.PerIteration.Round(time.Millisecond).String()},
    )
    for _, r := range rows {
        if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
            return err
        }
    }
    return tw.Flush()
}
