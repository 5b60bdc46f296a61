package visibility

import (
	"errors"
	"math"
	"testing"

	"windview/internal/domain"
)

var (
	observer = domain.GeoPoint{Latitude: 51.6724, Longitude: 14.4354}
	// about 2 km north of observer
	target = domain.GeoPoint{Latitude: 51.6724 + 2000.0/111195, Longitude: 14.4354}
)

func buildProfile(t *testing.T, n int, elevation func(i int) float64) *domain.Profile {
	t.Helper()
	points, err := domain.Interpolate(observer, target, n)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	p := &domain.Profile{IsSurfaceModel: true, Source: domain.SourceSurfaceTiles}
	for i, pt := range points {
		p.Samples = append(p.Samples, domain.ElevationSample{Point: pt, Elevation: elevation(i)})
	}
	return p
}

func defaultAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultThresholds())
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestFlatTerrainIsVisible(t *testing.T) {
	profile := buildProfile(t, 20, func(int) float64 { return 100 })

	res, err := defaultAnalyzer(t).Analyze(profile, 1.7, TurbineHeight(120, 80))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != domain.StatusVisible || res.VisiblePercentage != 100 {
		t.Fatalf("got %s %.1f%%, want visible 100%%", res.Status, res.VisiblePercentage)
	}
	if res.Obstruction != nil {
		t.Fatalf("unexpected obstruction %+v", res.Obstruction)
	}
	if res.VisibleHeightMeters != 160 || res.TotalHeightMeters != 160 {
		t.Fatalf("heights = %v/%v, want 160/160", res.VisibleHeightMeters, res.TotalHeightMeters)
	}
	if math.Abs(res.ObserverEyeElevation-101.7) > 1e-9 || res.TargetBaseElevation != 100 || res.TargetTopElevation != 260 {
		t.Fatalf("elevations eye=%v base=%v top=%v", res.ObserverEyeElevation, res.TargetBaseElevation, res.TargetTopElevation)
	}
	if math.Abs(res.DistanceMeters-2000) > 10 {
		t.Fatalf("distance = %v, want about 2000", res.DistanceMeters)
	}
	if res.BearingDegrees > 0.01 && res.BearingDegrees < 359.99 {
		t.Fatalf("bearing = %v, want north", res.BearingDegrees)
	}
	if !res.IsSurfaceModel {
		t.Fatal("surface model flag lost")
	}
}

func TestRidgeMidwayBlocksTurbine(t *testing.T) {
	profile := buildProfile(t, 20, func(i int) float64 {
		if i == 10 {
			return 260
		}
		return 100
	})

	res, err := defaultAnalyzer(t).Analyze(profile, 1.7, TurbineHeight(120, 80))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != domain.StatusBlocked || res.VisiblePercentage != 0 {
		t.Fatalf("got %s %.1f%%, want blocked 0%%", res.Status, res.VisiblePercentage)
	}
	if res.Obstruction == nil || res.Obstruction.SampleIndex != 10 {
		t.Fatalf("obstruction = %+v, want sample 10", res.Obstruction)
	}
	if res.Obstruction.TerrainElevation != 260 || res.Obstruction.ObstructionMeters <= 0 {
		t.Fatalf("obstruction = %+v", res.Obstruction)
	}
}

func TestSpikeAtTargetTopBlocksEverywhere(t *testing.T) {
	const n = 12
	for spike := 1; spike < n-1; spike++ {
		profile := buildProfile(t, n, func(i int) float64 {
			if i == spike {
				return 50 + 150
			}
			return 50
		})
		res, err := defaultAnalyzer(t).Analyze(profile, 1.7, 150)
		if err != nil {
			t.Fatalf("spike %d: Analyze: %v", spike, err)
		}
		if res.VisiblePercentage != 0 || res.Status != domain.StatusBlocked {
			t.Errorf("spike %d: got %s %.1f%%, want blocked 0%%", spike, res.Status, res.VisiblePercentage)
		}
	}
}

func TestTerrainBelowSightLineIsVisibleForAnySampleCount(t *testing.T) {
	for _, n := range []int{2, 3, 5, 20, 64, 257} {
		// terrain rises steeply but stays one metre under the sight line
		profile := buildProfile(t, n, func(i int) float64 {
			return 80 + 180*float64(i)/float64(n-1)
		})
		eye := 80 + 10.0
		top := 260 + 50.0
		for i := 1; i < n-1; i++ {
			line := eye + (top-eye)*float64(i)/float64(n-1)
			profile.Samples[i].Elevation = line - 1
		}

		res, err := defaultAnalyzer(t).Analyze(profile, 10, 50)
		if err != nil {
			t.Fatalf("n=%d: Analyze: %v", n, err)
		}
		if res.Status != domain.StatusVisible || res.VisiblePercentage != 100 || res.Obstruction != nil {
			t.Errorf("n=%d: got %s %.2f%% obstruction=%+v", n, res.Status, res.VisiblePercentage, res.Obstruction)
		}
	}
}

func TestLargestObstructionWinsAndTiesKeepFirst(t *testing.T) {
	// eye and structure top are both at 100 m, so the sight line is level
	elev := []float64{100, 120, 150, 110, 150, 0}
	profile := buildProfile(t, len(elev), func(i int) float64 { return elev[i] })

	res, err := defaultAnalyzer(t).Analyze(profile, 0, 100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Obstruction == nil {
		t.Fatal("expected an obstruction")
	}
	if res.Obstruction.SampleIndex != 2 {
		t.Fatalf("obstruction index = %d, want 2", res.Obstruction.SampleIndex)
	}
	if res.Obstruction.ObstructionMeters != 50 {
		t.Fatalf("obstruction = %v m, want 50", res.Obstruction.ObstructionMeters)
	}
}

func TestThresholdClassification(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		pct  float64
		want domain.Status
	}{
		{0, domain.StatusBlocked},
		{9.99, domain.StatusBlocked},
		{10, domain.StatusPartial},
		{69.9, domain.StatusPartial},
		{70, domain.StatusVisible},
		{100, domain.StatusVisible},
	}
	for _, tt := range tests {
		if got := th.Classify(tt.pct); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestThresholdValidation(t *testing.T) {
	tests := []struct {
		name string
		th   Thresholds
		ok   bool
	}{
		{"defaults", DefaultThresholds(), true},
		{"full range", Thresholds{Blocked: 0, Partial: 100}, true},
		{"equal", Thresholds{Blocked: 50, Partial: 50}, false},
		{"inverted", Thresholds{Blocked: 70, Partial: 10}, false},
		{"negative", Thresholds{Blocked: -1, Partial: 70}, false},
		{"over 100", Thresholds{Blocked: 10, Partial: 101}, false},
		{"nan", Thresholds{Blocked: math.NaN(), Partial: 70}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalyzer(tt.th)
			if (err == nil) != tt.ok {
				t.Fatalf("NewAnalyzer(%+v) err = %v, want ok=%v", tt.th, err, tt.ok)
			}
		})
	}
}

func TestMalformedInput(t *testing.T) {
	flat := func(int) float64 { return 100 }
	single := &domain.Profile{Samples: []domain.ElevationSample{{Point: observer, Elevation: 1}}}
	nan := buildProfile(t, 5, flat)
	nan.Samples[2].Elevation = math.NaN()
	same := &domain.Profile{Samples: []domain.ElevationSample{
		{Point: observer, Elevation: 1},
		{Point: observer, Elevation: 1},
	}}

	tests := []struct {
		name    string
		profile *domain.Profile
		height  float64
	}{
		{"nil profile", nil, 100},
		{"one sample", single, 100},
		{"zero height", buildProfile(t, 5, flat), 0},
		{"negative height", buildProfile(t, 5, flat), -10},
		{"non-finite elevation", nan, 100},
		{"coincident endpoints", same, 100},
	}
	a := defaultAnalyzer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Analyze(tt.profile, 1.7, tt.height); !errors.Is(err, domain.ErrInvalidProfile) {
				t.Fatalf("err = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestTurbineHeight(t *testing.T) {
	if got := TurbineHeight(120, 80); got != 160 {
		t.Fatalf("TurbineHeight = %v, want 160", got)
	}
}
