package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/sozercan/gee-gateway/apimodels"
	"github.com/sozercan/gee-gateway/internal/config"
	"github.com/sozercan/gee-gateway/internal/helpers"
	"github.com/sozercan/gee-gateway/internal/imagery"
	"github.com/sozercan/gee-gateway/internal/indices"
	"github.com/sozercan/gee-gateway/internal/logging"
)

// Analyzer turns API requests into imagery descriptors, evaluates them on the
// backend and shapes the results. It holds no per-request state.
type Analyzer struct {
	backend imagery.Backend
	cfg     config.AnalysisConfig
}

func New(backend imagery.Backend, cfg config.AnalysisConfig) *Analyzer {
	return &Analyzer{
		backend: backend,
		cfg:     cfg,
	}
}

func (a *Analyzer) composite(def indices.Definition, date time.Time, region *imagery.Region, opts apimodels.CompositeOptions) imagery.Composite {
	return imagery.Composite{
		Index: def,
		Scenes: imagery.SceneQuery{
			Period:        period(date, opts.WindowDays),
			Region:        region,
			MaxCloudCover: orDefault(opts.MaxCloudCover, a.cfg.MaxCloudCover),
		},
		Mode: compositeMode(opts),
	}
}

// requireScenes fails with ErrNoImagery when q matches nothing.
func (a *Analyzer) requireScenes(ctx context.Context, q imagery.SceneQuery) (imagery.SceneSummary, error) {
	summary, err := a.backend.Summarize(ctx, q)
	if err != nil {
		return imagery.SceneSummary{}, fmt.Errorf("summarize scenes: %w", err)
	}
	if summary.Count == 0 {
		r := dateRange(q.Period)
		return summary, fmt.Errorf("%w: no scenes between %s and %s with cloud cover below %v%%",
			ErrNoImagery, r.Start, r.End, q.MaxCloudCover)
	}
	return summary, nil
}

func periodSummary(p imagery.Period, s imagery.SceneSummary) apimodels.PeriodSummary {
	return apimodels.PeriodSummary{
		DateRange:  dateRange(p),
		CloudCover: s.MeanCloudCover,
		ImageCount: s.Count,
	}
}

// Tile issues a map tile source for the index composite around req.Date.
func (a *Analyzer) Tile(ctx context.Context, def indices.Definition, req apimodels.TileRequest) (*apimodels.TileResponse, error) {
	date, err := ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	region, err := resolveRegion(req.Area, false)
	if err != nil {
		return nil, err
	}

	vis := imagery.Visualization{
		Min:     orDefault(req.Min, def.DisplayMin),
		Max:     orDefault(req.Max, def.DisplayMax),
		Palette: req.Palette,
	}
	if len(vis.Palette) == 0 {
		vis.Palette = def.Palette
	}
	if vis.Min >= vis.Max {
		return nil, fmt.Errorf("%w: min (%v) must be below max (%v)", ErrInvalidInput, vis.Min, vis.Max)
	}

	comp := a.composite(def, date, region, req.CompositeOptions)
	summary, err := a.requireScenes(ctx, comp.Scenes)
	if err != nil {
		return nil, err
	}

	tile, err := a.backend.Tile(ctx, comp, vis)
	if err != nil {
		return nil, fmt.Errorf("create %s tile: %w", def.Name, err)
	}

	logging.Ctx(ctx).Debug().Str("index", def.Name).Str("map", tile.MapName).Int("scenes", summary.Count).Msg("Tile issued")

	return &apimodels.TileResponse{
		Name:           tile.MapName,
		TileURL:        tile.URLFormat,
		Index:          def.Name,
		MinValue:       vis.Min,
		MaxValue:       vis.Max,
		PaletteUsed:    vis.Palette,
		ProcessingDate: date.Format(imagery.DateLayout),
		DateRange:      dateRange(comp.Scenes.Period),
		CloudCover:     summary.MeanCloudCover,
		ImageCount:     summary.Count,
		Composite:      string(comp.Mode),
	}, nil
}

// Stats reduces the index composite over the region.
func (a *Analyzer) Stats(ctx context.Context, def indices.Definition, req apimodels.StatsRequest) (*apimodels.StatsResponse, error) {
	date, err := ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	region, err := resolveRegion(req.Area, true)
	if err != nil {
		return nil, err
	}

	comp := a.composite(def, date, region, req.CompositeOptions)
	summary, err := a.requireScenes(ctx, comp.Scenes)
	if err != nil {
		return nil, err
	}

	stats, err := a.backend.Stats(ctx, comp, region)
	if err != nil {
		return nil, fmt.Errorf("reduce %s: %w", def.Name, err)
	}
	if stats.Mean == nil {
		return nil, fmt.Errorf("%w: no %s values in the selected region", ErrNoData, def.Name)
	}

	return &apimodels.StatsResponse{
		Year:       date.Year(),
		Index:      def.Name,
		Mean:       *stats.Mean,
		Min:        valueOrZero(stats.Min),
		Max:        valueOrZero(stats.Max),
		StdDev:     valueOrZero(stats.StdDev),
		Count:      stats.Count,
		DateRange:  dateRange(comp.Scenes.Period),
		CloudCover: summary.MeanCloudCover,
		ImageCount: summary.Count,
	}, nil
}

// DetectChange reports whether meanDiff, a mean of index(date2) - index(date1),
// reaches threshold in direction d.
func DetectChange(meanDiff, threshold float64, d imagery.ChangeDirection) bool {
	if d == imagery.DirectionGain {
		return meanDiff >= threshold
	}
	return -meanDiff >= threshold
}

type comparison struct {
	def       indices.Definition
	date1     time.Time
	date2     time.Time
	from      imagery.Composite
	to        imagery.Composite
	summary1  imagery.SceneSummary
	summary2  imagery.SceneSummary
	threshold float64
	direction imagery.ChangeDirection
}

// compare parses and checks both sides of a two-date request.
func (a *Analyzer) compare(ctx context.Context, def indices.Definition, d1, d2 string, region *imagery.Region, change apimodels.ChangeOptions, opts apimodels.CompositeOptions) (*comparison, error) {
	date1, err := ParseDate("date1", d1)
	if err != nil {
		return nil, err
	}
	date2, err := ParseDate("date2", d2)
	if err != nil {
		return nil, err
	}

	c := &comparison{
		def:       def,
		date1:     date1,
		date2:     date2,
		from:      a.composite(def, date1, region, opts),
		to:        a.composite(def, date2, region, opts),
		threshold: orDefault(change.Threshold, def.DefaultThreshold),
		direction: direction(change),
	}
	if c.summary1, err = a.requireScenes(ctx, c.from.Scenes); err != nil {
		return nil, fmt.Errorf("date1: %w", err)
	}
	if c.summary2, err = a.requireScenes(ctx, c.to.Scenes); err != nil {
		return nil, fmt.Errorf("date2: %w", err)
	}
	return c, nil
}

// Diff issues a tile of index(date2) - index(date1). With a region it also
// reduces the difference and reports whether the change reaches the threshold.
func (a *Analyzer) Diff(ctx context.Context, def indices.Definition, req apimodels.DiffRequest) (*apimodels.DiffResponse, error) {
	region, err := resolveRegion(req.Area, false)
	if err != nil {
		return nil, err
	}
	c, err := a.compare(ctx, def, req.Date1, req.Date2, region, req.ChangeOptions, req.CompositeOptions)
	if err != nil {
		return nil, err
	}

	diff := imagery.Difference{From: c.from, To: c.to}
	vis := imagery.Visualization{Min: def.DiffMin, Max: def.DiffMax, Palette: def.DiffPalette}
	tile, err := a.backend.Tile(ctx, diff, vis)
	if err != nil {
		return nil, fmt.Errorf("create %s difference tile: %w", def.Name, err)
	}

	resp := &apimodels.DiffResponse{
		Name:        tile.MapName,
		TileURL:     tile.URLFormat,
		Index:       def.Name,
		MinValue:    vis.Min,
		MaxValue:    vis.Max,
		PaletteUsed: vis.Palette,
		Date1:       c.date1.Format(imagery.DateLayout),
		Date2:       c.date2.Format(imagery.DateLayout),
		Threshold:   c.threshold,
		Direction:   string(c.direction),
		ChangeLabel: def.ChangeLabel,
		Range1:      periodSummary(c.from.Scenes.Period, c.summary1),
		Range2:      periodSummary(c.to.Scenes.Period, c.summary2),
	}
	if region == nil {
		return resp, nil
	}

	stats, err := a.backend.Stats(ctx, diff, region)
	if err != nil {
		return nil, fmt.Errorf("reduce %s difference: %w", def.Name, err)
	}
	if stats.Mean == nil {
		return nil, fmt.Errorf("%w: no %s difference values in the selected region", ErrNoData, def.Name)
	}

	detected := DetectChange(*stats.Mean, c.threshold, c.direction)
	resp.DeforestationDetected = &detected
	resp.ChangeStats = &apimodels.ChangeStats{
		Mean:   *stats.Mean,
		Min:    valueOrZero(stats.Min),
		Max:    valueOrZero(stats.Max),
		StdDev: valueOrZero(stats.StdDev),
		Count:  stats.Count,
	}
	return resp, nil
}

const squareMetersPerHectare = 10000

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Zones vectorizes the pixels whose change reaches the threshold.
func (a *Analyzer) Zones(ctx context.Context, def indices.Definition, req apimodels.ZonesRequest) (*apimodels.ZonesResponse, error) {
	region, err := resolveRegion(req.Area, true)
	if err != nil {
		return nil, err
	}
	c, err := a.compare(ctx, def, req.Date1, req.Date2, region, req.ChangeOptions, req.CompositeOptions)
	if err != nil {
		return nil, err
	}

	features := []*geojson.Feature{}
	if c.threshold <= def.MaxChange() {
		mask := imagery.ChangeMask{
			From:        c.from,
			To:          c.to,
			Threshold:   c.threshold,
			Direction:   c.direction,
			MinBaseline: req.MinBaseline,
		}
		found, err := a.backend.Vectorize(ctx, mask, region, a.cfg.MaxFeatures)
		if err != nil {
			return nil, fmt.Errorf("vectorize %s change: %w", def.Name, err)
		}
		if found != nil {
			features = found
		}
	}

	var affected float64
	for _, f := range features {
		if f.Geometry != nil {
			affected += geo.Area(f.Geometry)
		}
	}
	regionArea := region.AreaSquareMeters()

	var pct float64
	if regionArea > 0 {
		pct = math.Min(100, affected/regionArea*100)
	}

	logging.Ctx(ctx).Debug().Str("index", def.Name).Int("zones", len(features)).Float64("percentage", pct).Msg("Change zones vectorized")

	return &apimodels.ZonesResponse{
		Type:     "FeatureCollection",
		Features: features,
		Summary: apimodels.ZonesSummary{
			ZoneCount:          len(features),
			AffectedAreaHa:     round2(affected / squareMetersPerHectare),
			RegionAreaHa:       round2(regionArea / squareMetersPerHectare),
			PercentageAffected: round2(pct),
			Threshold:          c.threshold,
			MinBaseline:        req.MinBaseline,
			Direction:          string(c.direction),
			ChangeLabel:        def.ChangeLabel,
			Date1:              c.date1.Format(imagery.DateLayout),
			Date2:              c.date2.Format(imagery.DateLayout),
			Index:              def.Name,
		},
	}, nil
}

// Histogram buckets index(date2) - index(date1) over the region.
func (a *Analyzer) Histogram(ctx context.Context, def indices.Definition, req apimodels.HistogramRequest) ([]apimodels.HistogramBucket, error) {
	region, err := resolveRegion(req.Area, true)
	if err != nil {
		return nil, err
	}
	c, err := a.compare(ctx, def, req.Date1, req.Date2, region, apimodels.ChangeOptions{}, req.CompositeOptions)
	if err != nil {
		return nil, err
	}

	buckets := a.cfg.HistogramBuckets
	if req.Buckets != nil {
		buckets = *req.Buckets
	}

	found, err := a.backend.Histogram(ctx, imagery.Difference{From: c.from, To: c.to}, region, buckets)
	if err != nil {
		return nil, fmt.Errorf("histogram of %s difference: %w", def.Name, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no %s difference values in the selected region", ErrNoData, def.Name)
	}

	result := make([]apimodels.HistogramBucket, len(found))
	for i, b := range found {
		result[i] = apimodels.HistogramBucket{Min: b.Min, Max: b.Max, Count: b.Count}
	}
	return result, nil
}

// Dates lists the distinct acquisition dates in req.Year, ascending.
func (a *Analyzer) Dates(ctx context.Context, req apimodels.DatesRequest) (*apimodels.DatesResponse, error) {
	region, err := resolveRegion(req.Area, true)
	if err != nil {
		return nil, err
	}

	q := imagery.SceneQuery{
		Period:        imagery.AnnualPeriod(time.Date(req.Year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		Region:        region,
		MaxCloudCover: orDefault(req.MaxCloudCover, a.cfg.MaxCloudCover),
	}
	scenes, err := a.backend.Scenes(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}

	seen := make(map[string]struct{}, len(scenes))
	dates := make([]string, 0, len(scenes))
	for _, s := range scenes {
		if _, ok := seen[s.Date]; ok {
			continue
		}
		seen[s.Date] = struct{}{}
		dates = append(dates, s.Date)
	}
	sort.Strings(dates)

	return &apimodels.DatesResponse{Dates: dates}, nil
}

// rankCandidates orders scenes by cloud cover, then distance to target, then date.
func rankCandidates(scenes []imagery.Scene, target time.Time) []apimodels.CandidateImage {
	distance := func(date string) time.Duration {
		t, err := time.Parse(imagery.DateLayout, date)
		if err != nil {
			return time.Duration(math.MaxInt64)
		}
		d := t.Sub(target)
		if d < 0 {
			d = -d
		}
		return d
	}

	ranked := make([]apimodels.CandidateImage, len(scenes))
	for i, s := range scenes {
		ranked[i] = apimodels.CandidateImage{Date: s.Date, CloudCover: s.CloudCover}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CloudCover != ranked[j].CloudCover {
			return ranked[i].CloudCover < ranked[j].CloudCover
		}
		di, dj := distance(ranked[i].Date), distance(ranked[j].Date)
		if di != dj {
			return di < dj
		}
		return ranked[i].Date < ranked[j].Date
	})
	return ranked
}

// BestImage finds the least cloudy scene near req.TargetDate. Finding nothing
// is a normal result, not an error.
func (a *Analyzer) BestImage(ctx context.Context, req apimodels.BestImageRequest) (*apimodels.BestImageResponse, error) {
	target, err := ParseDate("targetDate", req.TargetDate)
	if err != nil {
		return nil, err
	}
	region, err := resolveRegion(req.Area, false)
	if err != nil {
		return nil, err
	}

	window := a.cfg.BestImageWindowDays
	if req.WindowDays != nil {
		window = *req.WindowDays
	}
	q := imagery.SceneQuery{
		Period:        imagery.WindowPeriod(target, window),
		Region:        region,
		MaxCloudCover: orDefault(req.MaxCloudCover, 100),
	}

	scenes, err := a.backend.Scenes(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}

	candidates := rankCandidates(scenes, target)
	resp := &apimodels.BestImageResponse{
		SearchRange:     dateRange(q.Period),
		CandidateImages: candidates,
	}
	if len(candidates) == 0 {
		resp.Message = fmt.Sprintf("No image found within %d days of %s", window, target.Format(imagery.DateLayout))
		return resp, nil
	}

	best := candidates[0]
	resp.BestDate = helpers.Ptr(best.Date)
	resp.CloudCover = helpers.Ptr(best.CloudCover)
	resp.Message = fmt.Sprintf("Best image on %s with %.2f%% cloud cover", best.Date, best.CloudCover)
	return resp, nil
}

// Cloudiness is the share of cloud or shadow flagged pixels in the region, in percent.
// Without a window only scenes acquired on req.Date count.
func (a *Analyzer) Cloudiness(ctx context.Context, req apimodels.CloudinessRequest) (*apimodels.CloudinessResponse, error) {
	date, err := ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	region, err := resolveRegion(req.Area, true)
	if err != nil {
		return nil, err
	}

	window := 0
	if req.WindowDays != nil {
		window = *req.WindowDays
	}
	q := imagery.SceneQuery{
		Period:        imagery.WindowPeriod(date, window),
		Region:        region,
		MaxCloudCover: orDefault(req.MaxCloudCover, 100),
	}
	summary, err := a.requireScenes(ctx, q)
	if err != nil {
		return nil, err
	}

	fraction, err := a.backend.CloudFraction(ctx, q, region)
	if err != nil {
		return nil, fmt.Errorf("cloud fraction: %w", err)
	}
	if fraction == nil {
		return nil, fmt.Errorf("%w: no quality band values in the selected region", ErrNoData)
	}

	return &apimodels.CloudinessResponse{
		Cloudiness: helpers.Ptr(round2(*fraction)),
		Date:       date.Format(imagery.DateLayout),
		DateRange:  dateRange(q.Period),
		ImageCount: summary.Count,
	}, nil
}
