package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inscenium-media/scene.render/internal/config"
	"github.com/inscenium-media/scene.render/internal/db"
	"github.com/inscenium-media/scene.render/internal/monitor"
	"github.com/inscenium-media/scene.render/internal/render"
	"github.com/inscenium-media/scene.render/internal/render/compositor"
	"github.com/inscenium-media/scene.render/internal/render/pipeline"
	"github.com/inscenium-media/scene.render/internal/render/prs"
	"github.com/inscenium-media/scene.render/internal/render/sidecar"
	"github.com/inscenium-media/scene.render/internal/render/uncertainty"
	"github.com/inscenium-media/scene.render/internal/report"
	"github.com/inscenium-media/scene.render/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run a fixture render loop instead of waiting for a live scene feed")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbFile     = flag.String("db", "render_audit.db", "Path to the SQLite decision audit database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (defaults apply when empty)")
	manifest   = flag.String("manifest", "fixtures/sidecar.m3u8", "Sidecar manifest to load placements from (dev mode)")
	devEpochs  = flag.Int("dev-epochs", 30, "Number of decision epochs to run in dev mode")
	reportDir  = flag.String("report-dir", "", "Write timeline plots here after a dev run (empty disables)")
	trace      = flag.Bool("trace", false, "Enable per-frame trace logging")
	frameW     = flag.Int("frame-width", 1920, "Scene frame width in pixels")
	frameH     = flag.Int("frame-height", 1080, "Scene frame height in pixels")
)

func loadTuning() *config.TuningConfig {
	if *configPath == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	return cfg
}

func buildRenderer(tuning *config.TuningConfig, params *monitor.MemoryParams, audit pipeline.AuditSink) *pipeline.Renderer {
	weights, err := prs.SchemeByName(tuning.GetWeightScheme())
	if err != nil {
		log.Fatalf("Invalid weight scheme: %v", err)
	}

	engine := prs.NewEngine(prs.EngineConfig{
		Weights:                    weights,
		MinExposureDurationSeconds: tuning.GetMinExposureDurationSeconds(),
		MaxScreenCoverageFraction:  tuning.GetMaxScreenCoverageFraction(),
		FrameWidth:                 *frameW,
		FrameHeight:                *frameH,
	})
	estimator := uncertainty.NewEstimator(uncertainty.Config{
		WindowFrames:  tuning.GetTemporalWindowFrames(),
		JitterScalePx: tuning.GetJitterScalePx(),
	})

	return pipeline.NewRenderer(engine, estimator, compositor.NewCPUDevice(), audit, pipeline.Config{
		ThresholdSource:     params.Get,
		DecisionDwellEpochs: tuning.GetDecisionDwellFrames(),
		Device:              render.DefaultDeviceProfile(render.DeviceGPU),
	})
}

// loadFixturePlacements reads placements from the sidecar manifest and
// attaches a synthetic surface and tracking history to each, standing in for
// the scene-understanding feed.
func loadFixturePlacements(tuning *config.TuningConfig, windowStart time.Time) []*pipeline.Placement {
	f, err := os.Open(*manifest)
	if err != nil {
		log.Fatalf("Failed to open sidecar manifest: %v", err)
	}
	defer f.Close()

	descriptors, err := sidecar.ExtractPlacements(f, windowStart, float64(*devEpochs))
	if err != nil {
		log.Fatalf("Failed to decode sidecar manifest: %v", err)
	}
	log.Printf("Loaded %d placement descriptors from %s", len(descriptors), *manifest)

	planeLen := *frameW * *frameH
	placements := make([]*pipeline.Placement, 0, len(descriptors))
	for i, d := range descriptors {
		// Fixture manifests carry historical timestamps; re-anchor each
		// placement to the run window so the loop actually composites.
		d.StartDate = windowStart
		d.OutOfRange = false
		s := render.NewSurface(d.SurfaceID, render.SurfaceWall)
		s.CornersPx = [4][2]float64{{200, 200}, {840, 200}, {840, 560}, {200, 560}}
		s.Normal = [3]float64{0, 0, 1}
		s.Planarity = 0.68
		s.AreaPx = 640 * 360
		s.AreaM2 = 6.0
		s.PixelResolution = 500
		s.ObservedFrames = 40
		s.DetectionConfidence = 0.92
		s.DepthConfidence = 0.85
		s.DepthVariance = 0.02
		s.OcclusionProbability = 0.05
		s.ViewingAngleDot = 0.95
		s.LightingConsistency = 0.9
		s.ContrastRatio = 0.8
		s.BrandSafetyScore = 95

		hist := render.NewTrackingHistory(tuning.GetTemporalWindowFrames())
		for j := 0; j < tuning.GetTemporalWindowFrames(); j++ {
			c := s.CornersPx
			dx := 0.5 * math.Sin(float64(j))
			for k := range c {
				c[k][0] += dx
			}
			hist.Push(render.CornerSample{
				FrameTime: windowStart.Add(time.Duration(j-tuning.GetTemporalWindowFrames()) * 33 * time.Millisecond),
				Corners:   c,
			})
		}

		creative := make([]uint8, 4*planeLen)
		alpha := make([]uint8, planeLen)
		fillCreative(creative, alpha, *frameW, *frameH, s.CornersPx, uint8(60+i*50))

		placements = append(placements, &pipeline.Placement{
			Descriptor: d,
			Surface:    s,
			History:    hist,
			Creative:   creative,
			Alpha:      alpha,
		})
	}
	return placements
}

// fillCreative paints a flat test card into the surface's bounding box,
// clipped to the frame.
func fillCreative(creative, alpha []uint8, w, h int, corners [4][2]float64, tone uint8) {
	minX, minY := max(int(corners[0][0]), 0), max(int(corners[0][1]), 0)
	maxX, maxY := min(int(corners[2][0]), w), min(int(corners[2][1]), h)
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			i := y*w + x
			creative[4*i+0] = tone
			creative[4*i+1] = 255 - tone
			creative[4*i+2] = 128
			creative[4*i+3] = 255
			alpha[i] = 255
		}
	}
}

// runDevLoop drives the renderer over synthetic epochs, one frame per epoch.
func runDevLoop(ctx context.Context, renderer *pipeline.Renderer, placements []*pipeline.Placement, adb *db.DB) {
	planeLen := *frameW * *frameH
	base := make([]uint8, 4*planeLen)
	depth := make([]float32, planeLen)
	for i := range depth {
		depth[i] = 8.0
	}
	for i := 0; i < planeLen; i++ {
		base[4*i+0] = uint8(i % 251)
		base[4*i+1] = uint8((i * 3) % 251)
		base[4*i+2] = uint8((i * 7) % 251)
		base[4*i+3] = 255
	}

	start := time.Now().UTC()
	for epoch := 0; epoch < *devEpochs; epoch++ {
		if ctx.Err() != nil {
			log.Printf("Dev loop cancelled at epoch %d", epoch)
			return
		}
		now := start.Add(time.Duration(epoch) * time.Second)
		evals := renderer.EvaluateEpoch(ctx, now, placements)
		if _, err := renderer.ComposeFrame(ctx, base, depth, *frameW, *frameH, evals); err != nil {
			log.Printf("Compose error at epoch %d: %v", epoch, err)
		}
	}
	log.Printf("Dev loop complete: %d epochs over %d placements", *devEpochs, len(placements))

	if *reportDir != "" {
		writeReports(ctx, adb, placements)
	}
}

func writeReports(ctx context.Context, adb *db.DB, placements []*pipeline.Placement) {
	plotter := report.NewTimelinePlotter(*reportDir)
	for _, pl := range placements {
		recs, err := adb.PlacementDecisions(ctx, pl.Descriptor.ID, 0)
		if err != nil {
			log.Printf("Failed to load decisions for %s: %v", pl.Descriptor.ID, err)
			continue
		}
		summary := report.Summarize(recs)
		log.Printf("Placement %s: %d decisions (high=%d medium=%d low=%d, mean PRS %.1f)",
			pl.Descriptor.ID, summary.Total, summary.High, summary.Medium, summary.Low, summary.MeanPRS)
		if _, _, err := plotter.Generate(pl.Descriptor.ID, recs); err != nil {
			log.Printf("Failed to plot %s: %v", pl.Descriptor.ID, err)
		}
	}
}

// Main
func main() {
	// Maintenance subcommand: renderd migrate [-db path] <action> [args]
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("db", "render_audit.db", "Path to the SQLite decision audit database")
		if err := fs.Parse(os.Args[2:]); err != nil {
			log.Fatalf("Failed to parse migrate flags: %v", err)
		}
		db.RunMigrateCommand(fs.Args(), *path)
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	log.Printf("renderd %s (commit %s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	writers := render.LogWriters{Ops: os.Stderr, Diag: os.Stderr}
	if *trace {
		writers.Trace = os.Stderr
	}
	render.SetLogWriters(writers)

	tuning := loadTuning()
	params := monitor.NewMemoryParams(tuning.GateThresholds())

	adb, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to audit database: %v", err)
	}
	defer adb.Close()

	if err := adb.MigrateUp(db.MigrationsFS()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	renderer := buildRenderer(tuning, params, adb)

	// Create a wait group for the HTTP server and render loop routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *devMode {
		placements := loadFixturePlacements(tuning, time.Now().UTC())
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDevLoop(ctx, renderer, placements, adb)
			log.Print("Render loop routine terminated")
		}()
	} else {
		log.Print("No live scene feed configured; serving monitor API only (use -dev for a fixture run)")
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *listen,
			Store:   adb,
			Params:  params,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Print("Graceful shutdown complete")
}
