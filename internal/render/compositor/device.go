package compositor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/inscenium-media/scene.render/internal/render"
)

// tileSize is the edge of one dispatch tile. The grid mirrors a GPU launch
// of 16x16 thread blocks.
const tileSize = 16

// Device executes one compositing launch. Launch blocks until the device
// has fully completed: on a nil return every output pixel has been written,
// and on error the output holds a clean copy of the base frame, never a
// partial blend.
type Device interface {
	Name() string
	Launch(ctx context.Context, fb *FrameBuffers, p Params) error
}

// LaunchError means the kernel never started: bad buffers, cancelled
// context, device unavailable. Retrying with fixed inputs may succeed.
type LaunchError struct {
	Device string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("device %s: launch failed: %v", e.Device, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecutionError means the kernel started but a tile faulted mid-flight.
// Not retried automatically; a device fault may indicate a systemic
// resource problem the caller must decide about.
type ExecutionError struct {
	Device string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("device %s: execution failed: %v", e.Device, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CPUDevice runs the kernel across a worker pool, one 16x16 tile per unit
// of work. Tiles write disjoint output regions so workers need no
// synchronization beyond completion.
type CPUDevice struct {
	Workers int

	// faultHook, when set, fails the tile at the given grid coordinates.
	// Test seam for the execution-failure path.
	faultHook func(tileX, tileY int) error
}

// NewCPUDevice sizes the pool to the machine.
func NewCPUDevice() *CPUDevice {
	return &CPUDevice{Workers: runtime.NumCPU()}
}

func (d *CPUDevice) Name() string { return "cpu" }

type tile struct{ x, y int }

// Launch dispatches the tile grid and waits for every tile before
// returning. An in-flight launch cannot be cancelled; ctx is only consulted
// before dispatch.
func (d *CPUDevice) Launch(ctx context.Context, fb *FrameBuffers, p Params) error {
	if err := ctx.Err(); err != nil {
		return &LaunchError{Device: d.Name(), Err: err}
	}
	if fb == nil {
		return &LaunchError{Device: d.Name(), Err: fmt.Errorf("nil frame buffers")}
	}
	if err := fb.Validate(); err != nil {
		return &LaunchError{Device: d.Name(), Err: err}
	}

	tilesX := (fb.Width + tileSize - 1) / tileSize
	tilesY := (fb.Height + tileSize - 1) / tileSize
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}

	tiles := make(chan tile, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			tiles <- tile{x: tx, y: ty}
		}
	}
	close(tiles)

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		tileErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tiles {
				if d.faultHook != nil {
					if err := d.faultHook(t.x, t.y); err != nil {
						errMu.Lock()
						if tileErr == nil {
							tileErr = err
						}
						errMu.Unlock()
						continue
					}
				}
				x0 := t.x * tileSize
				y0 := t.y * tileSize
				x1 := min(x0+tileSize, fb.Width)
				y1 := min(y0+tileSize, fb.Height)
				compositeTile(fb, p, x0, y0, x1, y1)
			}
		}()
	}

	// Explicit synchronize: completion is not signalled until every tile
	// has finished.
	wg.Wait()

	if tileErr != nil {
		// No partial blends escape a failed launch.
		copy(fb.Output, fb.Base)
		render.Opsf("compositor: %s execution failed: %v", d.Name(), tileErr)
		return &ExecutionError{Device: d.Name(), Err: tileErr}
	}
	render.Tracef("compositor: %s composited %dx%d (%d tiles) depth=%.2f opacity=%.2f",
		d.Name(), fb.Width, fb.Height, tilesX*tilesY, p.CreativeDepth, p.Opacity)
	return nil
}
