package compositor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame builds a 40x24 frame (crosses tile boundaries) with a gradient
// base, a solid creative, mixed depth, and a mask covering the left half.
func testFrame() *FrameBuffers {
	fb := NewFrameBuffers(40, 24)
	for i := 0; i < fb.Width*fb.Height; i++ {
		px := i * 4
		fb.Base[px+0] = uint8(i % 251)
		fb.Base[px+1] = uint8((i * 3) % 251)
		fb.Base[px+2] = uint8((i * 7) % 251)
		fb.Base[px+3] = 255

		fb.Creative[px+0] = 200
		fb.Creative[px+1] = 40
		fb.Creative[px+2] = 90
		fb.Creative[px+3] = 180

		switch i % 3 {
		case 0:
			fb.Depth[i] = 5.0 // scene behind the creative
		case 1:
			fb.Depth[i] = 1.0 // scene in front
		default:
			fb.Depth[i] = 0 // no depth data
		}
		if i%fb.Width < fb.Width/2 {
			fb.Alpha[i] = 255
		}
	}
	return fb
}

func TestReferenceZTest(t *testing.T) {
	t.Parallel()
	fb := testFrame()
	p := Params{CreativeDepth: 3.0, Opacity: 1.0}
	require.NoError(t, Reference(fb, p))

	for i := 0; i < fb.Width*fb.Height; i++ {
		px := i * 4
		if fb.Depth[i] > 0 && float32(3.0) >= fb.Depth[i] {
			// Occluded by scene content: base passes through exactly.
			assert.Equal(t, fb.Base[px:px+4], fb.Output[px:px+4], "pixel %d", i)
		}
	}
}

func TestReferenceAlphaZeroIdentity(t *testing.T) {
	t.Parallel()
	fb := testFrame()
	require.NoError(t, Reference(fb, Params{CreativeDepth: 3.0, Opacity: 1.0}))

	for i := 0; i < fb.Width*fb.Height; i++ {
		if fb.Alpha[i] == 0 {
			px := i * 4
			assert.Equal(t, fb.Base[px:px+4], fb.Output[px:px+4], "pixel %d", i)
		}
	}
}

func TestReferenceFullOpacityBlend(t *testing.T) {
	t.Parallel()
	fb := testFrame()
	require.NoError(t, Reference(fb, Params{CreativeDepth: 3.0, Opacity: 1.0}))

	for i := 0; i < fb.Width*fb.Height; i++ {
		shouldComposite := float32(3.0) < fb.Depth[i] || fb.Depth[i] <= 0
		if !shouldComposite || fb.Alpha[i] != 255 {
			continue
		}
		px := i * 4
		// RGB comes from the creative exactly; alpha stays the base's.
		assert.Equal(t, fb.Creative[px:px+3], fb.Output[px:px+3], "pixel %d", i)
		assert.Equal(t, fb.Base[px+3], fb.Output[px+3], "pixel %d alpha", i)
	}
}

func TestReferenceMissingDepthComposites(t *testing.T) {
	t.Parallel()
	fb := NewFrameBuffers(4, 4)
	for i := range fb.Alpha {
		fb.Alpha[i] = 255
		fb.Depth[i] = -1 // no occluder known
		px := i * 4
		fb.Creative[px] = 123
	}
	require.NoError(t, Reference(fb, Params{CreativeDepth: 100, Opacity: 1.0}))
	assert.Equal(t, uint8(123), fb.Output[0])
}

func TestBlendChannelRounding(t *testing.T) {
	t.Parallel()
	// Endpoint exactness is the contract both kernel and reference obey.
	for v := 0; v < 256; v += 17 {
		assert.Equal(t, uint8(v), blendChannel(uint8(v), 7, 255))
		assert.Equal(t, uint8(7), blendChannel(uint8(v), 7, 0))
	}
	// Midpoint rounds to nearest.
	assert.Equal(t, uint8(100), blendChannel(200, 0, 128)) // 200*128/255 = 100.39
}

func TestEffectiveAlpha(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint32(255), effectiveAlpha(255, 1.0))
	assert.Equal(t, uint32(0), effectiveAlpha(255, 0))
	assert.Equal(t, uint32(0), effectiveAlpha(0, 1.0))
	assert.Equal(t, uint32(128), effectiveAlpha(255, 0.5))
}

func TestCPUDeviceMatchesReference(t *testing.T) {
	t.Parallel()
	p := Params{CreativeDepth: 3.0, Opacity: 0.65}

	ref := testFrame()
	require.NoError(t, Reference(ref, p))

	got := testFrame()
	dev := NewCPUDevice()
	require.NoError(t, dev.Launch(context.Background(), got, p))

	assert.Equal(t, ref.Output, got.Output)
}

func TestCPUDeviceLaunchErrors(t *testing.T) {
	t.Parallel()
	dev := NewCPUDevice()

	t.Run("nil buffers", func(t *testing.T) {
		t.Parallel()
		err := dev.Launch(context.Background(), nil, Params{})
		var lerr *LaunchError
		require.ErrorAs(t, err, &lerr)
	})

	t.Run("mismatched plane length", func(t *testing.T) {
		t.Parallel()
		fb := NewFrameBuffers(8, 8)
		fb.Depth = fb.Depth[:10]
		err := dev.Launch(context.Background(), fb, Params{})
		var lerr *LaunchError
		require.ErrorAs(t, err, &lerr)
		assert.ErrorIs(t, err, ErrBufferSize)
	})

	t.Run("cancelled context never launches", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := dev.Launch(ctx, testFrame(), Params{})
		var lerr *LaunchError
		require.ErrorAs(t, err, &lerr)
	})
}

func TestCPUDeviceExecutionFailure(t *testing.T) {
	t.Parallel()
	fb := testFrame()
	dev := NewCPUDevice()
	dev.faultHook = func(tx, ty int) error {
		if tx == 1 && ty == 0 {
			return fmt.Errorf("simulated tile fault")
		}
		return nil
	}

	err := dev.Launch(context.Background(), fb, Params{CreativeDepth: 3.0, Opacity: 1.0})
	var xerr *ExecutionError
	require.ErrorAs(t, err, &xerr)
	assert.False(t, errors.As(err, new(*LaunchError)))

	// A failed launch leaves no partial blend: output equals base.
	assert.Equal(t, fb.Base, fb.Output)
}

func TestReduceCreativeDetail(t *testing.T) {
	t.Parallel()

	t.Run("alpha zero pixels stay zero", func(t *testing.T) {
		t.Parallel()
		fb := NewFrameBuffers(6, 6)
		for i := range fb.Alpha {
			fb.Alpha[i] = 255
		}
		fb.Alpha[0] = 0 // one transparent pixel in the first block
		ReduceCreativeDetail(fb)
		// The whole 2x2 block min-pools to transparent.
		assert.Equal(t, uint8(0), fb.Alpha[0])
		assert.Equal(t, uint8(0), fb.Alpha[1])
		assert.Equal(t, uint8(0), fb.Alpha[fb.Width])
		// Blocks without transparent pixels are untouched.
		assert.Equal(t, uint8(255), fb.Alpha[4])
	})

	t.Run("creative blocks average", func(t *testing.T) {
		t.Parallel()
		fb := NewFrameBuffers(2, 2)
		fb.Creative[0] = 10  // (0,0) red
		fb.Creative[4] = 20  // (1,0) red
		fb.Creative[8] = 30  // (0,1) red
		fb.Creative[12] = 40 // (1,1) red
		ReduceCreativeDetail(fb)
		for i := 0; i < 4; i++ {
			assert.Equal(t, uint8(25), fb.Creative[i*4])
		}
	})

	t.Run("odd dimensions clamp at the edge", func(t *testing.T) {
		t.Parallel()
		fb := NewFrameBuffers(3, 3)
		for i := range fb.Alpha {
			fb.Alpha[i] = 200
		}
		ReduceCreativeDetail(fb)
		assert.Equal(t, uint8(200), fb.Alpha[8])
	})
}

func TestChainAppliesInOrder(t *testing.T) {
	t.Parallel()
	var order []string
	stage := func(name string, fail bool) PostStage {
		return &fakeStage{name: name, fail: fail, order: &order}
	}

	fb := NewFrameBuffers(2, 2)
	c := Chain{stage("a", false), stage("b", true), stage("c", false)}
	err := c.Apply(context.Background(), fb, Params{})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

type fakeStage struct {
	name  string
	fail  bool
	order *[]string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Apply(_ context.Context, _ *FrameBuffers, _ Params) error {
	*s.order = append(*s.order, s.name)
	if s.fail {
		return fmt.Errorf("stage %s failed", s.name)
	}
	return nil
}
