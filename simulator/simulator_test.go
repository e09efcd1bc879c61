package simulator_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/simulator"
	"github.com/vkngwrapper/fitsim/simulator/mocks"
	"go.uber.org/mock/gomock"
)

func newSimulator(t *testing.T, options simulator.CreateOptions) *simulator.Simulator {
	t.Helper()

	sim, err := simulator.New(nil, options)
	require.NoError(t, err)
	require.NoError(t, sim.Validate())

	return sim
}

func TestNew(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{})

	require.Equal(t, arena.DefaultTotalSize, sim.TotalSize())
	require.Equal(t, metadata.AddressByOffset, sim.Addressing())

	arenas := sim.Arenas()
	require.Len(t, arenas, 4)
	for i, a := range arenas {
		require.Equal(t, metadata.AllStrategies[i], a.Strategy())
	}

	_, err := simulator.New(nil, simulator.CreateOptions{
		Strategies: []metadata.AllocationStrategy{metadata.AllocationStrategyBestFit, metadata.AllocationStrategyBestFit},
	})
	require.Error(t, err)

	_, err = simulator.New(nil, simulator.CreateOptions{
		Arena: arena.CreateOptions{MaxBlocks: -1},
	})
	require.Error(t, err)
}

func TestSimulator_ArenaLookup(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{
		Strategies: []metadata.AllocationStrategy{metadata.AllocationStrategyNextFit},
	})

	a, err := sim.Arena(metadata.AllocationStrategyNextFit)
	require.NoError(t, err)
	require.Equal(t, "Next Fit", a.Label())

	_, err = sim.Arena(metadata.AllocationStrategyFirstFit)
	require.Error(t, err)

	_, err = sim.Allocate(metadata.AllocationStrategyFirstFit, 10, "")
	require.Error(t, err)

	_, err = sim.Deallocate(metadata.AllocationStrategyFirstFit, arena.AddressKey(0))
	require.Error(t, err)
}

func TestSimulator_ArenasAreIndependent(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{
		Arena: arena.CreateOptions{TotalSize: 100},
	})

	region, err := sim.Allocate(metadata.AllocationStrategyWorstFit, 30, "")
	require.NoError(t, err)
	require.Equal(t, metadata.Region{Start: 0, End: 29}, region)

	outcomes := sim.AllocateAll(80, "")
	require.Len(t, outcomes, 4)
	for _, outcome := range outcomes {
		if outcome.Strategy == metadata.AllocationStrategyWorstFit {
			require.True(t, errors.Is(outcome.Err, memutils.ErrNoFit))
			continue
		}
		require.NoError(t, outcome.Err)
		require.Equal(t, metadata.Region{Start: 0, End: 79}, outcome.Region)
	}

	deallocs := sim.DeallocateAll(arena.AddressKey(0))
	for _, outcome := range deallocs {
		require.NoError(t, outcome.Err)
		if outcome.Strategy == metadata.AllocationStrategyWorstFit {
			require.Equal(t, []metadata.Region{{Start: 0, End: 29}}, outcome.Freed)
		} else {
			require.Equal(t, []metadata.Region{{Start: 0, End: 79}}, outcome.Freed)
		}
	}

	deallocs = sim.DeallocateAll(arena.AddressKey(0))
	for _, outcome := range deallocs {
		require.True(t, errors.Is(outcome.Err, memutils.ErrNotFound))
	}

	stats := sim.Statistics()
	require.Len(t, stats, 4)
	for _, stat := range stats {
		require.Equal(t, 100, stat.FreeBytes)
		if stat.Strategy == metadata.AllocationStrategyWorstFit {
			require.Equal(t, 50.0, stat.SuccessRate)
		} else {
			require.Equal(t, 100.0, stat.SuccessRate)
		}
	}

	require.Equal(t, metadata.AllocationStrategyFirstFit, sim.BestPerformer().Strategy)
	require.NoError(t, sim.Validate())

	sim.Clear()
	for _, stat := range sim.Statistics() {
		require.Equal(t, 0, stat.Counters.TotalRequests)
	}
}

func TestSimulator_RenderLayout(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{
		Arena:      arena.CreateOptions{TotalSize: 100},
		Strategies: []metadata.AllocationStrategy{metadata.AllocationStrategyFirstFit},
	})

	_, err := sim.Allocate(metadata.AllocationStrategyFirstFit, 60, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sim.RenderLayout(&buf))
	require.Equal(t, "\n=== First Fit Memory Layout ===\n"+
		"Start End  Size    Status\n"+
		"----- ---  ----    ------\n"+
		"   0   59   60    Allocated\n"+
		"  60   99   40    Free\n", buf.String())
}

func TestSimulator_RenderLayoutDefaultSize(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{
		Strategies: []metadata.AllocationStrategy{metadata.AllocationStrategyBestFit},
	})

	var buf bytes.Buffer
	require.NoError(t, sim.RenderLayout(&buf))
	require.True(t, strings.HasSuffix(buf.String(), "\n   0  999 1000    Free\n"))

	_, err := sim.Allocate(metadata.AllocationStrategyBestFit, 1000, "")
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, sim.RenderLayout(&buf))
	require.True(t, strings.HasSuffix(buf.String(), "\n   0  999 1000    Allocated\n"))
}

func TestSimulator_RenderStatistics(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{
		Arena: arena.CreateOptions{TotalSize: 100},
	})

	_, err := sim.Allocate(metadata.AllocationStrategyBestFit, 60, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sim.RenderStatistics(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	require.True(t, strings.HasPrefix(lines[4], "Best Fit"))
	require.Contains(t, lines[4], "100.0%")
	require.Equal(t, "Best performer: Best Fit (score 100.0)", lines[7])
}

func TestSimulator_BuildStatsString(t *testing.T) {
	sim := newSimulator(t, simulator.CreateOptions{})

	stats := sim.BuildStatsString(true)
	require.Contains(t, stats, sim.SessionID().String())
	require.Contains(t, stats, `"DetailedMap"`)
	require.Equal(t, 4, strings.Count(stats, `"Suballocations"`))
}

func TestSimulator_SaveStatistics(t *testing.T) {
	ctrl := gomock.NewController(t)
	visualizer := mocks.NewMockVisualizer(ctrl)

	sim := newSimulator(t, simulator.CreateOptions{
		Visualizer: visualizer,
	})

	path := filepath.Join(t.TempDir(), "memory_stats.txt")
	visualizer.EXPECT().Visualize(gomock.Any(), path).DoAndReturn(func(ctx context.Context, reportPath string) error {
		contents, err := os.ReadFile(reportPath)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(contents), "Algorithm,Allocated,Free,Fragmentation,SuccessRate\n"))
		return nil
	})

	require.NoError(t, sim.SaveStatistics(context.Background(), path))
}

func TestSimulator_SaveStatisticsVisualizerFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	visualizer := mocks.NewMockVisualizer(ctrl)

	sim := newSimulator(t, simulator.CreateOptions{
		Visualizer: visualizer,
	})

	path := filepath.Join(t.TempDir(), "memory_stats.txt")
	visualizer.EXPECT().Visualize(gomock.Any(), path).Return(errors.New("no display"))

	err := sim.SaveStatistics(context.Background(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no display")

	// The report is still written
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCommandVisualizer(t *testing.T) {
	v := &simulator.CommandVisualizer{}
	require.Error(t, v.Visualize(context.Background(), "report.txt"))

	v = &simulator.CommandVisualizer{Command: filepath.Join(t.TempDir(), "missing-binary")}
	require.Error(t, v.Visualize(context.Background(), "report.txt"))
}
