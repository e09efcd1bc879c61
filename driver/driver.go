package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fitsim/arena"
	"github.com/vkngwrapper/fitsim/memutils"
	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"github.com/vkngwrapper/fitsim/report"
	"github.com/vkngwrapper/fitsim/simulator"
	"golang.org/x/exp/slog"
)

// Menu choices, in the order they are printed
const (
	ChoiceAllocateAll = iota + 1
	ChoiceAllocateOne
	ChoiceDeallocateAll
	ChoiceDeallocateOne
	ChoiceDisplay
	ChoiceStatistics
	ChoiceSave
	ChoiceExit
)

const menu = `
Memory Allocation Simulator
1. Allocate memory (all algorithms)
2. Allocate memory (specific algorithm)
3. Deallocate memory (all algorithms)
4. Deallocate memory (specific algorithm)
5. Display memory state
6. Show current statistics
7. Save statistics and generate graphs
8. Exit
Choose option: `

// Options contains optional settings for a Driver. It is valid to leave all the fields blank.
type Options struct {
	// ReportPath is where option 7 saves statistics. report.DefaultPath is used when empty
	ReportPath string
	Logger     *slog.Logger
}

// Driver runs the interactive menu loop against a Simulator. Input is read as whitespace-separated
// tokens, so several answers may be given on one line.
type Driver struct {
	sim        *simulator.Simulator
	in         *bufio.Scanner
	out        io.Writer
	reportPath string
	logger     *slog.Logger
}

func New(sim *simulator.Simulator, in io.Reader, out io.Writer, options Options) *Driver {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)

	reportPath := options.ReportPath
	if reportPath == "" {
		reportPath = report.DefaultPath
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		sim:        sim,
		in:         scanner,
		out:        out,
		reportPath: reportPath,
		logger:     logger,
	}
}

// Run shows the menu until the exit option is chosen, input ends, or ctx is done
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		d.printf("%s", menu)
		choice, ok, err := d.readInt()
		if err != nil || !ok {
			return err
		}

		if choice == ChoiceExit {
			return nil
		}

		err = d.handle(ctx, choice)
		if err != nil {
			return err
		}
	}
}

func (d *Driver) handle(ctx context.Context, choice int) error {
	d.logger.Debug("Driver::handle", slog.Int("Choice", choice))

	switch choice {
	case ChoiceAllocateAll:
		size, owner, ok, err := d.readAllocation()
		if err != nil || !ok {
			return err
		}
		for _, outcome := range d.sim.AllocateAll(size, owner) {
			d.reportAllocation(outcome.Strategy, size, outcome.Region, outcome.Err)
		}
	case ChoiceAllocateOne:
		strategy, ok, err := d.readStrategy()
		if err != nil || !ok {
			return err
		}
		size, owner, ok, err := d.readAllocation()
		if err != nil || !ok {
			return err
		}
		region, err := d.sim.Allocate(strategy, size, owner)
		d.reportAllocation(strategy, size, region, err)
	case ChoiceDeallocateAll:
		key, ok, err := d.readKey()
		if err != nil || !ok {
			return err
		}
		for _, outcome := range d.sim.DeallocateAll(key) {
			d.reportDeallocation(outcome.Strategy, key, outcome.Freed, outcome.Err)
		}
	case ChoiceDeallocateOne:
		strategy, ok, err := d.readStrategy()
		if err != nil || !ok {
			return err
		}
		key, ok, err := d.readKey()
		if err != nil || !ok {
			return err
		}
		freed, err := d.sim.Deallocate(strategy, key)
		d.reportDeallocation(strategy, key, freed, err)
	case ChoiceDisplay:
		return d.sim.RenderLayout(d.out)
	case ChoiceStatistics:
		return d.sim.RenderStatistics(d.out)
	case ChoiceSave:
		err := d.sim.SaveStatistics(ctx, d.reportPath)
		if err != nil {
			d.printf("Error saving statistics: %v\n", err)
			return nil
		}
		d.printf("Statistics saved to %s\n", d.reportPath)
	default:
		d.printf("Invalid choice!\n")
	}

	return nil
}

func (d *Driver) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

func (d *Driver) readToken() (string, bool, error) {
	if !d.in.Scan() {
		return "", false, errors.Wrap(d.in.Err(), "reading input")
	}
	return d.in.Text(), true, nil
}

// readInt returns ok=false when input has ended. A token that is not a number is reported and
// read as 0, which every prompt rejects.
func (d *Driver) readInt() (int, bool, error) {
	token, ok, err := d.readToken()
	if err != nil || !ok {
		return 0, false, err
	}

	value, err := strconv.Atoi(token)
	if err != nil {
		d.printf("Invalid input %q\n", token)
		return 0, true, nil
	}

	return value, true, nil
}

func (d *Driver) readStrategy() (metadata.AllocationStrategy, bool, error) {
	arenas := d.sim.Arenas()

	d.printf("\nSelect algorithm:\n")
	for i, a := range arenas {
		d.printf("%d. %s\n", i+1, a.Label())
	}
	d.printf("Choose option: ")

	choice, ok, err := d.readInt()
	if err != nil || !ok {
		return 0, false, err
	}

	if choice < 1 || choice > len(arenas) {
		d.printf("Invalid choice!\n")
		return 0, false, nil
	}

	return arenas[choice-1].Strategy(), true, nil
}

// readAllocation prompts for a size and, for owner-keyed arenas, an owner. Sizes outside
// [1, total size] are rejected here and never reach the arenas.
func (d *Driver) readAllocation() (int, string, bool, error) {
	d.printf("Enter size to allocate: ")
	size, ok, err := d.readInt()
	if err != nil || !ok {
		return 0, "", false, err
	}

	total := d.sim.TotalSize()
	if err := memutils.CheckSize(size, total, "size"); err != nil {
		d.logger.Debug("Driver::readAllocation rejected", slog.Any("error", err))
		d.printf("Invalid size! Must be 1-%d\n", total)
		return 0, "", false, nil
	}

	if d.sim.Addressing() != metadata.AddressByOwner {
		return size, "", true, nil
	}

	d.printf("Enter owner: ")
	owner, ok, err := d.readToken()
	if err != nil || !ok {
		return 0, "", false, err
	}

	return size, owner, true, nil
}

func (d *Driver) readKey() (arena.Key, bool, error) {
	if d.sim.Addressing() == metadata.AddressByOwner {
		d.printf("Enter owner to free: ")
		owner, ok, err := d.readToken()
		if err != nil || !ok {
			return arena.Key{}, false, err
		}
		return arena.OwnerKey(owner), true, nil
	}

	d.printf("Enter starting address to free: ")
	address, ok, err := d.readInt()
	if err != nil || !ok {
		return arena.Key{}, false, err
	}

	return arena.AddressKey(address), true, nil
}

func (d *Driver) reportAllocation(strategy metadata.AllocationStrategy, size int, region metadata.Region, err error) {
	switch {
	case err == nil:
		d.printf("  [%s] Allocated %d bytes at %d-%d\n", strategy, size, region.Start, region.End)
	case errors.Is(err, memutils.ErrMaxBlocksReached):
		d.printf("  [%s] Cannot split - max blocks reached\n", strategy)
	case errors.Is(err, memutils.ErrNoFit):
		d.printf("  [%s] Failed to allocate %d bytes\n", strategy, size)
	default:
		d.printf("  [%s] %v\n", strategy, err)
	}
}

func (d *Driver) reportDeallocation(strategy metadata.AllocationStrategy, key arena.Key, freed []metadata.Region, err error) {
	if err != nil {
		if errors.Is(err, memutils.ErrNotFound) {
			d.printf("  [%s] No allocated block found for %s\n", strategy, key)
		} else {
			d.printf("  [%s] %v\n", strategy, err)
		}
		return
	}

	for _, region := range freed {
		d.printf("  [%s] Freed block at %d-%d (%d bytes)\n", strategy, region.Start, region.End, region.Size())
	}
}
