package simulator

import (
	"fmt"
	"io"

	"github.com/vkngwrapper/fitsim/memutils/metadata"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

func status(region metadata.Suballocation) string {
	if !region.Allocated {
		return "Free"
	}
	if region.Owner != "" {
		return "Allocated (" + region.Owner + ")"
	}
	return "Allocated"
}

// RenderLayout writes the region table of every arena
func (s *Simulator) RenderLayout(w io.Writer) error {
	for _, a := range s.arenas {
		_, err := printer.Fprintf(w, "\n=== %s Memory Layout ===\n", a.Label())
		if err != nil {
			return err
		}
		_, err = printer.Fprintf(w, "Start End  Size    Status\n----- ---  ----    ------\n")
		if err != nil {
			return err
		}

		for _, region := range a.Snapshot() {
			_, err = fmt.Fprintf(w, "%4d %4d %4d    %s\n", region.Offset, region.End(), region.Size, status(region))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// RenderStatistics writes the success rate and fragmentation of every arena, then the best performer
func (s *Simulator) RenderStatistics(w io.Writer) error {
	_, err := printer.Fprintf(w, "\nCurrent Statistics:\n"+
		"Algorithm     Success Rate  Fragmentation  Allocated     Free\n"+
		"----------    ------------  -------------  ---------  -------\n")
	if err != nil {
		return err
	}

	stats := s.Statistics()
	for _, stat := range stats {
		_, err = printer.Fprintf(w, "%-10s    %6.1f%%       %6.1f%%        %9d  %7d\n",
			stat.Label, stat.SuccessRate, stat.FragmentationPercent, stat.AllocatedBytes, stat.FreeBytes)
		if err != nil {
			return err
		}
	}

	best := s.BestPerformer()
	_, err = printer.Fprintf(w, "Best performer: %s (score %.1f)\n", best.Label, best.Score())
	return err
}
