// Package stats holds the structured occupancy and memory report exported by a
// tape, and a Prometheus collector that publishes it.
//
// A report is a list of named sections, each holding named numeric entries.
// Memory entries are stored in megabytes and may be flagged as contributing to
// the report's total memory.
package stats

import (
	"fmt"
	"io"
	"strings"
)

// ByteToMB converts a byte count into megabytes.
const ByteToMB = 1.0 / 1024.0 / 1024.0

// Entry is one named value inside a section.
type Entry struct {
	Name    string
	Value   float64
	Integer bool // Render without decimals
	Memory  bool // Value is in MB
	Total   bool // Counted in TotalMemory
}

// Section groups related entries.
type Section struct {
	Name    string
	Entries []Entry
}

// Values is the full report for one tape.
type Values struct {
	Name     string
	ID       string
	Sections []*Section
}

// New creates an empty report.
func New(name, id string) *Values {
	return &Values{Name: name, ID: id}
}

// AddSection appends a new section and returns it for filling.
func (v *Values) AddSection(name string) *Section {
	s := &Section{Name: name}
	v.Sections = append(v.Sections, s)
	return s
}

// AddInt adds an integer counter.
func (s *Section) AddInt(name string, value int) {
	s.Entries = append(s.Entries, Entry{Name: name, Value: float64(value), Integer: true})
}

// AddFloat adds a plain floating point entry.
func (s *Section) AddFloat(name string, value float64) {
	s.Entries = append(s.Entries, Entry{Name: name, Value: value})
}

// AddMemory adds a memory entry given in bytes. Entries with total set are
// summed by TotalMemory.
func (s *Section) AddMemory(name string, bytes int, total bool) {
	s.Entries = append(s.Entries, Entry{
		Name:   name,
		Value:  float64(bytes) * ByteToMB,
		Memory: true,
		Total:  total,
	})
}

// Lookup finds an entry by section and entry name.
func (v *Values) Lookup(section, entry string) (Entry, bool) {
	for _, s := range v.Sections {
		if s.Name != section {
			continue
		}
		for _, e := range s.Entries {
			if e.Name == entry {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// TotalMemory sums all memory entries flagged as total, in MB.
func (v *Values) TotalMemory() float64 {
	var total float64
	for _, s := range v.Sections {
		for _, e := range s.Entries {
			if e.Memory && e.Total {
				total += e.Value
			}
		}
	}
	return total
}

// WriteTo renders the report as an aligned text table.
func (v *Values) WriteTo(w io.Writer) (int64, error) {
	const width = 24

	var b strings.Builder
	rule := strings.Repeat("-", 60)

	b.WriteString(rule + "\n")
	b.WriteString(v.Name)
	if v.ID != "" {
		fmt.Fprintf(&b, " [%s]", v.ID)
	}
	b.WriteString("\n")
	for _, s := range v.Sections {
		b.WriteString(rule + "\n")
		fmt.Fprintf(&b, "  %s\n", s.Name)
		for _, e := range s.Entries {
			switch {
			case e.Memory:
				fmt.Fprintf(&b, "  %-*s : %12.2f MB\n", width, e.Name, e.Value)
			case e.Integer:
				fmt.Fprintf(&b, "  %-*s : %12d\n", width, e.Name, int64(e.Value))
			default:
				fmt.Fprintf(&b, "  %-*s : %12.4g\n", width, e.Name, e.Value)
			}
		}
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "  %-*s : %12.2f MB\n", width, "Total memory", v.TotalMemory())
	b.WriteString(rule + "\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
