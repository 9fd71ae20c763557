package samples

import (
	"fmt"
	"strings"
)

func canonicalName(s string) string {
	return strings.TrimRight(s, " \x00")
}

// Canonical returns a copy of ds with names trimmed of padding and empty
// event lists normalized, so that equal content compares equal.
func (ds *DeviceSamples) Canonical() *DeviceSamples {
	out := &DeviceSamples{Reserved: ds.Reserved}
	for i, p := range ds.Pages {
		if p == nil {
			continue
		}
		cp := &SamplePack{Name: canonicalName(p.Name)}
		for j, l := range p.Loops {
			if l == nil {
				continue
			}
			cl := &LoopData{LengthBeats: l.LengthBeats}
			if len(l.Events) > 0 {
				cl.Events = append([]DrumEvent(nil), l.Events...)
			}
			cp.Loops[j] = cl
		}
		out.Pages[i] = cp
	}
	return out
}

// Equal reports whether two loops hold the same events.
func (l *LoopData) Equal(o *LoopData) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.LengthBeats != o.LengthBeats || len(l.Events) != len(o.Events) {
		return false
	}
	for i := range l.Events {
		if l.Events[i] != o.Events[i] {
			return false
		}
	}
	return true
}

// PageDiff is the comparison of one page.
type PageDiff struct {
	Present   [2]bool
	NameA     string
	NameB     string
	LoopsSame [LoopsPerPage]bool
}

// Identical reports whether both sides hold the same page.
func (d PageDiff) Identical() bool {
	if d.Present[0] != d.Present[1] {
		return false
	}
	if !d.Present[0] {
		return true
	}
	if d.NameA != d.NameB {
		return false
	}
	for _, same := range d.LoopsSame {
		if !same {
			return false
		}
	}
	return true
}

// Diff is the page by page comparison of two sample sets.
type Diff struct {
	Pages [NumPages]PageDiff
}

// Compare compares a and b after canonicalizing both. Reserved words are
// not compared.
func Compare(a, b *DeviceSamples) Diff {
	a, b = a.Canonical(), b.Canonical()
	var d Diff
	for i := range d.Pages {
		pa, pb := a.Pages[i], b.Pages[i]
		pd := &d.Pages[i]
		pd.Present = [2]bool{pa != nil, pb != nil}
		if pa == nil || pb == nil {
			continue
		}
		pd.NameA, pd.NameB = pa.Name, pb.Name
		if pa.Name != pb.Name {
			continue
		}
		for j := range pd.LoopsSame {
			pd.LoopsSame[j] = pa.Loops[j].Equal(pb.Loops[j])
		}
	}
	return d
}

// Identical reports whether every page is identical.
func (d Diff) Identical() bool {
	for _, p := range d.Pages {
		if !p.Identical() {
			return false
		}
	}
	return true
}

// Differences describes each page that differs.
func (d Diff) Differences() []string {
	var out []string
	for i, p := range d.Pages {
		switch {
		case p.Identical():
		case p.Present[0] != p.Present[1]:
			out = append(out, fmt.Sprintf("page %d: present %v, got %v", i, p.Present[0], p.Present[1]))
		case p.NameA != p.NameB:
			out = append(out, fmt.Sprintf("page %d: name %q, got %q", i, p.NameA, p.NameB))
		default:
			var loops []string
			for j, same := range p.LoopsSame {
				if !same {
					loops = append(loops, fmt.Sprint(j))
				}
			}
			out = append(out, fmt.Sprintf("page %d (%s): loops %s differ", i, p.NameA, strings.Join(loops, ",")))
		}
	}
	return out
}

func (d Diff) String() string {
	if d.Identical() {
		return "identical"
	}
	return strings.Join(d.Differences(), "; ")
}
