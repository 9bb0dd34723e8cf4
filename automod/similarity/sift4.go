// Bounded string distance used to spot near-duplicate chat messages.
//
// The metric is SIFT4: a linear-time approximation of edit distance which only searches a small window (MaxOffset) around the cursor when characters stop matching. It is far cheaper than Levenshtein on long messages, and is good enough to tell "same spam, one character changed" from unrelated text.
package similarity

import (
	"math"
)

// Maximum look-ahead (in grapheme clusters) when re-synchronizing after a mismatch.
const MaxOffset = 5

// Distance returned when exactly one side is empty. Chosen so it can never fall under any near-duplicate cutoff.
const Unrelated = math.MaxInt32

type offset struct {
	c1    int
	c2    int
	trans bool
}

// Distance returns the SIFT4 distance between two texts after normalization. Zero means identical (under Normalize); lower is more similar.
//
// Safe for concurrent use.
func Distance(a, b string) int {
	return DistanceWithOffset(a, b, MaxOffset)
}

// DistanceWithOffset is Distance with an explicit look-ahead window.
func DistanceWithOffset(a, b string, maxOffset int) int {
	t1 := graphemes(Normalize(a))
	t2 := graphemes(Normalize(b))
	l1, l2 := len(t1), len(t2)
	switch {
	case l1 == 0 && l2 == 0:
		return 0
	case l1 == 0 || l2 == 0:
		return Unrelated
	}
	if maxOffset < 1 {
		maxOffset = 1
	}

	var (
		c1, c2       int
		lcss, local  int
		trans        int
		offsets      []offset
		steps, limit = 0, (l1 + l2 + 1) * (maxOffset + 2)
	)
	for c1 < l1 && c2 < l2 {
		// hard bound on work, independent of input shape
		steps++
		if steps > limit {
			break
		}

		if t1[c1] == t2[c2] {
			local++
			isTrans := false
			i := 0
			for i < len(offsets) {
				ofs := &offsets[i]
				if c1 <= ofs.c1 || c2 <= ofs.c2 {
					isTrans = abs(c2-c1) >= abs(ofs.c2-ofs.c1)
					if isTrans {
						trans++
					} else if !ofs.trans {
						ofs.trans = true
						trans++
					}
					break
				}
				if c1 > ofs.c2 && c2 > ofs.c1 {
					offsets = append(offsets[:i], offsets[i+1:]...)
				} else {
					i++
				}
			}
			offsets = append(offsets, offset{c1: c1, c2: c2, trans: isTrans})
		} else {
			lcss += local
			local = 0
			if c1 != c2 {
				c1 = min(c1, c2)
				c2 = c1
			}
			// cursors are decremented on a hit so the shared increment below lands on the match
			for i := 0; i < maxOffset && (c1+i < l1 || c2+i < l2); i++ {
				if c1+i < l1 && t1[c1+i] == t2[c2] {
					c1 += i - 1
					c2--
					break
				}
				if c2+i < l2 && t1[c1] == t2[c2+i] {
					c1--
					c2 += i - 1
					break
				}
			}
		}
		c1++
		c2++
		if c1 >= l1 || c2 >= l2 {
			lcss += local
			local = 0
			c1 = min(c1, c2)
			c2 = c1
		}
	}
	lcss += local

	d := max(l1, l2) - lcss + trans
	if d < 0 {
		return 0
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
