package authorstate

import (
	"maps"
	"slices"
	"time"

	"github.com/ninjabot/ninjaguard/automod/event"
)

// Mutable moderation record for one currently-active author.
//
// An AuthorState is only ever touched while holding its store entry lock (see Store.GetOrCreate); the type itself does no locking.
type AuthorState struct {
	// Last substantive text body. Attachment filenames never land here.
	LastText   string
	LastSeenAt time.Time
	// Only grows for the lifetime of this state instance
	AbuseScore float64
	// Messages seen during the current tracking window, in arrival order
	Tracked []event.MessageRef

	// Distinct channels which received text from this author
	TextChannels map[string]struct{}
	// Distinct channels which received attachment-only messages from this author
	ImageChannels map[string]struct{}
	// Recent attachment-only post times, per channel
	ImageTimes map[string][]time.Time
}

func NewAuthorState(now time.Time) *AuthorState {
	return &AuthorState{
		LastSeenAt:    now,
		TextChannels:  make(map[string]struct{}),
		ImageChannels: make(map[string]struct{}),
		ImageTimes:    make(map[string][]time.Time),
	}
}

func (s *AuthorState) Track(ref event.MessageRef) {
	s.Tracked = append(s.Tracked, ref)
}

// Removes the most recently tracked ref. Used when that message was deleted on the spot, so it does not show up again in a removal report.
func (s *AuthorState) PopLast() (event.MessageRef, bool) {
	if len(s.Tracked) == 0 {
		return event.MessageRef{}, false
	}
	last := s.Tracked[len(s.Tracked)-1]
	s.Tracked = s.Tracked[:len(s.Tracked)-1]
	return last, true
}

// Adds a positive amount to the abuse score. Non-positive deltas are ignored, which keeps the score monotonic.
func (s *AuthorState) AddAbuse(delta float64) {
	if delta > 0 {
		s.AbuseScore += delta
	}
}

// Records a text channel; returns the number of distinct text channels.
func (s *AuthorState) AddTextChannel(channelID string) int {
	if channelID != "" {
		s.TextChannels[channelID] = struct{}{}
	}
	return len(s.TextChannels)
}

// Records an attachment-only post and returns the number of posts in that channel within the window ending at ts.
func (s *AuthorState) RecordImage(channelID string, ts time.Time, window time.Duration) int {
	s.ImageChannels[channelID] = struct{}{}
	s.ImageTimes[channelID] = append(s.ImageTimes[channelID], ts)
	return s.PruneImages(channelID, ts, window)
}

// Drops image timestamps for the channel which are older than window relative to now, returning how many remain.
func (s *AuthorState) PruneImages(channelID string, now time.Time, window time.Duration) int {
	times := s.ImageTimes[channelID]
	cutoff := now.Add(-window)
	keep := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	if len(keep) == 0 {
		delete(s.ImageTimes, channelID)
		return 0
	}
	s.ImageTimes[channelID] = keep
	return len(keep)
}

// Deep copy, for handing state to readers outside the entry lock.
func (s *AuthorState) Clone() AuthorState {
	out := *s
	out.Tracked = slices.Clone(s.Tracked)
	out.TextChannels = maps.Clone(s.TextChannels)
	out.ImageChannels = maps.Clone(s.ImageChannels)
	out.ImageTimes = make(map[string][]time.Time, len(s.ImageTimes))
	for ch, times := range s.ImageTimes {
		out.ImageTimes[ch] = slices.Clone(times)
	}
	return out
}
