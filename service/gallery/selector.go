// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

// SelectVisible returns the ordered subset of participants that should occupy
// at most maxVisible tile slots.
//
// Participants in lastVisible that are still present keep their slots and
// their relative order. A visible participant is only ever evicted when it
// leaves the candidate pool, never because somebody else became more dominant.
// Free slots are then filled with the first maxDominantSpeakers entries of
// dominantSpeakerIDs (most dominant first) and finally with the remaining
// participants in input order.
//
// Negative limits are clamped to zero. Unknown or duplicate ids in either
// dominantSpeakerIDs or lastVisible are ignored. The inputs are never modified.
func SelectVisible(participants []Participant, dominantSpeakerIDs []string, lastVisible []Participant, maxVisible, maxDominantSpeakers int) []Participant {
	maxVisible = max(maxVisible, 0)
	maxDominantSpeakers = max(maxDominantSpeakers, 0)

	limit := min(maxVisible, len(participants))
	visible := make([]Participant, 0, limit)
	if limit == 0 {
		return visible
	}

	byID := make(map[string]int, len(participants))
	for i, p := range participants {
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = i
		}
	}

	added := make(map[string]bool, limit)
	add := func(id string) {
		if len(visible) == limit || added[id] {
			return
		}
		idx, ok := byID[id]
		if !ok {
			return
		}
		added[id] = true
		visible = append(visible, participants[idx])
	}

	for _, p := range lastVisible {
		add(p.ID)
	}

	if len(visible) == limit {
		return visible
	}

	for _, id := range eligibleDominant(dominantSpeakerIDs, byID, maxDominantSpeakers) {
		add(id)
	}

	for _, p := range participants {
		if len(visible) == limit {
			break
		}
		add(p.ID)
	}

	return visible
}

// eligibleDominant returns the first n distinct ids of dominantSpeakerIDs
// that belong to a candidate. Unknown and repeated ids don't use up the
// window.
func eligibleDominant(dominantSpeakerIDs []string, candidates map[string]int, n int) []string {
	eligible := make([]string, 0, min(n, len(candidates)))
	seen := make(map[string]bool, cap(eligible))
	for _, id := range dominantSpeakerIDs {
		if len(eligible) == n {
			break
		}
		if _, ok := candidates[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		eligible = append(eligible, id)
	}
	return eligible
}
