// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

// speakerRanking keeps participant ids ordered by speaking recency, most
// recently active first. Callers must serialize access.
type speakerRanking struct {
	ids []string
}

// Promote moves id to the front of the ranking.
func (r *speakerRanking) Promote(id string) bool {
	if id == "" {
		return false
	}
	if len(r.ids) > 0 && r.ids[0] == id {
		return false
	}
	r.remove(id)
	r.ids = append(r.ids, "")
	copy(r.ids[1:], r.ids)
	r.ids[0] = id
	return true
}

func (r *speakerRanking) Remove(id string) bool {
	return r.remove(id)
}

// Set replaces the ranking, dropping empty and repeated ids.
func (r *speakerRanking) Set(ids []string) bool {
	seen := make(map[string]bool, len(ids))
	ranking := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ranking = append(ranking, id)
	}

	changed := len(ranking) != len(r.ids)
	if !changed {
		for i := range ranking {
			if ranking[i] != r.ids[i] {
				changed = true
				break
			}
		}
	}
	r.ids = ranking
	return changed
}

func (r *speakerRanking) IDs() []string {
	ids := make([]string, len(r.ids))
	copy(ids, r.ids)
	return ids
}

func (r *speakerRanking) remove(id string) bool {
	for i := range r.ids {
		if r.ids[i] == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return true
		}
	}
	return false
}
