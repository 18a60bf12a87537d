package guard

// Score returns the highest repetition count across all buckets of the user.
func (u *TrackedUser) Score() int {
	score := 0
	for _, group := range u.Groups {
		score = max(score, group.Hits)
	}

	if u.Links != nil {
		score = max(score, u.Links.Hits)
	}

	return score
}

// Worst returns the bucket that explains the user's score.
// The first group with the highest count wins, unless the link counter is strictly higher.
func (u *TrackedUser) Worst() Bucket {
	var worst *ContentGroup
	for _, group := range u.Groups {
		if worst == nil || group.Hits > worst.Hits {
			worst = group
		}
	}

	if u.Links != nil && (worst == nil || u.Links.Hits > worst.Hits) {
		return u.Links
	}

	if worst == nil {
		return nil
	}

	return worst
}
