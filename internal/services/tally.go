package services

import (
	"sort"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
)

type TallyService struct{}

func NewTallyService() *TallyService {
	return &TallyService{}
}

type rankedEntry struct {
	entry       models.TallyEntry
	firstVoteAt time.Time
	firstVoteID uint
	order       int
}

// Rank aggregates votes per target and orders the result: vote count
// descending, ties by the earliest first received vote, zero-vote participants
// last in join order. The first topN entries are nuggets.
//
// participants must be in join order. A vote whose target is missing from
// participants still gets an entry so the counts always add up to len(votes).
func (s *TallyService) Rank(sessionID uint, participants []models.Participant, votes []models.Vote, topN int) []models.TallyEntry {
	byID := make(map[uint]*rankedEntry, len(participants))
	ranked := make([]*rankedEntry, 0, len(participants))

	for i, p := range participants {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		re := &rankedEntry{
			entry: models.TallyEntry{
				SessionID:     sessionID,
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
			},
			order: i,
		}
		byID[p.ID] = re
		ranked = append(ranked, re)
	}

	for _, v := range votes {
		re, ok := byID[v.VotedForParticipantID]
		if !ok {
			re = &rankedEntry{
				entry: models.TallyEntry{SessionID: sessionID, ParticipantID: v.VotedForParticipantID},
				order: len(ranked),
			}
			byID[v.VotedForParticipantID] = re
			ranked = append(ranked, re)
		}
		re.entry.VoteCount++
		if re.entry.VoteCount == 1 || v.CastAt.Before(re.firstVoteAt) ||
			(v.CastAt.Equal(re.firstVoteAt) && v.ID < re.firstVoteID) {
			re.firstVoteAt = v.CastAt
			re.firstVoteID = v.ID
		}
	}

	sort.Slice(ranked, func(a, b int) bool {
		ea, eb := ranked[a], ranked[b]
		if ea.entry.VoteCount != eb.entry.VoteCount {
			return ea.entry.VoteCount > eb.entry.VoteCount
		}
		if ea.entry.VoteCount == 0 {
			return ea.order < eb.order
		}
		if !ea.firstVoteAt.Equal(eb.firstVoteAt) {
			return ea.firstVoteAt.Before(eb.firstVoteAt)
		}
		if ea.firstVoteID != eb.firstVoteID {
			return ea.firstVoteID < eb.firstVoteID
		}
		return ea.order < eb.order
	})

	result := make([]models.TallyEntry, len(ranked))
	for i, re := range ranked {
		e := re.entry
		e.Rank = i + 1
		if e.VoteCount > 0 {
			at := re.firstVoteAt
			e.FirstVoteAt = &at
		}
		if i < topN {
			e.Label = models.LabelNugget
		} else {
			e.Label = models.LabelLightbulb
		}
		result[i] = e
	}
	return result
}
