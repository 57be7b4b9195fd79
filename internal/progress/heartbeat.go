package progress

import (
	"github.com/stemsi/learntrack-backend/internal/model"
)

// HeartbeatGroup is the coalesced set of video updates for one playlist.
type HeartbeatGroup struct {
	UserID     string
	PlaylistID string
	Updates    []model.VideoUpdate
	// Sources holds the heartbeats folded into Updates, for requeueing.
	Sources []model.Heartbeat
}

// CoalesceHeartbeats folds a batch of heartbeats into one update per video.
// Watch time keeps the maximum seen; duration keeps the latest reported value.
// Groups and their updates come out in first-seen order.
func CoalesceHeartbeats(batch []model.Heartbeat) []HeartbeatGroup {
	type key struct{ user, playlist string }

	index := make(map[key]int)
	videoIndex := make([]map[string]int, 0)
	latest := make([]map[string]model.Heartbeat, 0)
	var groups []HeartbeatGroup

	for _, hb := range batch {
		k := key{hb.UserID, hb.PlaylistID}
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, HeartbeatGroup{UserID: hb.UserID, PlaylistID: hb.PlaylistID})
			videoIndex = append(videoIndex, make(map[string]int))
			latest = append(latest, make(map[string]model.Heartbeat))
		}
		g := &groups[gi]
		g.Sources = append(g.Sources, hb)

		vi, seen := videoIndex[gi][hb.VideoID]
		if !seen {
			watch := hb.WatchTime
			g.Updates = append(g.Updates, model.VideoUpdate{
				VideoID:       hb.VideoID,
				WatchTime:     &watch,
				TotalDuration: copyFloat(hb.TotalDuration),
			})
			videoIndex[gi][hb.VideoID] = len(g.Updates) - 1
			latest[gi][hb.VideoID] = hb
			continue
		}

		u := &g.Updates[vi]
		if hb.WatchTime > *u.WatchTime {
			watch := hb.WatchTime
			u.WatchTime = &watch
		}
		if hb.TotalDuration != nil && !hb.ReceivedAt.Before(latest[gi][hb.VideoID].ReceivedAt) {
			u.TotalDuration = copyFloat(hb.TotalDuration)
			latest[gi][hb.VideoID] = hb
		}
	}
	return groups
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
