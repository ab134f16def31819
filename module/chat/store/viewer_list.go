package store

import (
	"sort"

	"tripchat/module/chat/model"
)

// buildView resolves one stored conversation into a viewer-facing entry.
// users must contain every participant; lastMsgs is keyed by message id.
func buildView(viewerID string, conv model.Conversation, users map[string]model.User, lastMsgs map[string]model.Message) *model.ConversationView {
	v := &model.ConversationView{Conversation: conv}
	for _, id := range conv.ParticipantIDs {
		if u, ok := users[id]; ok {
			v.Participants = append(v.Participants, u)
		}
	}
	if conv.LastMessageID != "" {
		if m, ok := lastMsgs[conv.LastMessageID]; ok {
			mv := &model.MessageView{Message: m}
			if u, ok := users[m.SenderID]; ok {
				mv.Sender = u
			}
			v.LastMessage = mv
		}
	}
	v.IsUnread = v.LastMessage != nil && v.LastMessage.UnreadFor(viewerID)
	return v
}

// dedupeByPair collapses duplicate conversations for the same unordered
// participant pair (a benign first-contact race can create two rows),
// keeping the one with the most recent activity.
func dedupeByPair(views []*model.ConversationView) []*model.ConversationView {
	byPair := make(map[string]*model.ConversationView, len(views))
	out := views[:0]
	for _, v := range views {
		key := v.Pair()
		if key == "" {
			out = append(out, v)
			continue
		}
		if kept, ok := byPair[key]; ok {
			if v.ActivityAt() > kept.ActivityAt() {
				*kept = *v
			}
			continue
		}
		byPair[key] = v
		out = append(out, v)
	}
	return out
}

// buildViewerList assembles the list for a non-privileged viewer: only the
// conversations the viewer takes part in, most recent activity first.
func buildViewerList(viewerID string, convs []model.Conversation, users map[string]model.User, lastMsgs map[string]model.Message) []*model.ConversationView {
	views := make([]*model.ConversationView, 0, len(convs))
	for _, c := range convs {
		if !c.HasParticipant(viewerID) {
			continue
		}
		views = append(views, buildView(viewerID, c, users, lastMsgs))
	}
	views = dedupeByPair(views)
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].ActivityAt() > views[j].ActivityAt()
	})
	return views
}

// buildAdminList synthesizes one entry per other user in the system, so the
// admin can open a thread with anyone. Users with a real conversation get it
// (with the unread flag); users without one get an isNew placeholder whose
// sort position is their account-creation time.
func buildAdminList(viewer model.User, others []model.User, convs []model.Conversation, users map[string]model.User, lastMsgs map[string]model.Message) []*model.ConversationView {
	byOther := make(map[string]*model.ConversationView, len(convs))
	for _, c := range convs {
		if !c.HasParticipant(viewer.UserID) {
			continue
		}
		v := buildView(viewer.UserID, c, users, lastMsgs)
		other := c.OtherParticipant(viewer.UserID)
		if kept, ok := byOther[other]; ok && kept.ActivityAt() >= v.ActivityAt() {
			continue
		}
		byOther[other] = v
	}

	views := make([]*model.ConversationView, 0, len(others))
	for _, u := range others {
		if u.UserID == viewer.UserID {
			continue
		}
		if v, ok := byOther[u.UserID]; ok {
			views = append(views, v)
			continue
		}
		views = append(views, &model.ConversationView{
			Participants: []model.User{viewer, u},
			IsNew:        true,
		})
	}

	activity := func(v *model.ConversationView) int64 {
		if v.IsNew {
			// placeholder: rank by the other user's account age
			for _, p := range v.Participants {
				if p.UserID != viewer.UserID {
					return p.CreatedAt.UnixMilli()
				}
			}
			return 0
		}
		return v.ActivityAt()
	}
	sort.SliceStable(views, func(i, j int) bool {
		return activity(views[i]) > activity(views[j])
	})
	return views
}
