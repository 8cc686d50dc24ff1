package presence

// fold applies one event to the view and returns it. It is a pure
// function of its inputs aside from mutating the view's own maps; the
// stream calls it under its lock so readers never observe a view
// mid-update.
func fold(view viewState, ev Event) viewState {
	switch e := ev.(type) {
	case UserJoined:
		key := rosterKey{userID: e.UserID, channelID: e.ChannelID}
		// Idempotent under at-least-once delivery.
		if _, exists := view.roster[key]; exists {
			return view
		}
		view.roster[key] = RosterEntry{
			UserID:    e.UserID,
			Username:  e.Username,
			ChannelID: e.ChannelID,
			// The speaking flag is per-user, not per-membership: a new
			// entry for an already-speaking user starts speaking, so the
			// roster stays consistent with the speaking index.
			IsSpeaking: view.speaking[e.UserID],
			JoinedAt:   e.At,
		}

	case UserLeft:
		delete(view.roster, rosterKey{userID: e.UserID, channelID: e.ChannelID})

	case UserSpeaking:
		view.speaking[e.UserID] = e.IsSpeaking
		// Fan out to every channel entry for the user.
		for key, entry := range view.roster {
			if entry.UserID == e.UserID {
				entry.IsSpeaking = e.IsSpeaking
				view.roster[key] = entry
			}
		}

	case ChannelState:
		view.channels[asInt64(e.Channel["id"])] = e.Channel
	}

	return view
}
