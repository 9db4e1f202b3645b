package bot

import (
	"fmt"
	"strings"

	"bookshelf/internal/syncer"
)

// Listener announces passes that changed the local library to every
// allowed user. Register it with Watcher.OnChange.
func (b *Bot) Listener() syncer.Listener {
	return func(r syncer.Report) {
		if !r.LibraryChanged() {
			return
		}
		text := formatChange(r)
		for id := range b.allowedUsers {
			// private chats share the user id
			b.reply(id, text)
		}
	}
}

func formatChange(r syncer.Report) string {
	var parts []string
	if n := len(r.Pulled); n > 0 {
		parts = append(parts, fmt.Sprintf("%d book(s) added", n))
	}
	if n := len(r.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d book(s) removed", n))
	}
	if r.ProgressPulled > 0 {
		parts = append(parts, fmt.Sprintf("reading progress updated for %d book(s)", r.ProgressPulled))
	}
	return "📖 Library updated from another device: " + strings.Join(parts, ", ")
}
