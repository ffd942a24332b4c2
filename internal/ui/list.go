package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/ytrpc/internal/models"
)

var _ list.Item = historyItem{}

// historyItem wraps [models.HistoryEntry] to implement [list.Item].
type historyItem struct {
	entry models.HistoryEntry
}

func (i historyItem) FilterValue() string { return i.entry.Title + " " + i.entry.Subtitle }
func (i historyItem) Title() string       { return i.entry.Title }
func (i historyItem) Description() string {
	desc := i.entry.Subtitle
	if !i.entry.ConfirmedAt.IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, i.entry.ConfirmedAt.Local().Format("Jan 2 15:04"))
	}
	return desc
}

func historyItems(entries []models.HistoryEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = historyItem{entry: e}
	}
	return items
}
