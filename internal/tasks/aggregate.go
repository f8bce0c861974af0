package tasks

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"nudger/internal/domain"
	"nudger/internal/feed"
	"nudger/internal/notify"
)

const (
	unseenWindowDays = 7
	unseenScanLimit  = 100
)

// notifyUnseen tells the owner who posted group actions of one type that
// they have not viewed yet. Nothing is sent when there are none.
func (r *Runner) notifyUnseen(ctx context.Context, t domain.Task, p domain.OneTimePayload) error {
	groupID := t.Extra["groupId"]
	actionType := t.Extra["groupActionType"]

	since := startOfDay(r.now()).AddDate(0, 0, -unseenWindowDays)
	actions, err := r.feed.RecentActions(ctx, groupID, since, unseenScanLimit)
	if err != nil {
		return err
	}
	creators := UnseenCreators(actions, actionType, t.Owner)
	if len(creators) == 0 {
		log.Debug().Str("task_id", t.ID).Str("group_id", groupID).Msg("no unseen group actions")
		return nil
	}

	names := make([]string, 0, 2)
	for _, uid := range creators[:min(2, len(creators))] {
		u, err := r.dir.User(ctx, uid)
		if errors.Is(err, feed.ErrUserNotFound) {
			log.Warn().Str("task_id", t.ID).Str("creator", uid).Msg("creator profile missing, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		names = append(names, u.Name)
	}

	body := UnseenBody(actionType, names, len(creators))
	return r.notifier.SendCollapsible(ctx, t.Owner, actionType, notify.Message{Title: p.Title, Body: &body}, map[string]string{
		"groupId":         groupID,
		"actionId":        t.Extra["actionId"],
		"groupActionType": actionType,
		"event":           domain.EventGroupActionCreated,
	})
}

// UnseenCreators returns the distinct creators of actions of the given type
// the viewer has not seen, in feed order.
func UnseenCreators(actions []domain.GroupAction, actionType, viewer string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range actions {
		if a.Type != actionType || a.ViewedBy(viewer) || seen[a.Creator] {
			continue
		}
		seen[a.Creator] = true
		out = append(out, a.Creator)
	}
	return out
}

// UnseenBody names up to two creators and counts the rest. names holds the
// display names of the first creators; total is the number of distinct ones.
func UnseenBody(actionType string, names []string, total int) domain.Text {
	prefix := "text.new-gratitude-"
	if actionType == "prayer" {
		prefix = "text.new-prayer-"
	}
	params := map[string]string{}
	if len(names) > 0 {
		params["authorName1"] = names[0]
	}
	if len(names) > 1 {
		params["authorName2"] = names[1]
	}
	switch {
	case total <= 1:
		return domain.Text{Key: prefix + "1", Params: params}
	case total == 2:
		return domain.Text{Key: prefix + "2", Params: params}
	default:
		params["totalUnreadValue"] = strconv.Itoa(total - 2)
		return domain.Text{Key: prefix + "3", Params: params}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
