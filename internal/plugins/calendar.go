package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dodohq/dodobot/internal/services"
)

// RegisterCalendar wires the Google Calendar service's operations in as
// tools.
func RegisterCalendar(m *Manager, cal *services.Calendar) {
	m.Register("gcalendar_upcoming_events",
		"List the user's upcoming calendar events.",
		params(map[string]any{
			"days_ahead":  intProp("How many days ahead to look, default 7"),
			"max_results": intProp("Maximum number of events, default 10"),
		}),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			now := time.Now()
			end := now.AddDate(0, 0, intArg(args, "days_ahead", 7))
			events, err := cal.Events(ctx, userID, now, end, intArg(args, "max_results", 10))
			if err != nil {
				return "", err
			}
			return formatEvents(events), nil
		})

	m.Register("gcalendar_add_event",
		"Create an event on the user's calendar. Times are RFC 3339, e.g. 2026-08-29T15:00:00Z.",
		params(map[string]any{
			"summary":     strProp("Event title"),
			"description": strProp("Event description"),
			"location":    strProp("Event location"),
			"start_time":  strProp("Start time, RFC 3339"),
			"end_time":    strProp("End time, RFC 3339"),
		}, "summary", "start_time", "end_time"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			ev, err := cal.AddEvent(ctx, userID, services.EventDetails{
				Summary:     stringArg(args, "summary"),
				Description: stringArg(args, "description"),
				Location:    stringArg(args, "location"),
				Start:       stringArg(args, "start_time"),
				End:         stringArg(args, "end_time"),
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created %q (id: %s)\n%s", ev.Summary, ev.ID, ev.Link), nil
		})

	m.Register("gcalendar_update_event",
		"Update an existing calendar event. Only the fields provided change.",
		params(map[string]any{
			"event_id":    strProp("ID of the event to update"),
			"summary":     strProp("New title"),
			"description": strProp("New description"),
			"location":    strProp("New location"),
			"start_time":  strProp("New start time, RFC 3339"),
			"end_time":    strProp("New end time, RFC 3339"),
		}, "event_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			ev, err := cal.UpdateEvent(ctx, userID, stringArg(args, "event_id"), services.EventDetails{
				Summary:     stringArg(args, "summary"),
				Description: stringArg(args, "description"),
				Location:    stringArg(args, "location"),
				Start:       stringArg(args, "start_time"),
				End:         stringArg(args, "end_time"),
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Updated %q (id: %s)", ev.Summary, ev.ID), nil
		})

	m.Register("gcalendar_delete_event",
		"Delete a calendar event.",
		params(map[string]any{
			"event_id": strProp("ID of the event to delete"),
		}, "event_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			if err := cal.DeleteEvent(ctx, userID, stringArg(args, "event_id")); err != nil {
				return "", err
			}
			return "Event deleted.", nil
		})

	m.Register("gcalendar_get_event",
		"Get the details of one calendar event.",
		params(map[string]any{
			"event_id": strProp("ID of the event"),
		}, "event_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			ev, err := cal.GetEvent(ctx, userID, stringArg(args, "event_id"))
			if err != nil {
				return "", err
			}
			return formatEvents([]services.Event{*ev}), nil
		})

	m.Register("gcalendar_search_events",
		"Search the user's upcoming calendar events by text.",
		params(map[string]any{
			"query":       strProp("Search terms"),
			"max_results": intProp("Maximum number of events, default 10"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			events, err := cal.SearchEvents(ctx, userID,
				stringArg(args, "query"), intArg(args, "max_results", 10))
			if err != nil {
				return "", err
			}
			return formatEvents(events), nil
		})

	m.Register("gcalendar_share_event",
		"Invite someone to a calendar event by email.",
		params(map[string]any{
			"event_id": strProp("ID of the event"),
			"email":    strProp("Email address to invite"),
		}, "event_id", "email"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			err := cal.ShareEvent(ctx, userID,
				stringArg(args, "event_id"), stringArg(args, "email"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Invited %s.", stringArg(args, "email")), nil
		})

	m.Register("gcalendar_create_calendar",
		"Create a new secondary calendar for the user.",
		params(map[string]any{
			"name": strProp("Name of the new calendar"),
		}, "name"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			id, err := cal.CreateCalendar(ctx, userID, stringArg(args, "name"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created calendar (id: %s)", id), nil
		})
}

func formatEvents(events []services.Event) string {
	if len(events) == 0 {
		return "No events found."
	}
	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "- %s (id: %s)\n  %s to %s", e.Summary, e.ID, e.Start, e.End)
		if e.Location != "" {
			fmt.Fprintf(&sb, " at %s", e.Location)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
