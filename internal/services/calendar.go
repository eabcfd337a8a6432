package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dodohq/dodobot/internal/tokens"
)

// Calendar talks to Google Calendar on behalf of authorized users. All
// event operations target the user's primary calendar.
type Calendar struct {
	authKeeper
	http *http.Client
}

func NewCalendar(clientID, clientSecret, redirectURI string, store *tokens.Store, key *fernet.Key, logger *log.Logger) *Calendar {
	return &Calendar{
		authKeeper: authKeeper{
			oauth: googleOAuthConfig(clientID, clientSecret, redirectURI,
				[]string{calendar.CalendarScope}),
			store:    store,
			key:      key,
			log:      logger.With("service", "gcalendar"),
			platform: "Google",
			service:  "GoogleCalendarService",
			display:  "Google Calendar",
			command:  "/authorize_gcalendar",
		},
		http: &http.Client{},
	}
}

func (g *Calendar) AuthorizationURL(userID string) (string, error) {
	return g.authKeeper.AuthorizationURL(userID, googleAuthCodeOptions()...)
}

// Event is a trimmed view of one calendar event for plugin rendering.
type Event struct {
	ID       string
	Summary  string
	Start    string
	End      string
	Location string
	Link     string
}

// EventDetails carries the fields the model supplies when creating or
// updating an event. Times are RFC 3339.
type EventDetails struct {
	Summary     string
	Description string
	Location    string
	Start       string
	End         string
}

func (g *Calendar) RevokeAccess(ctx context.Context, userID string) error {
	token, err := g.accessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := googleRevoke(ctx, g.http, token); err != nil {
		return err
	}
	if err := g.deleteToken(userID); err != nil {
		return err
	}
	g.log.Info("revoked access", "user", userID)
	return nil
}

// Events lists events between start and end, soonest first.
func (g *Calendar) Events(ctx context.Context, userID string, start, end time.Time, maxResults int) ([]Event, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := srv.Events.List("primary").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(maxResults)).
		Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, fromCalendarEvent(item))
	}
	return events, nil
}

func (g *Calendar) AddEvent(ctx context.Context, userID string, details EventDetails) (*Event, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := &calendar.Event{
		Summary:     details.Summary,
		Description: details.Description,
		Location:    details.Location,
		Start:       &calendar.EventDateTime{DateTime: details.Start},
		End:         &calendar.EventDateTime{DateTime: details.End},
	}

	created, err := srv.Events.Insert("primary", item).Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	ev := fromCalendarEvent(created)
	g.log.Info("created event", "user", userID, "event", ev.ID)
	return &ev, nil
}

func (g *Calendar) UpdateEvent(ctx context.Context, userID, eventID string, details EventDetails) (*Event, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := srv.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	if details.Summary != "" {
		item.Summary = details.Summary
	}
	if details.Description != "" {
		item.Description = details.Description
	}
	if details.Location != "" {
		item.Location = details.Location
	}
	if details.Start != "" {
		item.Start = &calendar.EventDateTime{DateTime: details.Start}
	}
	if details.End != "" {
		item.End = &calendar.EventDateTime{DateTime: details.End}
	}

	updated, err := srv.Events.Update("primary", eventID, item).Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	ev := fromCalendarEvent(updated)
	return &ev, nil
}

func (g *Calendar) DeleteEvent(ctx context.Context, userID, eventID string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

func (g *Calendar) GetEvent(ctx context.Context, userID, eventID string) (*Event, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := srv.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	ev := fromCalendarEvent(item)
	return &ev, nil
}

// SearchEvents does a free-text search over upcoming events.
func (g *Calendar) SearchEvents(ctx context.Context, userID, query string, maxResults int) ([]Event, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := srv.Events.List("primary").
		Q(query).
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(maxResults)).
		Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, fromCalendarEvent(item))
	}
	return events, nil
}

// ShareEvent invites an email address as an attendee.
func (g *Calendar) ShareEvent(ctx context.Context, userID, eventID, email string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}

	item, err := srv.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return g.apiError(err, userID)
	}

	for _, a := range item.Attendees {
		if a.Email == email {
			return nil // already invited
		}
	}
	item.Attendees = append(item.Attendees, &calendar.EventAttendee{Email: email})

	if _, err := srv.Events.Update("primary", eventID, item).SendUpdates("all").Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

// CreateCalendar creates a new secondary calendar.
func (g *Calendar) CreateCalendar(ctx context.Context, userID, name string) (string, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return "", err
	}

	cal, err := srv.Calendars.Insert(&calendar.Calendar{Summary: name}).Context(ctx).Do()
	if err != nil {
		return "", g.apiError(err, userID)
	}
	return cal.Id, nil
}

// -- plumbing --

func (g *Calendar) client(ctx context.Context, userID string) (*calendar.Service, error) {
	token, err := g.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	srv, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("build calendar client: %w", err)
	}
	return srv, nil
}

func (g *Calendar) apiError(err error, userID string) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			g.markRevoked(userID)
			return g.authError()
		}
		return fmt.Errorf("calendar api request failed: %s", gerr.Message)
	}
	return fmt.Errorf("calendar api request failed: %w", err)
}

func fromCalendarEvent(item *calendar.Event) Event {
	ev := Event{
		ID:       item.Id,
		Summary:  item.Summary,
		Location: item.Location,
		Link:     item.HtmlLink,
	}
	if item.Start != nil {
		ev.Start = item.Start.DateTime
		if ev.Start == "" {
			ev.Start = item.Start.Date
		}
	}
	if item.End != nil {
		ev.End = item.End.DateTime
		if ev.End == "" {
			ev.End = item.End.Date
		}
	}
	return ev
}
