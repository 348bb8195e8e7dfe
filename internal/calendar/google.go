package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Google creates events on the user's linked Google calendar.
type Google struct {
	OAuth    *oauth2.Config
	Accounts *AccountStore
	Log      *zap.Logger
}

func NewGoogle(clientID, clientSecret string, accounts *AccountStore, log *zap.Logger) *Google {
	return &Google{
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.Google,
			Scopes:       []string{gcal.CalendarEventsScope},
		},
		Accounts: accounts,
		Log:      log,
	}
}

func (g *Google) CreateEvent(ctx context.Context, userID uint64, ev Event) error {
	acct, err := g.Accounts.Get(ctx, userID)
	if err != nil {
		return err
	}

	old := acct.Token()
	ts := oauth2.ReuseTokenSource(old, g.OAuth.TokenSource(ctx, old))

	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return fmt.Errorf("calendar client: %w", err)
	}

	_, err = svc.Events.Insert(acct.CalendarID, &gcal.Event{
		Id:          ev.ID,
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}).Context(ctx).Do()

	g.persistRefreshed(ctx, userID, old, ts)

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return ErrAlreadyExists
	}
	return err
}

func (g *Google) persistRefreshed(ctx context.Context, userID uint64, old *oauth2.Token, ts oauth2.TokenSource) {
	t, err := ts.Token()
	if err != nil || t.AccessToken == old.AccessToken {
		return
	}
	if err := g.Accounts.SaveToken(ctx, userID, t); err != nil {
		g.Log.Warn("saving refreshed calendar token failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}
