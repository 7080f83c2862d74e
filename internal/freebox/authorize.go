package freebox

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ferux/trafficsentinel/internal/model"
)

// Authorize runs the one-time pairing flow: request an app token, then
// poll until the user confirms on the router front panel. The granted
// token is written to the token file.
func (c *Client) Authorize(ctx context.Context) error {
	if err := c.discover(ctx); err != nil {
		return err
	}

	body := map[string]string{
		"app_id":      c.appID,
		"app_name":    appName,
		"app_version": appVersion,
		"device_name": deviceName,
	}

	v, err := c.call(ctx, http.MethodPost, "login/authorize", body, false)
	if err != nil {
		return fmt.Errorf("requesting authorization: %w", err)
	}

	appToken := string(v.GetStringBytes("result", "app_token"))
	trackID := v.GetInt64("result", "track_id")
	if appToken == "" || trackID == 0 {
		return model.Error("authorization response missing token or track id")
	}

	c.logger.Info().Int64("track_id", trackID).Msg("confirm the request on the freebox front panel")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}

		v, err = c.call(ctx, http.MethodGet, "login/authorize/"+strconv.FormatInt(trackID, 10), nil, false)
		if err != nil {
			return fmt.Errorf("tracking authorization: %w", err)
		}

		switch status := string(v.GetStringBytes("result", "status")); status {
		case "pending":
			continue
		case "granted":
			c.mu.Lock()
			c.appToken = appToken
			c.mu.Unlock()

			if err := saveTokens(c.tokenFile, tokens{AppToken: appToken}); err != nil {
				return fmt.Errorf("saving app token: %w", err)
			}

			c.logger.Info().Str("token_file", c.tokenFile).Msg("authorization granted")
			return nil
		default:
			return fmt.Errorf("authorization not granted: %s", status)
		}
	}
}
