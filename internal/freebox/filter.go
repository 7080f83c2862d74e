package freebox

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// filterEntry is one row of the wifi mac_filter table on the router.
type filterEntry struct {
	ID   string
	MAC  string
	Type string
}

// Block adds mac to the wifi blacklist. Already-present addresses are a
// no-op success so every cycle can re-assert the same intent.
func (c *Client) Block(ctx context.Context, mac string) error {
	entries, err := c.listFilter(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if strings.EqualFold(e.MAC, mac) {
			return nil
		}
	}

	body := map[string]string{
		"mac":  strings.ToUpper(mac),
		"type": "blacklist",
	}

	if _, err := c.call(ctx, http.MethodPost, "wifi/mac_filter/", body, true); err != nil {
		return err
	}

	c.logger.Info().Str("mac", mac).Msg("mac added to wifi blacklist")

	return nil
}

// Unblock removes mac from the wifi blacklist. An absent address is a
// no-op success.
func (c *Client) Unblock(ctx context.Context, mac string) error {
	entries, err := c.listFilter(ctx)
	if err != nil {
		return err
	}

	var id string
	for _, e := range entries {
		if strings.EqualFold(e.MAC, mac) {
			id = e.ID
			break
		}
	}

	if id == "" {
		return nil
	}

	if _, err := c.call(ctx, http.MethodDelete, "wifi/mac_filter/"+id, nil, true); err != nil {
		return err
	}

	c.logger.Info().Str("mac", mac).Msg("mac removed from wifi blacklist")

	return nil
}

// ListBlocked returns every blacklisted MAC, lowercased.
func (c *Client) ListBlocked(ctx context.Context) ([]string, error) {
	entries, err := c.listFilter(ctx)
	if err != nil {
		return nil, err
	}

	macs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type != "" && e.Type != "blacklist" {
			continue
		}

		macs = append(macs, strings.ToLower(e.MAC))
	}

	return macs, nil
}

func (c *Client) listFilter(ctx context.Context) ([]filterEntry, error) {
	v, err := c.call(ctx, http.MethodGet, "wifi/mac_filter/", nil, true)
	if err != nil {
		return nil, fmt.Errorf("listing mac filter: %w", err)
	}

	var entries []filterEntry
	for _, item := range v.GetArray("result") {
		entries = append(entries, filterEntry{
			ID:   string(item.GetStringBytes("id")),
			MAC:  string(item.GetStringBytes("mac")),
			Type: string(item.GetStringBytes("type")),
		})
	}

	return entries, nil
}

// ResolveName looks the address up in the LAN browser. Best effort only:
// any failure resolves to "unknown".
func (c *Client) ResolveName(ctx context.Context, mac string) string {
	const unknown = "unknown"

	v, err := c.call(ctx, http.MethodGet, "lan/browser/pub/", nil, true)
	if err != nil {
		c.logger.Debug().Err(err).Str("mac", mac).Msg("hostname lookup failed")
		return unknown
	}

	for _, item := range v.GetArray("result") {
		id := string(item.GetStringBytes("l2ident", "id"))
		if !strings.EqualFold(id, mac) {
			continue
		}

		if name := string(item.GetStringBytes("primary_name")); name != "" {
			return name
		}
		break
	}

	return unknown
}
