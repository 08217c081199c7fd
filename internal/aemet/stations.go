package aemet

import "context"

// StationInventory decodes the climatological station inventory into v.
func (c *Client) StationInventory(ctx context.Context, v any) error {
	return c.Data(ctx, StationInventoryEndpoint(c.baseURL, c.apiKey), v)
}

// StationInventoryMetadata returns the field descriptions of the station inventory.
func (c *Client) StationInventoryMetadata(ctx context.Context) (*Metadata, error) {
	return c.Metadata(ctx, StationInventoryEndpoint(c.baseURL, c.apiKey))
}
