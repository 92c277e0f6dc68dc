package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/orchestrator"
	"github.com/retirectl/retirectl/internal/rterrors"
)

// Client talks to the three external systems over their REST surfaces. One
// Client carries one authenticated session; the Management, Provisioning and
// Directory accessors expose the per-system collaborator contracts.
type Client struct {
	cfg  *Config
	http *http.Client
}

type managementClient struct{ *Client }
type provisioningClient struct{ *Client }
type directoryClient struct{ *Client }

var (
	_ orchestrator.ManagementService    = managementClient{}
	_ orchestrator.ProvisioningRegistry = provisioningClient{}
	_ orchestrator.DirectoryService     = directoryClient{}
)

func NewFromConfig(cfg *Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.requestTimeout()},
	}
}

func NewFromConfigFile(path string) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg), nil
}

func (c *Client) Management() orchestrator.ManagementService {
	return managementClient{c}
}

func (c *Client) Provisioning() orchestrator.ProvisioningRegistry {
	return provisioningClient{c}
}

func (c *Client) Directory() orchestrator.DirectoryService {
	return directoryClient{c}
}

func (c managementClient) WipeDevice(ctx context.Context, deviceID string) error {
	endpoint := fmt.Sprintf("%s/devices/%s/wipe", c.cfg.ManagementEndpoint, url.PathEscape(deviceID))
	resp, err := c.do(ctx, http.MethodPost, endpoint)
	if err != nil {
		return rterrors.NewServiceError("management", "wipeDevice", true, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return rterrors.NewServiceError("management", "wipeDevice", resp.StatusCode >= 500, statusError(resp))
	}
	return nil
}

func (c provisioningClient) FindBySerial(ctx context.Context, serialNumber string) (*api.RegistryEntry, error) {
	endpoint := fmt.Sprintf("%s/entries?serialNumber=%s", c.cfg.ProvisioningEndpoint, url.QueryEscape(serialNumber))
	entry := &api.RegistryEntry{}
	found, err := c.get(ctx, endpoint, entry)
	if err != nil {
		return nil, rterrors.NewServiceError("provisioning", "findBySerial", true, err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

func (c provisioningClient) RemoveEntry(ctx context.Context, entryID string) error {
	endpoint := fmt.Sprintf("%s/entries/%s", c.cfg.ProvisioningEndpoint, url.PathEscape(entryID))
	resp, err := c.do(ctx, http.MethodDelete, endpoint)
	if err != nil {
		return rterrors.NewServiceError("provisioning", "removeEntry", true, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return rterrors.NewServiceError("provisioning", "removeEntry", resp.StatusCode >= 500, statusError(resp))
	}
	return nil
}

func (c directoryClient) FindByObjectID(ctx context.Context, objectID string) (*api.DirectoryEntry, error) {
	endpoint := fmt.Sprintf("%s/devices/%s", c.cfg.DirectoryEndpoint, url.PathEscape(objectID))
	return c.findDirectoryEntry(ctx, endpoint)
}

func (c directoryClient) FindByProvisioningID(ctx context.Context, provisioningID string) (*api.DirectoryEntry, error) {
	endpoint := fmt.Sprintf("%s/devices?provisioningId=%s", c.cfg.DirectoryEndpoint, url.QueryEscape(provisioningID))
	return c.findDirectoryEntry(ctx, endpoint)
}

func (c *Client) findDirectoryEntry(ctx context.Context, endpoint string) (*api.DirectoryEntry, error) {
	entry := &api.DirectoryEntry{}
	found, err := c.get(ctx, endpoint, entry)
	if err != nil {
		return nil, rterrors.NewServiceError("directory", "find", true, err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

func (c directoryClient) RemoveEntry(ctx context.Context, objectID string) error {
	endpoint := fmt.Sprintf("%s/devices/%s", c.cfg.DirectoryEndpoint, url.PathEscape(objectID))
	resp, err := c.do(ctx, http.MethodDelete, endpoint)
	if err != nil {
		return rterrors.NewServiceError("directory", "removeEntry", true, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return rterrors.NewServiceError("directory", "removeEntry", resp.StatusCode >= 500, statusError(resp))
	}
	return nil
}

// get performs a lookup, reporting absence (404) as found=false rather than
// an error so callers can record NotFound instead of Failed.
func (c *Client) get(ctx context.Context, endpoint string, out any) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(body) == 0 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, string(body))
}
