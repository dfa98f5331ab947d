// Package uplink forwards a vehicle's latest snapshot to a cloud API and
// injects the commands the cloud returns into the broker.
package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/model"
)

// PayloadSource identifies this component in cloud payloads.
const PayloadSource = "vehicle-broker-uplink"

// Status values reported to the cloud.
const (
	StatusOnline  = "online"
	StatusError   = "error"
	StatusOffline = "offline"
)

// DataRequest is the body of POST /api/car-data.
type DataRequest struct {
	Timestamp    model.Timestamp       `json:"timestamp"`
	LicensePlate string                `json:"license_plate"`
	Data         model.VehicleSnapshot `json:"data"`
	Source       string                `json:"source"`
}

// StatusRequest is the body of POST /api/car-status.
type StatusRequest struct {
	Timestamp    model.Timestamp `json:"timestamp"`
	LicensePlate string          `json:"license_plate"`
	Status       string          `json:"status"`
	Details      map[string]any  `json:"details"`
	Source       string          `json:"source"`
}

// CloudCommand is one instruction returned by the cloud.
type CloudCommand struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// DataResponse is the body returned by POST /api/car-data.
type DataResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Commands []CloudCommand `json:"commands"`
}

// Client talks to the cloud API.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

// NewClient builds a resty client with bearer authentication and retries on
// transport errors and 5xx responses.
func NewClient(cfg config.UplinkConfig) *Client {
	c := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryBackoff()).
		SetRetryMaxWaitTime(4*cfg.RetryBackoff()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: c, now: time.Now}
}

// SendData posts a snapshot and returns the cloud's answer. The body is
// decoded as JSON whatever its Content-Type; an undecodable body is an error.
func (c *Client) SendData(ctx context.Context, vehicleID string, snap model.VehicleSnapshot) (DataResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(DataRequest{
			Timestamp:    model.NewTimestamp(c.now()),
			LicensePlate: vehicleID,
			Data:         snap,
			Source:       PayloadSource,
		}).
		Post("/api/car-data")
	if err != nil {
		return DataResponse{}, fmt.Errorf("send data: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return DataResponse{}, fmt.Errorf("send data: status %d: %s", resp.StatusCode(), resp.String())
	}
	var out DataResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return DataResponse{}, fmt.Errorf("send data: decode response: %w", err)
	}
	return out, nil
}

// SendStatus posts a status update.
func (c *Client) SendStatus(ctx context.Context, vehicleID, status string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(StatusRequest{
			Timestamp:    model.NewTimestamp(c.now()),
			LicensePlate: vehicleID,
			Status:       status,
			Details:      details,
			Source:       PayloadSource,
		}).
		Post("/api/car-status")
	if err != nil {
		return fmt.Errorf("send status %s: %w", status, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("send status %s: status %d", status, resp.StatusCode())
	}
	return nil
}
