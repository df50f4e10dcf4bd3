// Package venue implements the authenticated REST client for the
// trading venue: order placement and cancellation, position exits and
// scheduled trades. All endpoints share the {success, data, error}
// response envelope and HMAC body signing.
package venue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/pkg/logger"
)

const (
	pathOrderCreate    = "/exchange/v1/derivatives/futures/orders/create"
	pathOrderCancel    = "/exchange/v1/derivatives/futures/orders/cancel"
	pathPositionExit   = "/exchange/v1/derivatives/futures/positions/exit"
	pathScheduleCreate = "/exchange/v1/derivatives/futures/scheduled_trades/create"
	pathScheduleCancel = "/exchange/v1/derivatives/futures/scheduled_trades/cancel"
	pathScheduleList   = "/exchange/v1/derivatives/futures/scheduled_trades/list"

	headerAPIKey    = "X-AUTH-APIKEY"
	headerSignature = "X-AUTH-SIGNATURE"
	headerRequestID = "X-Request-ID"
)

// Client is the REST client for the venue's trading API.
type Client struct {
	http   *resty.Client
	signer *Signer
	log    *logrus.Entry
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	// resty picks up HTTP_PROXY / HTTPS_PROXY from the environment.
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "tradeterm-console/1.0")

	return &Client{
		http:   http,
		signer: NewSigner(apiKey, apiSecret),
		log:    logger.Component("venue"),
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) *Client {
	c.http.SetTimeout(d)
	return c
}

// post signs body, sends it to path and decodes the response envelope.
// A transport failure, a non-2xx status or success=false all come back
// as errors; data is only written through on success.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request body")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(headerAPIKey, c.signer.APIKey()).
		SetHeader(headerSignature, c.signer.Sign(raw)).
		SetHeader(headerRequestID, uuid.NewString()).
		SetBody(raw).
		Post(path)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Wrapf(err, "decode response from %s (status %d)", path, resp.StatusCode())
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request rejected"
		}
		return errors.Errorf("%s: %s (status %d)", path, msg, resp.StatusCode())
	}
	if resp.IsError() {
		return errors.Errorf("%s: status %d", path, resp.StatusCode())
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrapf(err, "decode data from %s", path)
		}
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// PlaceOrder submits a new order and returns the venue's view of it.
func (c *Client) PlaceOrder(ctx context.Context, p PlaceOrderParams) (*domain.Order, error) {
	body := placeOrderBody{
		Timestamp: nowMillis(),
		Order: placeOrderWire{
			Pair:          p.Pair,
			Side:          string(p.Side),
			OrderType:     p.Type.Wire(),
			TotalQuantity: p.Quantity,
			Leverage:      p.Leverage,
		},
	}
	if p.Type == domain.OrderTypeLimit {
		body.Order.Price = &p.Price
	}

	// Some deployments return the created order as a single-element
	// array, others as a bare object.
	var data json.RawMessage
	if err := c.post(ctx, pathOrderCreate, body, &data); err != nil {
		return nil, err
	}
	order, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode created order")
	}

	c.log.WithFields(logrus.Fields{
		"id":   order.ID,
		"side": p.Side,
		"type": p.Type,
	}).Info("order placed")
	return order, nil
}

func decodeOrder(data json.RawMessage) (*domain.Order, error) {
	if len(data) == 0 {
		return nil, errors.New("empty order payload")
	}
	if data[0] == '[' {
		var list []domain.Order
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.New("empty order list")
		}
		return &list[0], nil
	}
	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder asks the venue to cancel an order by id.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	body := cancelOrderBody{Timestamp: nowMillis(), ID: id}
	if err := c.post(ctx, pathOrderCancel, body, nil); err != nil {
		return err
	}
	c.log.WithField("id", id).Info("order cancel requested")
	return nil
}

// ExitPosition market-closes a single position by id.
func (c *Client) ExitPosition(ctx context.Context, positionID string) error {
	body := exitPositionBody{Timestamp: nowMillis(), ID: positionID}
	if err := c.post(ctx, pathPositionExit, body, nil); err != nil {
		return err
	}
	c.log.WithField("position_id", positionID).Info("position exit requested")
	return nil
}

// ScheduleTrade registers a trade to be executed at a later time.
func (c *Client) ScheduleTrade(ctx context.Context, p ScheduleParams) (*domain.ScheduledTrade, error) {
	body := scheduleTradeBody{
		Timestamp: nowMillis(),
		Trade: scheduleTradeWire{
			Pair:          p.Pair,
			Side:          string(p.Side),
			OrderType:     p.Type.Wire(),
			TotalQuantity: p.Quantity,
			Leverage:      p.Leverage,
			ExecuteAt:     p.ExecuteAt.Format(time.RFC3339),
		},
	}
	if p.Type == domain.OrderTypeLimit {
		body.Trade.Price = &p.Price
	}

	var trade domain.ScheduledTrade
	if err := c.post(ctx, pathScheduleCreate, body, &trade); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"id":         trade.ID,
		"execute_at": p.ExecuteAt,
	}).Info("trade scheduled")
	return &trade, nil
}

// ScheduledTrades returns all scheduled trades known to the venue,
// terminal ones included.
func (c *Client) ScheduledTrades(ctx context.Context) ([]domain.ScheduledTrade, error) {
	var trades []domain.ScheduledTrade
	if err := c.post(ctx, pathScheduleList, listScheduleBody{Timestamp: nowMillis()}, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// CancelScheduledTrade cancels a pending scheduled trade by id.
func (c *Client) CancelScheduledTrade(ctx context.Context, id string) error {
	body := cancelScheduleBody{Timestamp: nowMillis(), ID: id}
	if err := c.post(ctx, pathScheduleCancel, body, nil); err != nil {
		return err
	}
	c.log.WithField("id", id).Info("scheduled trade cancelled")
	return nil
}
