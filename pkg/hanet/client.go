package hanet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/fugboizz/hanet-attendance-api/internal/models"
)

const (
	checkinPath = "/person/getCheckinByPlaceIdInTimestamp"
	placesPath  = "/place/getPlaces"
	devicesPath = "/device/getListDeviceByPlace"

	requestTimeout = 15 * time.Second
	retryCount     = 3
)

// Config selects one HANET account and tunes the pagination policy.
type Config struct {
	BaseURL        string
	PageSize       int
	EmptyPageLimit int // consecutive empty pages before a chunk stops
	MaxPages       int // absolute per-chunk page ceiling
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.EmptyPageLimit <= 0 {
		c.EmptyPageLimit = 3
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50000
	}
	return c
}

// Recorder receives upstream call observations. Implemented by the metrics
// package; a nil Recorder disables recording.
type Recorder interface {
	UpstreamRequest(endpoint, outcome string)
	UpstreamRetry(endpoint string)
	PagesFetched(n int)
}

// Client talks to the HANET partner API: paginated check-in queries plus the
// place and device list endpoints. All requests are form-urlencoded POSTs
// carrying the bearer token as a form field.
type Client struct {
	http   *resty.Client
	cfg    Config
	tokens *TokenCache
	logger zerolog.Logger
	rec    Recorder
}

// NewClient builds a client for one tenant. Transient failures (transport
// errors, 5xx, 429) retry up to 3 times with linear backoff before the call
// is reported as failed.
func NewClient(cfg Config, tokens *TokenCache, logger zerolog.Logger, rec Recorder) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		tokens: tokens,
		logger: logger.With().Str("component", "hanet_client").Logger(),
		rec:    rec,
	}

	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(retryCount).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			return time.Duration(resp.Request.Attempt) * 2 * time.Second, nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp != nil && resp.Request != nil && resp.Request.Context().Err() != nil {
				// The caller gave up; retrying would only delay the error.
				return false
			}
			if err != nil {
				return true
			}
			return resp.StatusCode() >= http.StatusInternalServerError ||
				resp.StatusCode() == http.StatusTooManyRequests
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			endpoint := ""
			if resp != nil && resp.Request != nil {
				endpoint = resp.Request.URL
			}
			c.logger.Warn().Err(err).Str("url", endpoint).Msg("retrying upstream call")
			if c.rec != nil {
				c.rec.UpstreamRetry(endpoint)
			}
		})
	c.http = r
	return c
}

// apiEnvelope is the common HANET response wrapper. ReturnCode is a pointer
// so a missing field is distinguishable from 0.
type apiEnvelope struct {
	ReturnCode    *int            `json:"returnCode"`
	ReturnMessage string          `json:"returnMessage"`
	Data          json.RawMessage `json:"data"`
}

// CheckinPage is one page of raw check-in events.
type CheckinPage struct {
	Records    []models.CheckinEvent
	ReturnCode int
}

// FetchCheckinsPage requests a single page of check-in events for a place
// and time range. An empty data array is a normal terminal page, not an
// error. devices is a comma-separated device filter, omitted when empty.
func (c *Client) FetchCheckinsPage(ctx context.Context, placeID string, from, to int64, devices string, page int) (*CheckinPage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	form := map[string]string{
		"token":   token,
		"placeID": placeID,
		"from":    strconv.FormatInt(from, 10),
		"to":      strconv.FormatInt(to, 10),
		"size":    strconv.Itoa(c.cfg.PageSize),
		"page":    strconv.Itoa(page),
	}
	if devices != "" {
		form["devices"] = devices
	}

	env, err := c.post(ctx, checkinPath, form)
	if err != nil {
		return nil, err
	}
	if env.ReturnCode == nil {
		return nil, &APIError{ReturnCode: -1, Message: "response missing returnCode"}
	}
	if *env.ReturnCode != 0 && *env.ReturnCode != 1 {
		return nil, &APIError{ReturnCode: *env.ReturnCode, Message: env.ReturnMessage}
	}

	out := &CheckinPage{ReturnCode: *env.ReturnCode}
	if len(env.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out.Records); err != nil {
		// Non-array data terminates the chunk like an empty page would.
		c.logger.Warn().Str("placeID", placeID).Int("page", page).Msg("upstream data field is not an array")
		out.Records = nil
	}
	return out, nil
}

// FetchCheckinRange pages through one chunk until the consecutive-empty
// threshold or the page ceiling is reached. Failed pages contribute nothing
// and count toward the empty streak so an unreachable upstream terminates;
// only auth failures and context cancellation abort the chunk.
func (c *Client) FetchCheckinRange(ctx context.Context, placeID string, chunk models.Chunk, devices string) ([]models.CheckinEvent, error) {
	var (
		records    []models.CheckinEvent
		emptyPages int
		fetched    int
	)

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		result, err := c.FetchCheckinsPage(ctx, placeID, chunk.Start, chunk.End, devices, page)
		fetched++
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return records, err
			}
			c.logger.Error().Err(err).
				Str("placeID", placeID).
				Int64("from", chunk.Start).
				Int64("to", chunk.End).
				Int("page", page).
				Msg("page skipped")
			emptyPages++
			if emptyPages >= c.cfg.EmptyPageLimit {
				break
			}
			continue
		}

		if len(result.Records) == 0 {
			emptyPages++
			if emptyPages >= c.cfg.EmptyPageLimit {
				break
			}
			continue
		}

		emptyPages = 0
		records = append(records, result.Records...)
	}

	if c.rec != nil {
		c.rec.PagesFetched(fetched)
	}
	c.logger.Debug().
		Str("placeID", placeID).
		Str("chunk", chunk.Kind).
		Int("pages", fetched).
		Int("records", len(records)).
		Msg("chunk fetched")

	return records, nil
}

// GetPlaces lists the places visible to the tenant's account.
func (c *Client) GetPlaces(ctx context.Context) ([]models.Place, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.post(ctx, placesPath, map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	if env.ReturnCode == nil || (*env.ReturnCode != 0 && *env.ReturnCode != 1) {
		return nil, envelopeError(env)
	}

	var places []models.Place
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &places); err != nil {
			return nil, &APIError{ReturnCode: *env.ReturnCode, Message: "place list is not an array"}
		}
	}
	return places, nil
}

// GetDevices lists the devices registered at one place.
func (c *Client) GetDevices(ctx context.Context, placeID string) ([]models.Device, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.post(ctx, devicesPath, map[string]string{
		"token":   token,
		"placeID": placeID,
	})
	if err != nil {
		return nil, err
	}
	if env.ReturnCode == nil || (*env.ReturnCode != 0 && *env.ReturnCode != 1) {
		return nil, envelopeError(env)
	}

	var devices []models.Device
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &devices); err != nil {
			return nil, &APIError{ReturnCode: *env.ReturnCode, Message: "device list is not an array"}
		}
	}
	return devices, nil
}

func (c *Client) post(ctx context.Context, path string, form map[string]string) (*apiEnvelope, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
	if err != nil {
		c.record(path, "transport_error")
		return nil, &TransportError{Op: "POST " + path, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		c.record(path, "http_error")
		return nil, &TransportError{
			Op:  "POST " + path,
			Err: fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}

	var env apiEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		c.record(path, "decode_error")
		return nil, &APIError{ReturnCode: -1, Message: "undecodable response body"}
	}
	c.record(path, "ok")
	return &env, nil
}

func (c *Client) record(endpoint, outcome string) {
	if c.rec != nil {
		c.rec.UpstreamRequest(endpoint, outcome)
	}
}

func envelopeError(env *apiEnvelope) *APIError {
	if env.ReturnCode == nil {
		return &APIError{ReturnCode: -1, Message: "response missing returnCode"}
	}
	return &APIError{ReturnCode: *env.ReturnCode, Message: env.ReturnMessage}
}
