package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/court-scheduler/internal/booking"
)

// Allocation response type codes the venue API is known to return.
const (
	TypeSuccess  = 1 // order placed, resultdata holds the order id
	TypeConflict = 3 // slot taken in a race ("too slow"); worth retrying
)

// CredentialsProvider hands out the current venue session cookie. Looked up
// on every request so a refreshed cookie takes effect without a restart.
type CredentialsProvider interface {
	SessionCookie(ctx context.Context) (string, error)
}

// Client talks to the venue's field allocation API. The API is cookie
// authenticated and expects browser-like headers; requests carry a unix
// timestamp in the "_" query parameter the way the web client signs them.
type Client struct {
	hc      *http.Client
	baseURL string
	venueNo string
	creds   CredentialsProvider
}

func New(baseURL, venueNo string, creds CredentialsProvider) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
		venueNo: venueNo,
		creds:   creds,
	}
}

// OrderResult is the venue's response envelope for a booking mutation.
// Classification of Type/ErrorCode into an outcome is the executor's job.
type OrderResult struct {
	Type       int             `json:"type"`
	ErrorCode  int             `json:"errorcode"`
	Message    string          `json:"message"`
	ResultData json.RawMessage `json:"resultdata"`
}

// Confirmation returns resultdata as a string regardless of whether the venue
// sent it quoted.
func (r OrderResult) Confirmation() string {
	if len(r.ResultData) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ResultData, &s); err == nil {
		return s
	}
	return string(r.ResultData)
}

// wireSlot is a slot selection in the venue API's own field naming.
type wireSlot struct {
	FieldNo     string `json:"FieldNo"`
	FieldTypeNo string `json:"FieldTypeNo"`
	FieldName   string `json:"FieldName"`
	BeginTime   string `json:"BeginTime"`
	EndTime     string `json:"EndTime"`
	Price       string `json:"Price"`
}

func toWire(slots []booking.SlotSelection) []wireSlot {
	out := make([]wireSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, wireSlot{
			FieldNo:     s.ResourceID,
			FieldTypeNo: s.ResourceTypeID,
			FieldName:   s.Label,
			BeginTime:   s.StartTime,
			EndTime:     s.EndTime,
			Price:       s.Price,
		})
	}
	return out
}

// Order submits one allocation attempt for the given slots, dayOffset days
// from today. The returned error covers transport and decode failures only;
// venue-declared failures come back inside the OrderResult.
func (c *Client) Order(ctx context.Context, slots []booking.SlotSelection, dayOffset int) (OrderResult, error) {
	checkdata, err := json.Marshal(toWire(slots))
	if err != nil {
		return OrderResult{}, fmt.Errorf("encode checkdata: %w", err)
	}

	body, status, err := c.do(ctx, "/Field/OrderField", map[string]string{
		"checkdata": string(checkdata),
		"dateadd":   strconv.Itoa(dayOffset),
		"VenueNo":   c.venueNo,
	})
	if err != nil {
		return OrderResult{}, err
	}
	if status >= 400 {
		return OrderResult{}, fmt.Errorf("order field: status %d", status)
	}

	var res OrderResult
	if err := json.Unmarshal(body, &res); err != nil {
		return OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}
	return res, nil
}

// CheckUserStatus probes whether the stored session cookie is still accepted.
func (c *Client) CheckUserStatus(ctx context.Context) (bool, error) {
	body, status, err := c.do(ctx, "/User/CheckUserStatus", nil)
	if err != nil {
		return false, err
	}
	if status >= 400 {
		return false, fmt.Errorf("check user status: status %d", status)
	}
	var state int
	if err := json.Unmarshal(body, &state); err != nil {
		return false, fmt.Errorf("decode user status: %w", err)
	}
	return state == 1, nil
}

func (c *Client) do(ctx context.Context, path string, query map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	if c.creds != nil {
		cookie, err := c.creds.SessionCookie(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("venue credentials: %w", err)
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	q.Set("_", strconv.FormatInt(time.Now().Unix(), 10))
	req.URL.RawQuery = q.Encode()

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}
	return b, res.StatusCode, nil
}
