package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

func GetExpiresAt(expiresIn int) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// formatCaption prefixes mentions and appends hashtags from both the post and the unit settings.
func formatCaption(content models.Content, settings models.CustomSettings) string {
	caption := content.Body

	hashtags := append(append([]string{}, content.Hashtags...), settings.Hashtags...)
	if len(hashtags) > 0 {
		tags := make([]string, len(hashtags))
		for i, tag := range hashtags {
			tags[i] = "#" + strings.TrimPrefix(tag, "#")
		}
		caption += "\n\n" + strings.Join(tags, " ")
	}

	mentions := append(append([]string{}, content.Mentions...), settings.Mentions...)
	if len(mentions) > 0 {
		handles := make([]string, len(mentions))
		for i, m := range mentions {
			handles[i] = "@" + strings.TrimPrefix(m, "@")
		}
		caption = strings.Join(handles, " ") + " " + caption
	}

	return caption
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// titleOf is the explicit title or the first 100 characters of the body.
func titleOf(content models.Content) string {
	if content.Title != "" {
		return content.Title
	}
	return truncate(content.Body, 100)
}

// platformClient is the rate limited HTTP client each adapter talks through.
type platformClient struct {
	platform models.Platform
	http     *resty.Client
	limiter  *rate.Limiter
}

func newPlatformClient(platform models.Platform, baseURL string, cfg config.Platforms) *platformClient {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &platformClient{
		platform: platform,
		http:     resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// request waits for a rate limit slot and returns a request bound to ctx.
func (c *platformClient) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Transient(c.platform, err, "rate limiter wait")
	}
	return c.http.R().SetContext(ctx), nil
}

// call sends a JSON request and decodes a 2xx body into out. Transport failures are
// transient, non-2xx responses are classified by status code and platform hints.
func (c *platformClient) call(ctx context.Context, step, method, url string, body, out any, configure ...func(*resty.Request)) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	req.SetHeader("Content-Type", "application/json").
		ForceContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	for _, fn := range configure {
		fn(req)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return Transient(c.platform, err, "%s request", step)
	}
	if resp.IsError() {
		var apiErr transfer.GraphErrorResponse
		_ = json.Unmarshal(resp.Body(), &apiErr)
		detail := apiErr.Error.Message
		if detail == "" {
			detail = apiErr.Message
		}
		pe := statusError(c.platform, step, resp.StatusCode(), detail)
		if apiErr.Error.IsTransient {
			pe.Kind = models.FailureTransient
		}
		return pe
	}
	return nil
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
