// Package github implements the verification boundaries against the GitHub
// REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devarena-lab/project-devarena/internal/verify"
)

// Client is a minimal GitHub REST API client covering the two verification
// lookups the engine needs.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status=%d body=%s", e.StatusCode, e.Body)
}

type searchIssuesResponse struct {
	Items []struct {
		Number int `json:"number"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"items"`
}

// RecentMergedPullRequests searches the developer's merged pull requests in
// owner/name.
func (c *Client) RecentMergedPullRequests(ctx context.Context, owner, name, login string) ([]verify.PullRequestRef, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr is:merged author:%s", owner, name, login)
	endpoint := fmt.Sprintf("search/issues?q=%s&per_page=30", url.QueryEscape(query))

	var resp searchIssuesResponse
	if err := c.do(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	refs := make([]verify.PullRequestRef, 0, len(resp.Items))
	for _, item := range resp.Items {
		refs = append(refs, verify.PullRequestRef{
			Number:      item.Number,
			AuthorLogin: item.User.Login,
		})
	}
	return refs, nil
}

// issueRefPattern matches closing-keyword issue references in pull request
// bodies, e.g. "Closes #42" or "fixes #7".
var issueRefPattern = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s+#(\d+)`)

type pullResponse struct {
	Body string `json:"body"`
}

type issueResponse struct {
	Number int `json:"number"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// LinkedIssue extracts the first closing-keyword issue reference from the pull
// request body and verifies the issue exists, returning its label set. A pull
// request with no reference resolves to (nil, nil).
func (c *Client) LinkedIssue(ctx context.Context, owner, name string, prNumber int) (*verify.LinkedIssue, error) {
	var pull pullResponse
	endpoint := fmt.Sprintf("repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(name), prNumber)
	if err := c.do(ctx, endpoint, &pull); err != nil {
		return nil, err
	}

	match := issueRefPattern.FindStringSubmatch(pull.Body)
	if match == nil {
		return nil, nil
	}
	issueNumber, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, nil
	}

	var issue issueResponse
	endpoint = fmt.Sprintf("repos/%s/%s/issues/%d", url.PathEscape(owner), url.PathEscape(name), issueNumber)
	if err := c.do(ctx, endpoint, &issue); err != nil {
		return nil, err
	}
	if issue.PullRequest != nil {
		// The reference pointed at another pull request, not an issue.
		return nil, nil
	}

	tags := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		tags = append(tags, label.Name)
	}
	return &verify.LinkedIssue{Number: issue.Number, Tags: tags}, nil
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
