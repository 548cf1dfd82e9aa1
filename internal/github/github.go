// Package github registers the push webhook on a GitHub repository.
package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when neither GH_TOKEN nor GITHUB_TOKEN is set.
var ErrNoToken = errors.New("github token not set (GH_TOKEN or GITHUB_TOKEN)")

// TokenFromEnv returns GH_TOKEN, falling back to GITHUB_TOKEN.
func TokenFromEnv() (string, error) {
	for _, key := range []string{"GH_TOKEN", "GITHUB_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}
	return "", ErrNoToken
}

// NewClient creates an authenticated GitHub client.
func NewClient(ctx context.Context, token string) *gh.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return gh.NewClient(oauth2.NewClient(ctx, ts))
}

// HooksService is the subset of the repositories API used for webhooks.
type HooksService interface {
	ListHooks(ctx context.Context, owner, repo string, opts *gh.ListOptions) ([]*gh.Hook, *gh.Response, error)
	CreateHook(ctx context.Context, owner, repo string, hook *gh.Hook) (*gh.Hook, *gh.Response, error)
}

// Registrar creates push webhooks.
type Registrar struct {
	hooks HooksService
}

func NewRegistrar(client *gh.Client) *Registrar {
	return &Registrar{hooks: client.Repositories}
}

// ParseRepo splits "owner/name".
func ParseRepo(ownerRepo string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSuffix(ownerRepo, ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}
	return parts[0], parts[1], nil
}

// EnsureWebhook creates an active push hook delivering JSON to url unless one
// already targets it. created reports whether a new hook was made.
func (r *Registrar) EnsureWebhook(ctx context.Context, ownerRepo, url, secret string) (hook *gh.Hook, created bool, err error) {
	owner, repo, err := ParseRepo(ownerRepo)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.findHook(ctx, owner, repo, url)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	config := map[string]interface{}{
		"url":          url,
		"content_type": "json",
		"insecure_ssl": "0",
	}
	if secret != "" {
		config["secret"] = secret
	}

	hook, _, err = r.hooks.CreateHook(ctx, owner, repo, &gh.Hook{
		Events: []string{"push"},
		Active: gh.Bool(true),
		Config: config,
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating webhook: %w", err)
	}
	return hook, true, nil
}

func (r *Registrar) findHook(ctx context.Context, owner, repo, url string) (*gh.Hook, error) {
	opts := &gh.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := r.hooks.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing webhooks: %w", err)
		}

		for _, hook := range hooks {
			if hook.Config == nil {
				continue
			}
			if u, ok := hook.Config["url"].(string); ok && u == url {
				return hook, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}
