// Package api provides typed access to the servicehub backend REST API.
//
// Every call rides on the authenticated request pipeline: the pipeline
// attaches the bearer token and retries transient failures, and this
// package only shapes requests and responses.
package api

import (
	"context"
	"net/http"
	"net/url"
)

// Requester sends one logical request. *httpclient.Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Client is the backend API client.
type Client struct {
	r Requester

	Categories *CategoriesService
	Favorites  *FavoritesService
	Messages   *MessagesService
	Ratings    *RatingsService
}

// NewClient creates a backend client over the request pipeline.
func NewClient(r Requester) *Client {
	c := &Client{r: r}
	c.Categories = &CategoriesService{r: r}
	c.Favorites = &FavoritesService{r: r}
	c.Messages = &MessagesService{r: r}
	c.Ratings = &RatingsService{r: r}
	return c
}

func get(ctx context.Context, r Requester, path string, out any) error {
	return r.Do(ctx, http.MethodGet, path, nil, out)
}

func post(ctx context.Context, r Requester, path string, body, out any) error {
	return r.Do(ctx, http.MethodPost, path, body, out)
}

// withQuery appends non-empty query parameters to path.
func withQuery(path string, params url.Values) string {
	for k, v := range params {
		if len(v) == 0 || v[0] == "" {
			params.Del(k)
		}
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
