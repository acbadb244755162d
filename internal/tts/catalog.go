package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// VoiceModel is one entry from the Fish Audio model marketplace.
type VoiceModel struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author,omitempty"`
	Languages []string `json:"languages,omitempty"`
	TaskCount int      `json:"task_count"`
}

type VoiceList struct {
	Total int          `json:"total"`
	Items []VoiceModel `json:"items"`
}

// ListQuery selects a page of voice models, optionally filtered by title.
type ListQuery struct {
	Title      string
	PageSize   int
	PageNumber int
}

func (q ListQuery) normalize() ListQuery {
	q.Title = strings.TrimSpace(q.Title)
	if q.PageSize <= 0 {
		q.PageSize = 9
	}
	if q.PageNumber <= 0 {
		q.PageNumber = 1
	}
	return q
}

func (q ListQuery) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d", q.Title, q.PageSize, q.PageNumber)
}

// Catalog lists voice models with a TTL cache, since marketplace listings are
// slow upstream calls and browsing hits the same pages repeatedly. The cache
// is owned here, keyed by the normalized query.
type Catalog struct {
	apiKey  string
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]catalogEntry
}

type catalogEntry struct {
	list    VoiceList
	fetched time.Time
}

func NewCatalog(apiKey, baseURL string, ttl time.Duration) *Catalog {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.fish.audio"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Catalog{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     ttl,
		cache:   make(map[string]catalogEntry),
	}
}

func (c *Catalog) ListVoices(ctx context.Context, query ListQuery) (VoiceList, error) {
	query = query.normalize()
	key := query.cacheKey()

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Since(entry.fetched) < c.ttl {
		c.mu.Unlock()
		return entry.list, nil
	}
	c.mu.Unlock()

	list, err := c.fetch(ctx, query)
	if err != nil {
		return VoiceList{}, err
	}

	c.mu.Lock()
	c.cache[key] = catalogEntry{list: list, fetched: time.Now()}
	c.mu.Unlock()
	return list, nil
}

func (c *Catalog) fetch(ctx context.Context, query ListQuery) (VoiceList, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/model")
	if err != nil {
		return VoiceList{}, err
	}
	q := u.Query()
	q.Set("page_size", strconv.Itoa(query.PageSize))
	q.Set("page_number", strconv.Itoa(query.PageNumber))
	if query.Title != "" {
		q.Set("title", query.Title)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return VoiceList{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return VoiceList{}, fmt.Errorf("list voice models: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return VoiceList{}, fmt.Errorf("voice catalog status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Total int `json:"total"`
		Items []struct {
			ID     string `json:"_id"`
			Title  string `json:"title"`
			Author struct {
				Nickname string `json:"nickname"`
			} `json:"author"`
			Languages []string `json:"languages"`
			TaskCount int      `json:"task_count"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return VoiceList{}, fmt.Errorf("voice catalog invalid json: %w", err)
	}

	list := VoiceList{Total: parsed.Total, Items: make([]VoiceModel, 0, len(parsed.Items))}
	for _, item := range parsed.Items {
		id := strings.TrimSpace(item.ID)
		title := strings.TrimSpace(item.Title)
		if id == "" || title == "" {
			continue
		}
		list.Items = append(list.Items, VoiceModel{
			ID:        id,
			Title:     title,
			Author:    strings.TrimSpace(item.Author.Nickname),
			Languages: item.Languages,
			TaskCount: item.TaskCount,
		})
	}
	return list, nil
}
