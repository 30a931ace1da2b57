package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"firelater-orchestrator/internal/models"
)

const gcpAssetHost = "https://cloudasset.googleapis.com"

// gcpCollector lists assets through the Cloud Asset API with a
// pre-issued OAuth token held in the credential blob.
type gcpCollector struct {
	projectID string
	token     string
	http      *http.Client
}

func newGCPCollector(creds Credentials) (*gcpCollector, error) {
	if err := creds.require("project_id", "access_token"); err != nil {
		return nil, err
	}
	return &gcpCollector{
		projectID: creds.get("project_id"),
		token:     creds.get("access_token"),
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type gcpAssetPage struct {
	Assets []struct {
		Name      string `json:"name"`
		AssetType string `json:"assetType"`
		Resource  struct {
			Location string          `json:"location"`
			Data     json.RawMessage `json:"data"`
		} `json:"resource"`
	} `json:"assets"`
	NextPageToken string `json:"nextPageToken"`
}

func (c *gcpCollector) Resources(ctx context.Context) ([]models.CloudResource, error) {
	var out []models.CloudResource
	pageToken := ""
	for {
		callURL := fmt.Sprintf("%s/v1/projects/%s/assets?contentType=RESOURCE&pageSize=100",
			gcpAssetHost, url.PathEscape(c.projectID))
		if pageToken != "" {
			callURL += "&pageToken=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, callURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		var page gcpAssetPage
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return nil, fmt.Errorf("gcp asset api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, asset := range page.Assets {
			out = append(out, models.CloudResource{
				ProviderResourceID: asset.Name,
				ResourceType:       asset.AssetType,
				Region:             asset.Resource.Location,
				Name:               lastPathSegment(asset.Name),
				Metadata:           asset.Resource.Data,
			})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// Costs is empty for GCP: billing detail is only exported through
// BigQuery, which the sync engine does not reach into. An empty result
// is a skip, not a failure.
func (c *gcpCollector) Costs(ctx context.Context) ([]models.CloudCostRecord, error) {
	return nil, nil
}

func lastPathSegment(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 && idx < len(name)-1 {
		return name[idx+1:]
	}
	return name
}
