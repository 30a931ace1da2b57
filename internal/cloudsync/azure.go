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

const (
	azureManagementHost = "https://management.azure.com"
	azureLoginHost      = "https://login.microsoftonline.com"
)

// azureCollector uses the Azure Resource Manager and Cost Management
// REST APIs with a client-credentials token.
type azureCollector struct {
	subscriptionID string
	token          string
	http           *http.Client
}

func newAzureCollector(ctx context.Context, creds Credentials) (*azureCollector, error) {
	if err := creds.require("tenant_id", "client_id", "client_secret", "subscription_id"); err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	token, err := azureToken(ctx, client, creds)
	if err != nil {
		return nil, err
	}
	return &azureCollector{
		subscriptionID: creds.get("subscription_id"),
		token:          token,
		http:           client,
	}, nil
}

func azureToken(ctx context.Context, client *http.Client, creds Credentials) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {creds.get("client_id")},
		"client_secret": {creds.get("client_secret")},
		"scope":         {azureManagementHost + "/.default"},
	}
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", azureLoginHost, creds.get("tenant_id"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("azure token endpoint returned %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("azure token endpoint returned empty token")
	}
	return out.AccessToken, nil
}

func (c *azureCollector) call(ctx context.Context, method string, callURL string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, callURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("azure api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type azureResourcePage struct {
	Value []struct {
		ID       string            `json:"id"`
		Name     string            `json:"name"`
		Type     string            `json:"type"`
		Location string            `json:"location"`
		Tags     map[string]string `json:"tags"`
	} `json:"value"`
	NextLink string `json:"nextLink"`
}

func (c *azureCollector) Resources(ctx context.Context) ([]models.CloudResource, error) {
	callURL := fmt.Sprintf("%s/subscriptions/%s/resources?api-version=2021-04-01", azureManagementHost, c.subscriptionID)
	var out []models.CloudResource
	for callURL != "" {
		var page azureResourcePage
		if err := c.call(ctx, http.MethodGet, callURL, nil, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Value {
			meta, _ := json.Marshal(map[string]any{"tags": r.Tags})
			out = append(out, models.CloudResource{
				ProviderResourceID: r.ID,
				ResourceType:       r.Type,
				Region:             r.Location,
				Name:               r.Name,
				Metadata:           meta,
			})
		}
		callURL = page.NextLink
	}
	return out, nil
}

type azureCostResponse struct {
	Properties struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	} `json:"properties"`
}

func (c *azureCollector) Costs(ctx context.Context) ([]models.CloudCostRecord, error) {
	now := time.Now().UTC()
	query := map[string]any{
		"type":      "ActualCost",
		"timeframe": "MonthToDate",
		"dataset": map[string]any{
			"granularity": "None",
			"aggregation": map[string]any{
				"totalCost": map[string]string{"name": "Cost", "function": "Sum"},
			},
			"grouping": []map[string]string{
				{"type": "Dimension", "name": "ServiceName"},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	callURL := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.CostManagement/query?api-version=2023-03-01", azureManagementHost, c.subscriptionID)
	var resp azureCostResponse
	if err := c.call(ctx, http.MethodPost, callURL, strings.NewReader(string(body)), &resp); err != nil {
		return nil, err
	}

	cost, service, currency := columnIndexes(resp.Properties.Columns)
	period := now.Format("2006-01")
	var out []models.CloudCostRecord
	for _, row := range resp.Properties.Rows {
		rec := models.CloudCostRecord{Period: period, Currency: "USD"}
		if cost >= 0 && cost < len(row) {
			if v, ok := row[cost].(float64); ok {
				rec.Amount = v
			}
		}
		if service >= 0 && service < len(row) {
			if v, ok := row[service].(string); ok {
				rec.Service = v
			}
		}
		if currency >= 0 && currency < len(row) {
			if v, ok := row[currency].(string); ok {
				rec.Currency = v
			}
		}
		if rec.Service == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func columnIndexes(columns []struct {
	Name string `json:"name"`
}) (cost int, service int, currency int) {
	cost, service, currency = -1, -1, -1
	for i, col := range columns {
		switch col.Name {
		case "Cost":
			cost = i
		case "ServiceName":
			service = i
		case "Currency":
			currency = i
		}
	}
	return cost, service, currency
}
