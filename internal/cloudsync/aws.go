package cloudsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"

	"firelater-orchestrator/internal/models"
)

// awsCollector talks to the Resource Groups Tagging API for inventory
// and Cost Explorer for spend, signing requests with SigV4 from static
// account credentials.
type awsCollector struct {
	cfg    aws.Config
	region string
	signer *v4.Signer
	http   *http.Client
}

func newAWSCollector(ctx context.Context, creds Credentials) (*awsCollector, error) {
	if err := creds.require("access_key_id", "secret_access_key", "region"); err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.get("region")),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.get("access_key_id"),
			creds.get("secret_access_key"),
			creds.get("session_token"),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}
	return &awsCollector{
		cfg:    cfg,
		region: creds.get("region"),
		signer: v4.NewSigner(),
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// post signs and sends one aws-json-1.1 RPC call.
func (c *awsCollector) post(ctx context.Context, endpoint string, service string, target string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", target)

	identity, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, identity, req, hex.EncodeToString(sum[:]), service, c.region, time.Now().UTC()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned %d: %s", target, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type taggingResource struct {
	ResourceARN string `json:"ResourceARN"`
	Tags        []struct {
		Key   string `json:"Key"`
		Value string `json:"Value"`
	} `json:"Tags"`
}

type taggingPage struct {
	PaginationToken     string            `json:"PaginationToken"`
	ResourceTagMappings []taggingResource `json:"ResourceTagMappingList"`
}

func (c *awsCollector) Resources(ctx context.Context) ([]models.CloudResource, error) {
	endpoint := fmt.Sprintf("https://tagging.%s.amazonaws.com/", c.region)
	var out []models.CloudResource
	token := ""
	for {
		req := map[string]any{"ResourcesPerPage": 100}
		if token != "" {
			req["PaginationToken"] = token
		}
		var page taggingPage
		err := c.post(ctx, endpoint, "tagging", "ResourceGroupsTaggingAPI_20170126.GetResources", req, &page)
		if err != nil {
			return nil, err
		}
		for _, r := range page.ResourceTagMappings {
			res := models.CloudResource{
				ProviderResourceID: r.ResourceARN,
				ResourceType:       typeFromARN(r.ResourceARN),
				Region:             c.region,
			}
			for _, tag := range r.Tags {
				if tag.Key == "Name" {
					res.Name = tag.Value
				}
			}
			if res.Name == "" {
				res.Name = nameFromARN(r.ResourceARN)
			}
			meta, _ := json.Marshal(map[string]any{"tags": r.Tags})
			res.Metadata = meta
			out = append(out, res)
		}
		if page.PaginationToken == "" {
			return out, nil
		}
		token = page.PaginationToken
	}
}

type costPage struct {
	ResultsByTime []struct {
		TimePeriod struct {
			Start string `json:"Start"`
		} `json:"TimePeriod"`
		Groups []struct {
			Keys    []string `json:"Keys"`
			Metrics map[string]struct {
				Amount string `json:"Amount"`
				Unit   string `json:"Unit"`
			} `json:"Metrics"`
		} `json:"Groups"`
	} `json:"ResultsByTime"`
}

func (c *awsCollector) Costs(ctx context.Context) ([]models.CloudCostRecord, error) {
	// Cost Explorer only serves out of us-east-1.
	endpoint := "https://ce.us-east-1.amazonaws.com/"
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	req := map[string]any{
		"TimePeriod": map[string]string{
			"Start": monthStart.Format("2006-01-02"),
			"End":   now.AddDate(0, 0, 1).Format("2006-01-02"),
		},
		"Granularity": "MONTHLY",
		"Metrics":     []string{"UnblendedCost"},
		"GroupBy": []map[string]string{
			{"Type": "DIMENSION", "Key": "SERVICE"},
		},
	}
	var page costPage
	if err := c.post(ctx, endpoint, "ce", "AWSInsightsIndexService.GetCostAndUsage", req, &page); err != nil {
		return nil, err
	}

	var out []models.CloudCostRecord
	for _, result := range page.ResultsByTime {
		period := result.TimePeriod.Start
		if len(period) >= 7 {
			period = period[:7]
		}
		for _, group := range result.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			metric, ok := group.Metrics["UnblendedCost"]
			if !ok {
				continue
			}
			amount, err := strconv.ParseFloat(metric.Amount, 64)
			if err != nil {
				continue
			}
			out = append(out, models.CloudCostRecord{
				Period:   period,
				Service:  group.Keys[0],
				Amount:   amount,
				Currency: metric.Unit,
			})
		}
	}
	return out, nil
}

// typeFromARN extracts "service:resource-type" from an ARN.
func typeFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return "unknown"
	}
	service := parts[2]
	rest := parts[5]
	if idx := strings.IndexAny(rest, ":/"); idx > 0 {
		return service + ":" + rest[:idx]
	}
	return service
}

func nameFromARN(arn string) string {
	if idx := strings.LastIndexAny(arn, ":/"); idx >= 0 && idx < len(arn)-1 {
		return arn[idx+1:]
	}
	return arn
}
