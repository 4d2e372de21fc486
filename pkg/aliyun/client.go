package aliyun

import (
	"context"
	"fmt"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_api.go -package=mocks

// Response is the decoded JSON body of an OpenAPI call
type Response map[string]any

// API is the account-bound subset of the Alibaba Cloud database APIs used
// by the collector
type API interface {
	// ListInstances calls DDS DescribeDBInstances
	ListInstances(ctx context.Context) (Response, error)
	// ListClusters calls PolarDB DescribeDBClusters
	ListClusters(ctx context.Context) (Response, error)
	// GetPerformance calls the engine's per-node performance API for one key
	GetPerformance(ctx context.Context, engine config.Engine, nodeID, key string, window Window) (Response, error)
}

// apiVersions holds the RPC API version of each engine's product
var apiVersions = map[config.Engine]string{
	config.EngineMongoDB: "2015-12-01",
	config.EnginePolarDB: "2017-08-01",
}

// listPageSize is the largest page both list APIs accept
const listPageSize = "100"

// Client wraps the Alibaba Cloud OpenAPI clients of one account
type Client struct {
	account config.Account
	clients map[config.Engine]*openapi.Client
	runtime *util.RuntimeOptions
}

// NewClient creates a client for every engine configured in cfg using the
// account's credentials
func NewClient(account config.Account, cfg *config.Config) (*Client, error) {
	cred, err := newCredential(account)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials for account %s: %w", account.Name, err)
	}

	clients := make(map[config.Engine]*openapi.Client, len(cfg.Engines))
	for engine, ec := range cfg.Engines {
		c, err := openapi.NewClient(&openapi.Config{
			Credential: cred,
			RegionId:   tea.String(account.RegionID),
			Endpoint:   tea.String(ec.Endpoint),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", engine, err)
		}
		clients[engine] = c
	}

	timeout := tea.Int(int(cfg.RequestTimeout / time.Millisecond))
	return &Client{
		account: account,
		clients: clients,
		runtime: &util.RuntimeOptions{
			Autoretry:      tea.Bool(false),
			ConnectTimeout: timeout,
			ReadTimeout:    timeout,
		},
	}, nil
}

func newCredential(account config.Account) (credential.Credential, error) {
	cfg := new(credential.Config).
		SetAccessKeyId(account.AccessKeyID).
		SetAccessKeySecret(account.AccessKeySecret)

	if account.RoleARN != "" {
		cfg.SetType("ram_role_arn").
			SetRoleArn(account.RoleARN).
			SetRoleSessionName(fmt.Sprintf("aliyun-db-exporter-%d", time.Now().Unix()))
	} else {
		cfg.SetType("access_key")
	}

	return credential.NewCredential(cfg)
}

// ListInstances lists the DDS instances of the account
func (c *Client) ListInstances(ctx context.Context) (Response, error) {
	return c.call(ctx, config.EngineMongoDB, "DescribeDBInstances", map[string]*string{
		"PageSize": tea.String(listPageSize),
	})
}

// ListClusters lists the PolarDB clusters of the account
func (c *Client) ListClusters(ctx context.Context) (Response, error) {
	return c.call(ctx, config.EnginePolarDB, "DescribeDBClusters", map[string]*string{
		"PageSize": tea.String(listPageSize),
	})
}

// GetPerformance retrieves one metric key for an instance (DDS) or node (PolarDB)
func (c *Client) GetPerformance(ctx context.Context, engine config.Engine, nodeID, key string, window Window) (Response, error) {
	query := map[string]*string{
		"Key":       tea.String(key),
		"StartTime": tea.String(window.StartString()),
		"EndTime":   tea.String(window.EndString()),
	}

	switch engine {
	case config.EngineMongoDB:
		query["DBInstanceId"] = tea.String(nodeID)
		return c.call(ctx, engine, "DescribeDBInstancePerformance", query)
	case config.EnginePolarDB:
		query["DBNodeId"] = tea.String(nodeID)
		return c.call(ctx, engine, "DescribeDBNodePerformance", query)
	default:
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
}

// call issues one RPC-style request. The SDK call itself cannot be
// interrupted, so ctx is only checked before the request is sent; the runtime
// timeouts bound the call.
func (c *Client) call(ctx context.Context, engine config.Engine, action string, query map[string]*string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, ok := c.clients[engine]
	if !ok {
		return nil, fmt.Errorf("engine %s is not configured", engine)
	}

	params := &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String(apiVersions[engine]),
		Protocol:    tea.String("HTTPS"),
		Pathname:    tea.String("/"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		ReqBodyType: tea.String("formData"),
		BodyType:    tea.String("json"),
	}
	query["RegionId"] = tea.String(c.account.RegionID)

	result, err := client.CallApi(params, &openapi.OpenApiRequest{Query: query}, c.runtime)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", action, err)
	}

	body, ok := result["body"].(map[string]any)
	if !ok {
		return nil, malformed("body", "%s returned no JSON body", action)
	}
	return Response(body), nil
}
