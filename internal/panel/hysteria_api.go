package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vpnshop/internal/pkg/httpclient"
)

// HysteriaAPI implements Provisioner against the panel's HTTP management API.
type HysteriaAPI struct {
	baseURL string
	apiKey  string
	subHost string
	client  *httpclient.Client
}

func NewHysteriaAPI(baseURL, apiKey, subURL string) *HysteriaAPI {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	subHost := strings.TrimPrefix(strings.TrimPrefix(subURL, "https://"), "http://")
	return &HysteriaAPI{
		baseURL: baseURL,
		apiKey:  apiKey,
		subHost: strings.TrimRight(subHost, "/"),
		client:  httpclient.New().WithTimeout(30 * time.Second).WithInsecureSkipVerify(),
	}
}

func (a *HysteriaAPI) PanelType() string {
	return "hysteria_api"
}

func (a *HysteriaAPI) usersEndpoint() string {
	return a.baseURL + "api/v1/users/"
}

func (a *HysteriaAPI) headers() map[string]string {
	h := map[string]string{"accept": "application/json"}
	if a.apiKey != "" {
		h["Authorization"] = a.apiKey
	}
	return h
}

func (a *HysteriaAPI) AddUser(ctx context.Context, req CreateUserRequest) (*ProvisionResult, error) {
	if req.Username == "" || req.TrafficGB <= 0 || req.ExpirationDays <= 0 {
		return nil, fmt.Errorf("hysteria api add user: invalid request %+v", req)
	}
	resp, err := a.client.Post(ctx, a.usersEndpoint(), req, a.headers())
	if err != nil {
		return nil, fmt.Errorf("hysteria api add user failed: %w", err)
	}
	if err := httpclient.Expect2xx(resp); err != nil {
		return nil, fmt.Errorf("hysteria api add user: %w", err)
	}
	out := strings.TrimSpace(string(resp.Body))
	if out == "" {
		out = fmt.Sprintf("User %s was added successfully", req.Username)
	}
	return &ProvisionResult{
		Username:       req.Username,
		TrafficGB:      req.TrafficGB,
		ExpirationDays: req.ExpirationDays,
		Output:         out,
	}, nil
}

// UserURI returns the subscription link; the API serves one URI for both IP versions.
func (a *HysteriaAPI) UserURI(ctx context.Context, username string, ipVersion int) (string, error) {
	if a.subHost == "" {
		return "", fmt.Errorf("hysteria api: SUB_URL is not configured")
	}
	return fmt.Sprintf("https://%s/sub/normal/%s#Hysteria2", a.subHost, username), nil
}

func (a *HysteriaAPI) ListUsers(ctx context.Context) (map[string]PanelUser, error) {
	resp, err := a.client.Get(ctx, a.usersEndpoint(), a.headers())
	if err != nil {
		return nil, fmt.Errorf("hysteria api list users failed: %w", err)
	}
	if err := httpclient.Expect2xx(resp); err != nil {
		return nil, fmt.Errorf("hysteria api list users: %w", err)
	}

	users := map[string]PanelUser{}
	if err := json.Unmarshal(resp.Body, &users); err == nil {
		for name, u := range users {
			u.Username = name
			users[name] = u
		}
		return users, nil
	}

	var list []PanelUser
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("hysteria api parse error: %w", err)
	}
	for _, u := range list {
		if u.Username != "" {
			users[u.Username] = u
		}
	}
	return users, nil
}
