package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHysteriaAPIAddUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/users/" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Username != "u1" || req.TrafficGB != 10 || req.ExpirationDays != 30 {
			t.Errorf("req = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	api := NewHysteriaAPI(srv.URL, "tok", "https://sub.example.com/")
	res, err := api.AddUser(context.Background(), CreateUserRequest{Username: "u1", TrafficGB: 10, ExpirationDays: 30})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if res.Output == "" {
		t.Fatal("empty output for empty body")
	}

	uri, err := api.UserURI(context.Background(), "u1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://sub.example.com/sub/normal/u1#Hysteria2" {
		t.Fatalf("uri = %s", uri)
	}
}

func TestHysteriaAPIAddUserRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"exists"}`))
	}))
	defer srv.Close()

	api := NewHysteriaAPI(srv.URL, "", "sub.example.com")
	if _, err := api.AddUser(context.Background(), CreateUserRequest{Username: "u1", TrafficGB: 1, ExpirationDays: 1}); err == nil {
		t.Fatal("expected error on 409")
	}
}

func TestHysteriaAPIListUsers(t *testing.T) {
	for name, body := range map[string]string{
		"map":  `{"u1": {"blocked": false, "max_download_bytes": 10}}`,
		"list": `[{"username": "u1", "blocked": false, "max_download_bytes": 10}]`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			users, err := NewHysteriaAPI(srv.URL, "", "").ListUsers(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if users["u1"].MaxDownloadBytes != 10 || users["u1"].Username != "u1" {
				t.Fatalf("users = %+v", users)
			}
		})
	}
}

func TestPanelFactory(t *testing.T) {
	p, err := PanelFactory(Settings{Mode: "cli"})
	if err != nil || p.PanelType() != "hysteria_cli" {
		t.Fatalf("cli: %v %v", p, err)
	}
	p, err = PanelFactory(Settings{Mode: "api", APIURL: "http://x"})
	if err != nil || p.PanelType() != "hysteria_api" {
		t.Fatalf("api: %v %v", p, err)
	}
	if _, err := PanelFactory(Settings{Mode: "api"}); err == nil {
		t.Fatal("api without url accepted")
	}
	if _, err := PanelFactory(Settings{Mode: "marzban"}); err == nil {
		t.Fatal("unknown mode accepted")
	}
}
