package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	defer srv.Close()

	api := NewBotAPIWithURL(srv.URL, "TOKEN")
	if err := api.SendMessage(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if got["chat_id"] != float64(42) || got["text"] != "<b>hi</b>" || got["parse_mode"] != "HTML" {
		t.Errorf("body = %v", got)
	}
}

func TestCallReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
	}))
	defer srv.Close()

	err := NewBotAPIWithURL(srv.URL, "T").SendMessage(context.Background(), 1, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 403 || !strings.Contains(apiErr.Description, "blocked") {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSendDocument(t *testing.T) {
	var name, content, chat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		chat = r.FormValue("chat_id")
		f, h, err := r.FormFile("document")
		if err == nil {
			name = h.Filename
			b, _ := io.ReadAll(f)
			content = string(b)
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	err := NewBotAPIWithURL(srv.URL, "T").SendDocument(context.Background(), 7, []byte("a,b\n"), "r.csv", "report")
	if err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
	if chat != "7" || name != "r.csv" || content != "a,b\n" {
		t.Errorf("chat=%q name=%q content=%q", chat, name, content)
	}
}

func TestCheckTelegramIP(t *testing.T) {
	allowed := []string{"149.154.160.1", "149.154.175.254", "91.108.4.10", "91.108.7.255"}
	denied := []string{"149.154.176.1", "91.108.8.1", "10.0.0.1", "", "not-an-ip", "149.154.1"}
	for _, ip := range allowed {
		if !CheckTelegramIP(ip) {
			t.Errorf("CheckTelegramIP(%q) = false", ip)
		}
	}
	for _, ip := range denied {
		if CheckTelegramIP(ip) {
			t.Errorf("CheckTelegramIP(%q) = true", ip)
		}
	}
}
