package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type loginData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type step struct {
	name       string
	method     string
	path       string
	body       interface{}
	bearer     string
	wantStatus int
}

type client struct {
	base string
	http *http.Client
}

func main() {
	var (
		base     string
		email    string
		username string
		password string
		timeout  time.Duration
	)

	suffix := time.Now().Unix()
	flag.StringVar(&base, "base", "http://localhost:5000/api", "API base URL including prefix")
	flag.StringVar(&username, "username", fmt.Sprintf("smoke%d", suffix), "username to register")
	flag.StringVar(&email, "email", fmt.Sprintf("smoke%d@example.com", suffix), "email to register")
	flag.StringVar(&password, "password", "pw123456", "password to register")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	c := &client{base: base, http: &http.Client{Timeout: timeout}}
	creds := map[string]string{"email": email, "password": password}

	c.mustRun(step{name: "register", method: http.MethodPost, path: "/auth/register",
		body: map[string]string{"username": username, "email": email, "password": password}, wantStatus: http.StatusCreated})

	var first loginData
	c.mustDecode(c.mustRun(step{name: "login", method: http.MethodPost, path: "/auth/login", body: creds, wantStatus: http.StatusOK}), &first)

	var second loginData
	c.mustDecode(c.mustRun(step{name: "login again", method: http.MethodPost, path: "/auth/login", body: creds, wantStatus: http.StatusOK}), &second)
	if first.RefreshToken != second.RefreshToken {
		log.Fatalf("expected refresh token reuse across logins")
	}
	log.Printf("refresh token reused across logins")

	c.mustRun(step{name: "profile", method: http.MethodGet, path: "/auth/profile", bearer: second.AccessToken, wantStatus: http.StatusOK})
	c.mustRun(step{name: "refresh", method: http.MethodPost, path: "/auth/refresh",
		body: map[string]string{"refreshToken": first.RefreshToken}, wantStatus: http.StatusOK})
	c.mustRun(step{name: "logout", method: http.MethodPost, path: "/auth/logout",
		body: map[string]string{"refreshToken": first.RefreshToken}, wantStatus: http.StatusOK})
	c.mustRun(step{name: "refresh after logout", method: http.MethodPost, path: "/auth/refresh",
		body: map[string]string{"refreshToken": first.RefreshToken}, wantStatus: http.StatusForbidden})

	log.Printf("smoke scenario passed")
	os.Exit(0)
}

func (c *client) mustRun(s step) envelope {
	env, status, err := c.do(s)
	if err != nil {
		log.Fatalf("%s: %v", s.name, err)
	}
	if status != s.wantStatus {
		detail := ""
		if env.Error != nil {
			detail = env.Error.Code + ": " + env.Error.Message
		}
		log.Fatalf("%s: expected status %d, got %d %s", s.name, s.wantStatus, status, detail)
	}
	log.Printf("%s: %d", s.name, status)
	return env
}

func (c *client) mustDecode(env envelope, dest interface{}) {
	if err := json.Unmarshal(env.Data, dest); err != nil {
		log.Fatalf("decode payload: %v", err)
	}
}

func (c *client) do(s step) (envelope, int, error) {
	var env envelope
	var body io.Reader
	if s.body != nil {
		raw, err := json.Marshal(s.body)
		if err != nil {
			return env, 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(s.method, c.base+s.path, body)
	if err != nil {
		return env, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return env, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, resp.StatusCode, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return env, resp.StatusCode, fmt.Errorf("decode envelope: %w", err)
		}
	}
	return env, resp.StatusCode, nil
}
