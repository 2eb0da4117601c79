// Package lcu talks to the two local League APIs: the in-game live client
// (match snapshots and event log) and the launcher's LCU (gameflow phase).
package lcu

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrLockfileNotFound = errors.New("lockfile not found")
	ErrLeagueNotRunning = errors.New("league client is not running")
)

// Credentials holds the LCU connection details parsed from lockfile
type Credentials struct {
	ProcessName string
	PID         string
	Port        string
	Password    string
	Protocol    string
}

// AuthHeader returns the basic auth header value for the LCU
func (c *Credentials) AuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("riot:"+c.Password))
}

// Client represents a connection to the League Client
type Client struct {
	lockfilePath string
	httpClient   *http.Client

	mu          sync.RWMutex
	credentials *Credentials
	baseURL     string
}

// NewClient creates a new LCU client. An empty lockfilePath searches the usual install paths.
func NewClient(lockfilePath string) *Client {
	return &Client{
		lockfilePath: lockfilePath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, // LCU uses self-signed cert
				},
			},
			Timeout: 2 * time.Second, // Short timeout for quick disconnect detection
		},
	}
}

// FindLockfile searches for the League Client lockfile
func FindLockfile() (string, error) {
	possiblePaths := []string{
		"C:/Riot Games/League of Legends/lockfile",
		"D:/Riot Games/League of Legends/lockfile",
		"C:/Program Files/Riot Games/League of Legends/lockfile",
		"C:/Program Files (x86)/Riot Games/League of Legends/lockfile",
		"/Applications/League of Legends.app/Contents/LoL/lockfile",
	}
	for _, drive := range []string{"E:", "F:", "G:"} {
		possiblePaths = append(possiblePaths, filepath.Join(drive, "Riot Games/League of Legends/lockfile"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", ErrLockfileNotFound
}

// ParseLockfile reads and parses the lockfile content
func ParseLockfile(path string) (*Credentials, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	// Lockfile format: LeagueClient:pid:port:password:protocol
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid lockfile format: expected 5 parts, got %d", len(parts))
	}

	return &Credentials{
		ProcessName: parts[0],
		PID:         parts[1],
		Port:        parts[2],
		Password:    parts[3],
		Protocol:    parts[4],
	}, nil
}

// Connect establishes connection to the League Client
func (c *Client) Connect(ctx context.Context) error {
	lockfilePath := c.lockfilePath
	if lockfilePath == "" {
		found, err := FindLockfile()
		if err != nil {
			return err
		}
		lockfilePath = found
	}

	creds, err := ParseLockfile(lockfilePath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.credentials = creds
	c.baseURL = fmt.Sprintf("https://127.0.0.1:%s", creds.Port)
	c.mu.Unlock()

	if _, err := c.GetGameflowPhase(ctx); err != nil {
		c.Disconnect()
		return fmt.Errorf("failed to connect to LCU: %w", err)
	}

	return nil
}

// IsConnected checks if the client is still connected to LCU
// by making a health check request
func (c *Client) IsConnected(ctx context.Context) bool {
	if c.GetCredentials() == nil {
		return false
	}
	if _, err := c.GetGameflowPhase(ctx); err != nil {
		c.Disconnect()
		return false
	}
	return true
}

// GetCredentials returns the current LCU credentials
func (c *Client) GetCredentials() *Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials
}

// Disconnect forgets the current credentials
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.credentials = nil
	c.baseURL = ""
	c.mu.Unlock()
}

// Get performs a GET request to the LCU API
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	c.mu.RLock()
	creds, baseURL := c.credentials, c.baseURL
	c.mu.RUnlock()
	if creds == nil {
		return nil, ErrLeagueNotRunning
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", creds.AuthHeader())
	return c.httpClient.Do(req)
}

// GetGameflowPhase returns the current gameflow phase
func (c *Client) GetGameflowPhase(ctx context.Context) (string, error) {
	resp, err := c.Get(ctx, "/lol-gameflow/v1/gameflow-phase")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var phase string
	if err := json.NewDecoder(resp.Body).Decode(&phase); err != nil {
		return "", err
	}

	return phase, nil
}
