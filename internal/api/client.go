// Package api is the request/response side of the lobby service: everything
// that mutates server-side lobby state goes through here, not the streaming
// channel. Calls are fire-and-wait; a failure is returned to the caller and
// never retried automatically.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNameTaken = errors.New("player name already taken")
	ErrNotHost   = errors.New("only the host can start the game")
)

// StatusError is any non-2xx response, carrying the service's detail message.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("lobby service returned %d", e.Status)
	}
	return fmt.Sprintf("lobby service returned %d: %s", e.Status, e.Detail)
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type CreateLobbyResponse struct {
	LobbyID   string `json:"lobby_id"`
	CreatorID string `json:"creator_id"`
}

type LobbyInfo struct {
	CreatorID string `json:"creator_id"`
	Topic     string `json:"topic"`
}

type joinRequest struct {
	UserID     string `json:"user_id"`
	PlayerName string `json:"player_name"`
}

type answerRequest struct {
	Message       string `json:"message"`
	UserID        string `json:"user_id"`
	PlayerName    string `json:"playerName"`
	SubtopicIndex int    `json:"subtopicIndex"`
}

func (c *Client) CreateLobby(ctx context.Context, topic string) (CreateLobbyResponse, error) {
	var resp CreateLobbyResponse
	err := c.post(ctx, "/create-lobby", map[string]string{"topic": topic}, &resp)
	return resp, err
}

func (c *Client) LobbyInfo(ctx context.Context, lobbyID string) (LobbyInfo, error) {
	var resp LobbyInfo
	err := c.get(ctx, "/lobby/"+lobbyID, &resp)
	return resp, err
}

func (c *Client) Participants(ctx context.Context, lobbyID string) ([]string, error) {
	var resp struct {
		Players []string `json:"players"`
	}
	if err := c.get(ctx, "/lobby/"+lobbyID+"/participants", &resp); err != nil {
		return nil, err
	}
	return resp.Players, nil
}

// Join registers a display name in the lobby. A name conflict maps to
// ErrNameTaken so callers can prompt for a different one.
func (c *Client) Join(ctx context.Context, lobbyID, userID, playerName string) error {
	err := c.post(ctx, "/lobby/"+lobbyID+"/join", joinRequest{UserID: userID, PlayerName: playerName}, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %s", ErrNameTaken, playerName)
	}
	return err
}

// StartGame asks the service to move the lobby to the game screen. Host only.
func (c *Client) StartGame(ctx context.Context, lobbyID, userID string) error {
	err := c.post(ctx, "/lobby/"+lobbyID+"/start", joinRequest{UserID: userID}, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusForbidden {
		return ErrNotHost
	}
	return err
}

// StartRound kicks off round generation. The call returns immediately; the
// result arrives as round_data_ready or round_error on the streaming channel.
func (c *Client) StartRound(ctx context.Context, lobbyID string) error {
	return c.post(ctx, "/rounds/start?lobby_id="+url.QueryEscape(lobbyID), nil, nil)
}

// SubmitAnswer sends a guess for grading. The verdict comes back over the
// streaming channel as correct_guess or wrong_guess.
func (c *Client) SubmitAnswer(ctx context.Context, lobbyID, message, userID, playerName string, subtopicIndex int) error {
	body := answerRequest{
		Message:       message,
		UserID:        userID,
		PlayerName:    playerName,
		SubtopicIndex: subtopicIndex,
	}
	return c.post(ctx, "/submit-answer?lobby_id="+url.QueryEscape(lobbyID), body, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return &StatusError{Status: resp.StatusCode, Detail: detail.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
