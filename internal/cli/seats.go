package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SeatsCmd returns the seats command.
func SeatsCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "seats",
		Short: "Query and assign seats on a running server",
	}
	cmd.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the seating server")

	cmd.AddCommand(seatsAvailableCmd(&server))
	cmd.AddCommand(seatsInitCmd(&server))
	cmd.AddCommand(seatsAssignCmd(&server))
	return cmd
}

func seatsAvailableCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "available <flight-key>",
		Short: "List unoccupied seats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*server, "")
			seats, err := c.available(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(seats) == 0 {
				fmt.Fprintln(out, color.New(color.FgYellow).Sprint("no seats available"))
				return nil
			}
			fmt.Fprintf(out, "%s %d available on %s\n", color.New(color.FgGreen).Sprint("✓"), len(seats), args[0])
			for _, s := range seats {
				fmt.Fprintf(out, "  %s\n", s)
			}
			return nil
		},
	}
}

func seatsInitCmd(server *string) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "init <flight-key> <seat>...",
		Short: "Add seats to a flight (operator token required)",
		Long: `Add seats to a flight. Either all seats are added or, when one
already exists, none.

Examples:
  flight-seating seats init LH400-2026-10-19 1A 1B 1C --token "$(flight-seating token)"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*server, token)
			if err := c.initialize(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d seats added to %s\n",
				color.New(color.FgGreen).Sprint("✓"), len(args)-1, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Operator bearer token")
	return cmd
}

func seatsAssignCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <flight-key> <seat> <occupant>",
		Short: "Assign a seat to an occupant",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*server, "")
			if err := c.assign(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s now sits in %s\n",
				color.New(color.FgGreen).Sprint("✓"), args[2], args[1])
			return nil
		},
	}
}

// client talks to the seating HTTP API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base, token string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) seatsURL(key string, rest ...string) string {
	parts := append([]string{c.base, "v1", "flights", url.PathEscape(key), "seats"}, rest...)
	return strings.Join(parts, "/")
}

func (c *client) available(ctx context.Context, key string) ([]string, error) {
	var seats []string
	if err := c.do(ctx, http.MethodGet, c.seatsURL(key), nil, &seats); err != nil {
		return nil, err
	}
	return seats, nil
}

func (c *client) initialize(ctx context.Context, key string, seats []string) error {
	return c.do(ctx, http.MethodPost, c.seatsURL(key), map[string]any{"seats": seats}, nil)
}

func (c *client) assign(ctx context.Context, key, seat, occupant string) error {
	return c.do(ctx, http.MethodPut, c.seatsURL(key, url.PathEscape(seat)), map[string]string{"occupant": occupant}, nil)
}

// apiError is a non-2xx answer of the server.
type apiError struct {
	Status int
	Code   string
	Seat   string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s", e.Status, e.Code)
	if e.Seat != "" {
		msg += " (seat " + e.Seat + ")"
	}
	return color.New(color.FgRed).Sprint(msg)
}

func (c *client) do(ctx context.Context, method, target string, body, out any) error {
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
			Seat  string `json:"seat"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Code: payload.Error, Seat: payload.Seat}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
