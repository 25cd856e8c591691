// Package streamer issues the upstream SSE request and decodes it into a
// lazy sequence of events.Event.
package streamer

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/relaywave/agentbridge/internal/credentials"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// requestTimeout is the overall transport deadline for one upstream
// exchange.
const requestTimeout = 600 * time.Second

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ClientInfo carries the fixed client-version/OS header triplet the upstream
// expects on every request.
type ClientInfo struct {
	Version   string
	OSCategory string
	OSName    string
	OSVersion string
}

// Streamer issues requests against a single upstream endpoint.
type Streamer struct {
	baseURL string
	client  *http.Client
	codec   wireproto.Codec
	pool    *credentials.Pool
	info    ClientInfo
	logger  *slog.Logger
}

func New(baseURL string, codec wireproto.Codec, pool *credentials.Pool, info ClientInfo, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		codec:   codec,
		pool:    pool,
		info:    info,
		logger:  logger,
	}
}

// Stream encodes packet, acquires a credential from the pool, and issues the
// upstream request, retrying once on HTTP 429 with a fresh credential.
// It returns a lazy sequence of decoded events.
func (s *Streamer) Stream(ctx context.Context, packet wireproto.Value) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		cred, err := s.pool.Acquire(ctx)
		if err != nil {
			yield(events.Event{}, fmt.Errorf("streamer: acquiring credential: %w", err))
			return
		}

		body, err := s.codec.Encode(packet, wireproto.MessageTypeRequest)
		if err != nil {
			yield(events.Event{}, fmt.Errorf("streamer: encoding request: %w", err))
			return
		}

		resp, err := s.post(ctx, body, cred)
		if err != nil {
			yield(events.Event{}, fmt.Errorf("streamer: upstream request: %w", err))
			return
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			replacement, err := s.pool.ReportRateLimited(ctx, cred)
			if err != nil {
				yield(events.Event{}, fmt.Errorf("streamer: no credential available after rate limit: %w", err))
				return
			}
			cred = replacement
			resp, err = s.post(ctx, body, cred)
			if err != nil {
				yield(events.Event{}, fmt.Errorf("streamer: upstream retry request: %w", err))
				return
			}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			yield(events.Event{}, fmt.Errorf("streamer: upstream returned status %d", resp.StatusCode))
			return
		}

		for frame, err := range s.readFrames(resp.Body) {
			if err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable upstream frame", "error", err)
				continue
			}
			ev := events.Parse(frame)
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (s *Streamer) post(ctx context.Context, body []byte, cred *credentials.Credential) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	if s.info.Version != "" {
		req.Header.Set("x-warp-client-version", s.info.Version)
	}
	if s.info.OSCategory != "" {
		req.Header.Set("x-warp-os-category", s.info.OSCategory)
	}
	if s.info.OSName != "" {
		req.Header.Set("x-warp-os-name", s.info.OSName)
	}
	if s.info.OSVersion != "" {
		req.Header.Set("x-warp-os-version", s.info.OSVersion)
	}
	return s.client.Do(req)
}

// readFrames parses SSE `data:` lines into decoded wireproto.Value frames:
// whitespace-stripped, then hex-decoded if all-hex, else URL-safe base64
// with padding repair, else standard base64.
// A `[DONE]` payload terminates immediately.
func (s *Streamer) readFrames(r io.Reader) iter.Seq2[wireproto.Value, error] {
	return func(yield func(wireproto.Value, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		var buf strings.Builder
		flush := func() bool {
			raw := strings.TrimSpace(buf.String())
			buf.Reset()
			if raw == "" {
				return true
			}
			decoded, ok := decodeFrame(raw)
			if !ok {
				return yield(wireproto.Value{}, fmt.Errorf("undecodable frame"))
			}
			v, err := s.codec.Decode(decoded, wireproto.MessageTypeEvent)
			if err != nil {
				return yield(wireproto.Value{}, err)
			}
			return yield(v, nil)
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if payload == "[DONE]" {
					return
				}
				buf.WriteString(payload)
			case strings.TrimSpace(line) == "":
				if !flush() {
					return
				}
			}
		}
		flush()
	}
}

// decodeFrame applies the hex / url-safe-base64 / standard-base64 fallback
// chain.
func decodeFrame(raw string) ([]byte, bool) {
	if hexPattern.MatchString(raw) && len(raw)%2 == 0 {
		if b, err := hex.DecodeString(raw); err == nil {
			return b, true
		}
	}

	padded := raw
	if pad := len(padded) % 4; pad != 0 {
		padded += strings.Repeat("=", 4-pad)
	}
	if b, err := base64.URLEncoding.DecodeString(padded); err == nil {
		return b, true
	}
	if b, err := base64.StdEncoding.DecodeString(padded); err == nil {
		return b, true
	}
	return nil, false
}
