package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const helloTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub         *core.Hub
	authService *auth.Service
	cfg         *config.RelayConfig
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.RelayConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, authService: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	username, err := h.handshake(ctx, conn)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	client := core.NewClient("", username)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type: proto.OutboundTypeReady,
		Data: proto.ReadyData{User: username, Protocol: proto.ProtocolVersion},
	}); err != nil {
		return
	}
	h.log.Info().Str("client_id", client.ID).Str("user", username).Msg("ws client ready")

	limiter := newRateLimiter(h.cfg.RateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("user", username).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello frame and returns the authenticated username.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	hctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(hctx, conn, &inbound); err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}

	reject := func(msg string) error {
		_ = wsjson.Write(hctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			ID:    inbound.ID,
			Error: &proto.Error{Code: core.ErrCodeUnauthorized, Msg: msg},
		})
		return errors.New(msg)
	}

	if inbound.Type != proto.InboundTypeHello {
		return "", reject("hello expected")
	}
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return "", reject("invalid hello payload")
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return "", reject("unsupported protocol version")
	}
	claims, err := h.authService.ValidateToken(hello.Token)
	if err != nil {
		return "", reject("invalid token")
	}
	return claims.Username, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, inbound.ID, &proto.Error{Code: "rate_limited", Msg: "too many requests"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.writeError(ctx, conn, inbound.ID, protoErr); err != nil {
				return err
			}
			continue
		}

		res, err := h.hub.Submit(ctx, client, cmd)
		if err != nil {
			if errors.Is(err, core.ErrHubStopped) {
				return err
			}
			h.log.Debug().Err(err).Str("client_id", client.ID).Str("kind", cmd.Kind.String()).Msg("command rejected")
			if err := h.writeError(ctx, conn, inbound.ID, errorFromSubmit(err)); err != nil {
				return err
			}
			continue
		}

		if err := wsjson.Write(ctx, conn, proto.Outbound{
			Type: proto.OutboundTypeResponse,
			ID:   inbound.ID,
			Data: responseData(cmd, res),
		}); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			out, ok := outboundFromEvent(event)
			if !ok {
				continue
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, id string, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, ID: id, Error: protoErr})
}
