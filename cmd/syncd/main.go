// cmd/syncd is the main entrypoint for a sync server node.
//
// Configuration is entirely via flags so a single binary can run any node
// in a sync topology.
//
// Example:
//
//	./syncd --id server1 --addr :8080 --data-dir /var/actionsync/server1 \
//	         --jwt-secret changeme --ping 10s --timeout 5s
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"actionsync/internal/alog"
	"actionsync/internal/api"
	"actionsync/internal/authsrv"
	"actionsync/internal/logging"
	"actionsync/internal/metrics"
	"actionsync/internal/node"
	"actionsync/internal/registry"
	"actionsync/internal/store"
	"actionsync/internal/transport"
	"actionsync/internal/wsconn"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	nodeID := flag.String("id", "", "Node id announced during handshake (random if empty)")
	addr := flag.String("addr", ":8080", "Listen address (host:port)")
	dataDir := flag.String("data-dir", "", "Directory for the durable WAL/snapshot store; memory-only if empty")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for verifying peer bearer tokens; auth disabled if empty")
	ping := flag.Duration("ping", 10*time.Second, "Heartbeat ping interval; 0 disables heartbeating")
	timeout := flag.Duration("timeout", 5*time.Second, "Heartbeat pong timeout")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "Log encoding: json, console")
	flag.Parse()

	log, err := logging.NewLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	id := *nodeID
	if id == "" {
		id = uuid.NewString()
	}

	// ── Storage ────────────────────────────────────────────────────────────
	var st store.Store
	var fileStore *store.FileStore
	if *dataDir != "" {
		fileStore, err = store.NewFileStore(*dataDir)
		if err != nil {
			log.Fatal("open store", zap.Error(err))
		}
		st = fileStore
		defer fileStore.Close()
	} else {
		st = store.NewMemory()
	}

	actionLog, err := alog.New(id, st, alog.Options{})
	if err != nil {
		log.Fatal("open log", zap.Error(err))
	}

	m := metrics.New()
	reg := registry.New()

	var tm *authsrv.TokenManager
	if *jwtSecret != "" {
		tm = authsrv.NewTokenManager(*jwtSecret, 24*time.Hour)
	}

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(log.Logger), api.Recovery(log.Logger))

	handler := api.NewHandler(actionLog, reg, id)
	handler.Register(router)

	var connSeq int64
	router.GET("/sync", func(c *gin.Context) {
		conn, err := wsconn.Upgrade(c.Writer, c.Request)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		opts := node.Options{
			Ping:    *ping,
			Timeout: *timeout,
			FixTime: true,
		}
		if tm != nil {
			opts.Auth = tm.Authenticate
		}

		srv, err := node.NewServer(actionLog, conn, opts)
		if err != nil {
			log.Error("create server node", zap.Error(err))
			conn.Destroy()
			return
		}

		connSeq++
		connID := strconv.FormatInt(connSeq, 10)
		reg.Add(connID, srv)
		srv.OnDisconnect(func(reason transport.Reason) {
			reg.Remove(connID)
		})
		srv.OnState(func() {
			if srv.RemoteNodeID() != "" {
				log.WithNodeID(id).Info("peer handshake", zap.String("peer", srv.RemoteNodeID()), zap.Bool("authenticated", srv.Authenticated()))
			}
		})
		srv.OnError(func(err error, kind, received string) {
			if kind != "" {
				m.HandshakeFailures.WithLabelValues(kind).Inc()
			}
		})
		srv.OnSynced(func() {
			m.ActionsSynced.Inc()
		})

		conn.FireConnecting()
		conn.FireConnect()
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("node", id), zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	if fileStore != nil {
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if err := fileStore.Snapshot(context.Background()); err != nil {
					log.Error("snapshot failed", zap.Error(err))
					m.StoreErrors.Inc()
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", zap.String("node", id))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if fileStore != nil {
		if err := fileStore.Snapshot(ctx); err != nil {
			log.Error("final snapshot failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
}
