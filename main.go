package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tripchat/global"
	"tripchat/logger"
	mid "tripchat/middleware"
	chatmod "tripchat/module/chat"
	chatsvc "tripchat/module/chat/service"
	"tripchat/module/chat/store"
	chatgw "tripchat/service/chat"
	"tripchat/service/kafka"
	"tripchat/service/mgo"
	"tripchat/service/natsx"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof("[main] no .env file: %v", err)
	}
	cfg := global.Load()

	global.ConfigIds(cfg)
	global.ConfigAuth(cfg)
	global.ConfigRedis(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	global.ConfigMgo(ctx, cfg)

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := mgo.WaitReady(waitCtx); err != nil {
		log.Fatalf("mongo not ready: %v (last: %v)", err, mgo.Err())
	}

	// realtime fan-out: local hub, bridged over NATS when configured
	hub := chatgw.NewRoomHub(chatgw.NewFanout(4, 1024))
	var sink chatsvc.EventSink = &chatgw.HubSink{Hub: hub}
	if len(cfg.NatsServers) > 0 {
		bus, err := natsx.New(natsx.Config{Servers: cfg.NatsServers, Name: cfg.NodeID})
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer bus.Close()
		if err := chatgw.StartBridge(bus, hub); err != nil {
			log.Fatalf("nats bridge: %v", err)
		}
		sink = &chatgw.NatsSink{Bus: bus}
		logger.Infof("[main] room fan-out bridged over nats")
	}

	var archiver chatsvc.Archiver
	if len(cfg.KafkaBrokers) > 0 {
		ka, err := kafka.NewArchiver(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("kafka archiver: %v", err)
		}
		defer func() { _ = ka.Close() }()
		archiver = ka
		logger.Infof("[main] message archive -> kafka topic=%s", cfg.KafkaTopic)
	}

	svc := chatsvc.NewChatService(store.NewMongoStore(mgo.GetDB()), sink, archiver)
	gw := chatgw.NewServer(cfg.NodeID, hub, svc)
	defer hub.Close()

	h := chatmod.NewHandler(svc)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/chat", gw.HandleWS) // ws://host/chat?token=...
	mid.GET(r, "/conversations", h.ListConversations, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/conversations", h.CreateConversation, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/messages/:conversationId", h.ListMessages, mid.RouteOpt{IsAuth: true})

	logger.Infof("[main] listening on %s node=%s", cfg.HTTPAddr, cfg.NodeID)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}
