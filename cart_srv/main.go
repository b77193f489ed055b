package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/grpc-ecosystem/grpc-opentracing/go/otgrpc"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"shopcart_srvs/cart_srv/global"
	"shopcart_srvs/cart_srv/handler"
	"shopcart_srvs/cart_srv/initialize"
	"shopcart_srvs/cart_srv/router"
	"shopcart_srvs/cart_srv/stock"
	"shopcart_srvs/cart_srv/store"
	"shopcart_srvs/cart_srv/sweeper"
	"shopcart_srvs/cart_srv/utils"
	"shopcart_srvs/cart_srv/utils/register/consul"
)

func main() {
	IP := flag.String("ip", "0.0.0.0", "ip地址")
	Port := flag.Int("port", 0, "http端口号，0表示用配置里的")
	flag.Parse()

	//初始化
	debug := initialize.GetEnvInfo("mxshop_debug")
	initialize.InitLogger(debug)
	initialize.InitConfig(debug)
	initialize.InitRedis()
	cfg := global.ServerConfig
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if *Port == 0 {
		*Port = cfg.Port
	}
	grpcPort := cfg.GrpcPort
	if grpcPort == 0 {
		grpcPort, _ = utils.GetFreePort()
	}
	zap.S().Infof("ip: %s, http端口: %d, grpc端口: %d", *IP, *Port, grpcPort)

	tracer, closer, err := initialize.InitTracer(cfg.JaegerInfo)
	if err != nil {
		zap.S().Panic("初始化jaeger失败:", err.Error())
	}

	//producer起不来不影响购物车本身，只是没有过期消息
	var publisher sweeper.Publisher
	mqProducer, err := initialize.InitProducer(cfg.RocketMQInfo)
	if err != nil {
		zap.S().Errorf("初始化rocketmq失败: %v", err)
	} else {
		publisher = sweeper.NewMQPublisher(mqProducer, cfg.RocketMQInfo.Topic)
	}

	cartCfg := cfg.CartInfo
	ttl := time.Duration(cartCfg.EffectiveTime) * time.Millisecond
	cartStore := store.New(global.RedisClient, store.Options{
		Prefix:     cartCfg.KeyPrefix,
		DefaultTTL: cartCfg.EffectiveTime,
	})
	lockRepo := stock.NewLockRepo(global.RedisClient, stock.Options{LockTTL: ttl})
	cartServer := handler.NewCartServer(cartStore, lockRepo, cartCfg)

	//http服务
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.InitRouter(engine, cartServer)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", *IP, *Port),
		Handler: engine,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Panic("启动http服务失败:", err.Error())
		}
	}()

	//grpc只提供健康检查
	server := grpc.NewServer(grpc.UnaryInterceptor(otgrpc.OpenTracingServerInterceptor(tracer)))
	grpc_health_v1.RegisterHealthServer(server, health.NewServer())
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", *IP, grpcPort))
	if err != nil {
		panic("failed to listen:" + err.Error())
	}
	go func() {
		if err := server.Serve(lis); err != nil {
			panic("failed to start grpc:" + err.Error())
		}
	}()

	//服务注册
	registerClient := consul.NewRegistryClient(cfg.ConsulInfo.Host, cfg.ConsulInfo.Port)
	serviceId := fmt.Sprintf("%s", uuid.NewV4())
	if err = registerClient.Register(cfg.Host, *Port, grpcPort, cfg.Name, cfg.Tags, serviceId); err != nil {
		zap.S().Panic("服务注册失败:", err.Error())
	}

	//过期购物车清理，多个实例用redis分布式锁互斥
	rs := redsync.New(goredis.NewPool(global.RedisClient))
	sw := sweeper.New(cartStore, cartServer, lockRepo, publisher, rs, sweeper.Options{
		Batch:    cartCfg.SweepBatch,
		Interval: time.Duration(cartCfg.SweepInterval) * time.Second,
	})
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sw.Run(sweepCtx)

	zap.S().Debugf("启动服务器, 端口： %d", *Port)

	//接收终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err = registerClient.DeRegister(serviceId); err != nil {
		zap.S().Info("注销失败:", err.Error())
	} else {
		zap.S().Info("注销成功")
	}
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(ctx); err != nil {
		zap.S().Errorf("关闭http服务失败: %v", err)
	}
	server.GracefulStop()
	if mqProducer != nil {
		_ = mqProducer.Shutdown()
	}
	_ = closer.Close()
	_ = global.RedisClient.Close()
	_ = zap.L().Sync()
}
