package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "github.com/MikeMC777/inventario/docs"
	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/catalog"
	"github.com/MikeMC777/inventario/internal/config"
	"github.com/MikeMC777/inventario/internal/httpx"
	"github.com/MikeMC777/inventario/internal/inventory"
	"github.com/MikeMC777/inventario/internal/logger"
	"github.com/MikeMC777/inventario/internal/notify"
	"github.com/MikeMC777/inventario/internal/order"
	"github.com/MikeMC777/inventario/internal/schema"
	"github.com/MikeMC777/inventario/internal/user"
)

// deps is everything the router serves.
type deps struct {
	auth              authService
	items             inventory.Repository
	categories        catalog.CategoryRepository
	suppliers         catalog.SupplierRepository
	orders            orderService
	lowStockThreshold int
	logger            *zap.Logger
}

func newRouter(d deps) *gin.Engine {
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Logger(d.logger), httpx.Recovery(d.logger))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.POST("/auth/register", registerHandler(d.auth))
	r.POST("/auth/login", loginHandler(d.auth))

	authed := r.Group("/", httpx.Auth(d.auth))
	admin := httpx.RequireAdmin()

	authed.GET("/auth/profile", profileHandler())
	authed.PUT("/auth/password", changePasswordHandler(d.auth))
	authed.GET("/auth/admin", admin, adminHandler())

	authed.GET("/items", listItemsHandler(d.items))
	authed.POST("/items", createItemHandler(d.items, d.categories))
	authed.GET("/items/:id", getItemHandler(d.items))
	authed.PUT("/items/:id", updateItemHandler(d.items, d.categories))
	authed.DELETE("/items/:id", deleteItemHandler(d.items))

	authed.GET("/categories", listCategoriesHandler(d.categories))
	authed.GET("/categories/:id", getCategoryHandler(d.categories))
	authed.POST("/categories", admin, createCategoryHandler(d.categories))
	authed.PUT("/categories/:id", admin, updateCategoryHandler(d.categories))
	authed.DELETE("/categories/:id", admin, deleteCategoryHandler(d.categories))

	authed.GET("/suppliers", listSuppliersHandler(d.suppliers))
	authed.GET("/suppliers/:id", getSupplierHandler(d.suppliers))
	authed.POST("/suppliers", admin, createSupplierHandler(d.suppliers))
	authed.PUT("/suppliers/:id", admin, updateSupplierHandler(d.suppliers))
	authed.DELETE("/suppliers/:id", admin, deleteSupplierHandler(d.suppliers))

	authed.POST("/orders", createOrderHandler(d.orders))
	authed.GET("/orders", listOrdersHandler(d.orders))
	authed.GET("/orders/:id", getOrderHandler(d.orders))

	authed.GET("/dashboard/summary", summaryHandler(d.items))
	authed.GET("/dashboard/low-stock", lowStockHandler(d.items, d.lowStockThreshold))
	return r
}

type storage struct {
	users      user.Repository
	items      inventory.Repository
	reader     order.ItemReader
	categories catalog.CategoryRepository
	suppliers  catalog.SupplierRepository
	orders     order.Store
	close      func()
}

func openStorage(ctx context.Context, cfg config.Config, lg *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == "memory" {
		sups := catalog.NewMemorySuppliers()
		items := inventory.NewMemoryStore(sups)
		return &storage{
			users:      user.NewMemoryRepo(),
			items:      items,
			reader:     items,
			categories: catalog.NewMemoryCategories(),
			suppliers:  sups,
			orders:     order.NewMemoryStore(items, lg),
			close:      func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := schema.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		users:      user.NewPGRepo(pool),
		items:      inventory.NewPGRepo(pool),
		reader:     inventory.NewPGLedger(pool),
		categories: catalog.NewPGCategories(pool),
		suppliers:  catalog.NewPGSuppliers(pool),
		orders:     order.NewPGStore(pool),
		close:      pool.Close,
	}, nil
}

// newSender picks the alert transport; the returned func releases it.
func newSender(cfg config.Config, lg *zap.Logger) (notify.Sender, func(), error) {
	switch cfg.NotifyTransport {
	case "kafka":
		ks, err := notify.NewKafkaSender(notify.KafkaOptions{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopicLowStock,
			ClientID: cfg.KafkaClientID,
		}, lg)
		if err != nil {
			return nil, nil, err
		}
		return ks, func() { _ = ks.Close() }, nil
	case "smtp":
		return notify.NewMailSender(notify.MailOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.NotifyRecipient,
		}), func() {}, nil
	default:
		return notify.NewLogSender(lg), func() {}, nil
	}
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.Environment)
	defer func() { _ = lg.Sync() }()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	st, err := openStorage(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer st.close()

	sender, releaseSender, err := newSender(cfg, lg)
	if err != nil {
		lg.Fatal("notifier", zap.String("transport", cfg.NotifyTransport), zap.Error(err))
	}
	defer releaseSender()
	dispatcher := notify.NewDispatcher(sender, lg, cfg.NotifyQueueSize, cfg.NotifyWorkers)

	engine := order.NewEngine(st.orders, st.reader, dispatcher, lg, order.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		TxTimeout:         cfg.OrderTxTimeout,
		DebitMaxRetries:   cfg.DebitMaxRetries,
	})
	guard := auth.NewGuard(st.users, auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, lg), lg).
		WithBootstrapAdmin(cfg.BootstrapAdmin)

	router := newRouter(deps{
		auth:              guard,
		items:             st.items,
		categories:        st.categories,
		suppliers:         st.suppliers,
		orders:            engine,
		lowStockThreshold: cfg.LowStockThreshold,
		logger:            lg,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		lg.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		lg.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			lg.Error("grpc serve", zap.Error(err))
		}
	}()
	go func() {
		lg.Info("inventory-service listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("storage", cfg.StorageDriver),
			zap.String("notify", cfg.NotifyTransport),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		lg.Warn("notifier did not drain", zap.Error(err))
	}
	grpcServer.GracefulStop()
	lg.Info("stopped")
}
