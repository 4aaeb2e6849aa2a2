package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/shawn/vesta-provisioner/internal/api"
	"github.com/shawn/vesta-provisioner/internal/auth"
	"github.com/shawn/vesta-provisioner/internal/cache"
	"github.com/shawn/vesta-provisioner/internal/calllog"
	appconfig "github.com/shawn/vesta-provisioner/internal/config"
	"github.com/shawn/vesta-provisioner/internal/leader"
	"github.com/shawn/vesta-provisioner/internal/lock"
	"github.com/shawn/vesta-provisioner/internal/metrics"
	"github.com/shawn/vesta-provisioner/internal/provision"
	"github.com/shawn/vesta-provisioner/internal/reconciler"
	"github.com/shawn/vesta-provisioner/internal/registry"
	"github.com/shawn/vesta-provisioner/internal/secret"
	"github.com/shawn/vesta-provisioner/internal/servers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

func main() {
	cfg, err := appconfig.Load(os.Getenv("VESTAPROV_CONFIG"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// AWS DynamoDB
	var awsOptFns []func(*config.LoadOptions) error
	if cfg.LocalMode {
		// Use static credentials for local DynamoDB
		awsOptFns = append(awsOptFns,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				getenv("AWS_ACCESS_KEY_ID", "test"),
				getenv("AWS_SECRET_ACCESS_KEY", "test"),
				"",
			)),
		)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsOptFns...)
	if err != nil {
		slog.Error("load AWS config", "err", err)
		os.Exit(1)
	}
	var dynamoOpts []func(*dynamodb.Options)
	if cfg.DynamoEndpoint != "" {
		endpoint := cfg.DynamoEndpoint
		dynamoOpts = append(dynamoOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	db := dynamodb.NewFromConfig(awsCfg, dynamoOpts...)

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	reg := registry.New(db, cfg.DynamoTable)
	locker := lock.New(rdb, cfg.UsernameReservationTTL)
	usage := cache.NewRedis(rdb, cfg.UsageCacheTTL)

	cs := kubeClient(cfg.LocalMode)

	// Panel credentials may live in Secrets
	if cs != nil {
		if err := servers.FillAllFromSecrets(ctx, cs, cfg.Namespace, cfg.Servers); err != nil {
			slog.Error("load server secrets", "err", err)
			os.Exit(1)
		}
	}
	dir, err := servers.NewDirectory(cfg.Servers)
	if err != nil {
		slog.Error("server directory", "err", err)
		os.Exit(1)
	}
	if dir.Len() == 0 {
		slog.Warn("no vesta servers configured, provisioning requests will fail")
	}

	recorder, closers, store := callLog(cfg.CallLog)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	pool := provision.NewPool(dir, recorder, provision.Options{
		RollbackOnFailure: cfg.Provision.RollbackOnFailure,
		UsernameProbes:    cfg.Provision.UsernameProbes,
		PasswordMinLength: cfg.Provision.PasswordMinLength,
		PasswordMaxLength: cfg.Provision.PasswordMaxLength,
		Reserver:          locker,
	}, provision.DialHTTP)

	var box *secret.Box
	if cfg.SecretKey != "" {
		if box, err = secret.NewBox(cfg.SecretKey); err != nil {
			slog.Error("secret box", "err", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("secret_key not set, service passwords will not be stored")
	}

	var signer *auth.Signer
	if cfg.JWTSecret != "" {
		signer = auth.NewSigner(cfg.JWTSecret, 0)
	} else {
		slog.Warn("jwt_secret not set, API is unauthenticated")
	}

	// Reconciler: under leader election when a cluster is reachable
	rec := reconciler.New(reg, pool, usage, cfg.ReconcileInterval)
	if cs != nil {
		leaderID := cfg.LeaderID
		if leaderID == "" {
			leaderID = "provisioner-" + os.Getenv("POD_NAME")
		}
		go leader.New(cs, cfg.Namespace, leaderID).Run(ctx, rec.Run)
	} else {
		go rec.Run(ctx)
	}

	h := api.New(reg, pool, locker, usage, box, signer, api.Config{LockTTL: cfg.LockTTL})
	if store != nil {
		h.WithCallHistory(store)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: h.Router(),
	}

	go func() {
		slog.Info("provisioner listening", "port", cfg.Port, "local_mode", cfg.LocalMode, "servers", dir.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

// callLog assembles the configured sinks. Every command is logged and counted.
func callLog(cfg appconfig.CallLog) (calllog.Recorder, []io.Closer, *calllog.Store) {
	sinks := calllog.Multi{calllog.NewSlogRecorder(slog.Default()), metrics.Recorder{}}
	var (
		closers []io.Closer
		store   *calllog.Store
	)
	if cfg.Driver != "" {
		s, err := calllog.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			slog.Error("open call log store", "driver", cfg.Driver, "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
		store = s
	}
	if cfg.File != "" {
		f, err := calllog.OpenFile(cfg.File)
		if err != nil {
			slog.Error("open call log file", "path", cfg.File, "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, f)
		closers = append(closers, f)
	}
	return sinks, closers, store
}

// kubeClient returns nil when no cluster is reachable.
func kubeClient(localMode bool) kubernetes.Interface {
	if localMode {
		slog.Info("running in local mode, trying kubeconfig")
		cs := tryKubeconfig()
		if cs == nil {
			slog.Warn("no kubeconfig found, leader election and secret lookup disabled")
		}
		return cs
	}
	k8sCfg, err := rest.InClusterConfig()
	if err != nil {
		slog.Error("k8s in-cluster config", "err", err)
		os.Exit(1)
	}
	cs, err := kubernetes.NewForConfig(k8sCfg)
	if err != nil {
		slog.Error("k8s clientset", "err", err)
		os.Exit(1)
	}
	return cs
}

func tryKubeconfig() kubernetes.Interface {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	cfg, err := clientcmd.BuildConfigFromFlags("", rules.GetDefaultFilename())
	if err != nil {
		return nil
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil
	}
	return cs
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
