// Package daemon wires the connector's components into one process and
// orchestrates their lifecycle: adaptor initialization with retry, the
// retrieval and dashboard HTTP servers, the feed pusher, the listing
// scheduler, and ordered graceful shutdown.
package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/authz"
	"github.com/crawlpoint/connector/pkg/config"
	"github.com/crawlpoint/connector/pkg/dashboard"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/feed"
	"github.com/crawlpoint/connector/pkg/journal"
	"github.com/crawlpoint/connector/pkg/retrieval"
	"github.com/crawlpoint/connector/pkg/schedule"
	"github.com/crawlpoint/connector/pkg/secrets"
	"github.com/crawlpoint/connector/pkg/transform"
)

// Startup retry curve for transient adaptor init failures.
const (
	startupRetryInitial = 8 * time.Second
	startupRetryMax     = time.Hour
)

// Scheduled job names.
const (
	jobFullListing        = "full-listing"
	jobIncrementalListing = "incremental-listing"
)

// errStopped reports that Stop interrupted startup before the adaptor
// finished initializing. Run treats it as a clean exit.
var errStopped = errors.New("daemon: stopped during startup")

// Options assembles an Application. Config and Adaptor are required; the
// adaptor must implement retrieval.
type Options struct {
	Config *config.Config

	// Adaptor is the repository binding. Must implement adaptor.Retriever;
	// Lister, PollingIncrementalLister and ACLRetriever are picked up when
	// implemented.
	Adaptor adaptor.Adaptor

	// Authorizer overrides the default wiring. When nil, an adaptor that
	// implements ACLRetriever authorizes through its ACLs; otherwise every
	// secure document denies non-indexer access.
	Authorizer authz.Authorizer

	// Secrets decodes sensitive configuration values for the adaptor.
	// Defaults to the obfuscating codec.
	Secrets secrets.Codec

	// Journal overrides the default journal. The default registers its
	// Prometheus mirrors in the global registry, which only one journal
	// per process may do.
	Journal *journal.Journal

	// Transforms applied at serve time for fully-trusted callers.
	MetadataTransforms *transform.Pipeline
	ACLTransforms      []transform.ACLTransform
	ContentTransforms  []transform.ContentTransform
}

// Application owns every long-lived component of the connector process.
//
// Lifecycle: New binds the listen sockets, Start initializes the adaptor and
// launches the servers, Run blocks until a signal or server failure, Stop
// tears everything down in order. Stop is idempotent.
type Application struct {
	cfg     *config.Config
	adpt    adaptor.Adaptor
	secrets secrets.Codec

	jnl       *journal.Journal
	codec     *docid.Codec
	pusher    *feed.AsyncPusher
	feeds     *feed.Service
	scheduler *schedule.Scheduler

	retrievalSrv *http.Server
	retrievalLn  net.Listener
	dashboard    *dashboard.Server

	group     *errgroup.Group
	serverErr chan error

	shutdown chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New validates the wiring, builds every component and binds the retrieval
// listen socket. No adaptor or network activity happens yet beyond the bind.
func New(opts Options) (*Application, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon: nil config")
	}
	if opts.Adaptor == nil {
		return nil, errors.New("daemon: nil adaptor")
	}
	retriever, ok := opts.Adaptor.(adaptor.Retriever)
	if !ok {
		return nil, errors.New("daemon: adaptor does not implement retrieval")
	}
	cfg := opts.Config

	codec, err := docid.NewCodec(cfg.Server.BaseURL(), cfg.Server.DocIDIsURL)
	if err != nil {
		return nil, fmt.Errorf("daemon: identifier codec: %w", err)
	}

	trust, err := retrieval.NewClassifier(retrieval.TrustConfig{
		Secure:        cfg.Server.Secure,
		AllowedNames:  cfg.Trust.AllowedNames,
		SkipCertNames: cfg.Trust.SkipCertNames,
		AllowedIPs:    cfg.Trust.AllowedIPs,
		AllowedCIDRs:  cfg.Trust.AllowedCIDRs,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: trust classifier: %w", err)
	}

	secretCodec := opts.Secrets
	if secretCodec == nil {
		secretCodec = secrets.NewObfuscated()
	}

	jnl := opts.Journal
	if jnl == nil {
		jnl = journal.New(true)
	}

	sender := feed.NewSender(feed.SenderConfig{
		Endpoint: cfg.Feed.DestinationURL,
		Backoff: feed.Backoff{
			MaxAttempts: cfg.Feed.MaxAttempts,
			Initial:     cfg.Feed.InitialBackoff,
		},
	})
	archiver, err := buildArchiver(context.Background(), cfg.Feed, secretCodec)
	if err != nil {
		return nil, err
	}
	feeds := feed.NewService(feed.NewFileMaker(cfg.Feed.Datasource, codec), sender, archiver)
	pusher := feed.NewAsyncPusher(feed.PusherConfig{
		MaxRecordsPerFeed: cfg.Feed.MaxRecordsPerFeed,
		QueueSize:         cfg.Feed.QueueSize,
		MaxBatchLatency:   cfg.Feed.MaxBatchLatency,
	}, feeds, jnl)

	var sessions *authz.SessionService
	if cfg.Session.JWTSecret != "" {
		secret, err := secretCodec.Decode(cfg.Session.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("daemon: session secret: %w", err)
		}
		sessions, err = authz.NewSessionService(authz.SessionConfig{
			Secret:   secret,
			Duration: cfg.Session.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("daemon: session service: %w", err)
		}
	}

	authorizer := opts.Authorizer
	if authorizer == nil {
		if ar, ok := opts.Adaptor.(adaptor.ACLRetriever); ok {
			authorizer = authz.NewACLAuthorizer(aclRetriever{ar})
		}
	}

	handler := retrieval.NewHandler(retrieval.Config{
		Codec:                codec,
		DocPath:              cfg.Server.DocPath,
		Trust:                trust,
		Retriever:            retriever,
		Authorizer:           authorizer,
		Sessions:             sessions,
		Journal:              jnl,
		MarkAllDocsPublic:    cfg.Server.MarkAllDocsPublic,
		UseCompression:       cfg.Server.UseCompression,
		UseDocControlsHeader: cfg.Server.UseDocControlsHeader,
		ScoringType:          cfg.Server.ScoringType,
		SSORedirectURL:       cfg.Session.SSORedirectURL,
		HeaderTimeout:        cfg.Server.HeaderTimeout,
		ContentTimeout:       cfg.Server.ContentTimeout,
		MetadataTransforms:   opts.MetadataTransforms,
		ACLTransforms:        opts.ACLTransforms,
		ContentTransforms:    opts.ContentTransforms,
		MaxWorkers:           cfg.Server.MaxWorkers,
		QueueCapacity:        cfg.Server.QueueCapacity,
	})

	srv := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.Server.Secure {
		cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("daemon: load server certificate: %w", err)
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			// The indexer presents a client certificate for trust
			// classification; end users do not.
			ClientAuth: tls.RequestClientCert,
			MinVersion: tls.VersionTLS12,
		}
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return nil, fmt.Errorf("daemon: bind retrieval port %d: %w", cfg.Server.Port, err)
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(dashboard.Config{
			Port:         cfg.Dashboard.Port,
			Username:     cfg.Dashboard.Username,
			PasswordHash: cfg.Dashboard.PasswordHash,
		}, jnl)
	}

	return &Application{
		cfg:          cfg,
		adpt:         opts.Adaptor,
		secrets:      secretCodec,
		jnl:          jnl,
		codec:        codec,
		pusher:       pusher,
		feeds:        feeds,
		scheduler:    schedule.NewScheduler(),
		retrievalSrv: srv,
		retrievalLn:  ln,
		dashboard:    dash,
		serverErr:    make(chan error, 2),
		shutdown:     make(chan struct{}),
	}, nil
}

// Journal exposes the process counters.
func (a *Application) Journal() *journal.Journal { return a.jnl }

// RetrievalAddr reports the bound retrieval listen address.
func (a *Application) RetrievalAddr() net.Addr { return a.retrievalLn.Addr() }

// Feeds exposes the feed delivery backend for direct pushes (group
// membership, content feeds).
func (a *Application) Feeds() *feed.Service { return a.feeds }

// Start initializes the adaptor and launches every background component.
// Transient adaptor init failures are retried with exponential backoff
// until Stop interrupts them; fatal failures abort startup.
func (a *Application) Start(ctx context.Context) error {
	actx := &adaptor.Context{
		Config:  a.cfg.Adaptor.Settings,
		Pusher:  queuePusher{a.pusher},
		Secrets: a.secrets,
	}
	if err := a.initAdaptor(ctx, actx); err != nil {
		return err
	}

	a.pusher.Start(ctx)
	a.scheduler.Start(ctx)
	if err := a.scheduleListings(); err != nil {
		return err
	}

	a.group, _ = errgroup.WithContext(ctx)
	a.group.Go(func() error {
		logger.Info("Retrieval server listening",
			"port", a.cfg.Server.Port, "secure", a.cfg.Server.Secure)
		var err error
		if a.cfg.Server.Secure {
			err = a.retrievalSrv.ServeTLS(a.retrievalLn, "", "")
		} else {
			err = a.retrievalSrv.Serve(a.retrievalLn)
		}
		if err != nil && err != http.ErrServerClosed {
			a.reportServerError(fmt.Errorf("retrieval server: %w", err))
			return err
		}
		return nil
	})
	if a.dashboard != nil {
		a.group.Go(func() error {
			if err := a.dashboard.Start(ctx); err != nil {
				a.reportServerError(err)
				return err
			}
			return nil
		})
	}
	return nil
}

// Run starts the application and blocks until a termination signal, a
// server failure, or context cancellation, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		if errors.Is(err, errStopped) {
			return nil
		}
		_ = a.retrievalLn.Close()
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Connector is running")

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Run context cancelled", logger.KeyError, ctx.Err().Error())
	case err := <-a.serverErr:
		logger.Error("Server failed, shutting down", logger.KeyError, err.Error())
		runErr = err
	case <-a.shutdown:
		// Stop was called from elsewhere.
	}

	if err := a.Stop(a.cfg.ShutdownTimeout); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop tears the application down: it interrupts startup retry, stops the
// scheduler and the pusher (draining queued records), destroys the adaptor,
// and shuts both HTTP servers down with grace. deadline bounds the whole
// sequence. Calls after the first are no-ops returning the first result.
func (a *Application) Stop(deadline time.Duration) error {
	a.stopOnce.Do(func() { a.stopErr = a.stop(deadline) })
	return a.stopErr
}

func (a *Application) stop(deadline time.Duration) error {
	logger.Info("Stopping connector", "deadline", deadline.String())
	close(a.shutdown)

	until := time.Now().Add(deadline)
	left := func() time.Duration {
		d := time.Until(until)
		if d < time.Second {
			d = time.Second
		}
		return d
	}

	a.scheduler.Stop(left())
	a.pusher.Stop(left())

	dctx, cancel := context.WithDeadline(context.Background(), until)
	defer cancel()
	if err := a.adpt.Destroy(dctx); err != nil {
		logger.Warn("Adaptor destroy failed", logger.KeyError, err.Error())
	}

	// Idle keep-alive connections hold Shutdown open until their next
	// request; a loopback request to /sleep cycles them.
	a.nudge(a.cfg.Server.Port, a.cfg.Server.Secure)
	if a.dashboard != nil {
		a.nudge(a.cfg.Dashboard.Port, false)
	}

	var shutdownErr error
	if err := a.retrievalSrv.Shutdown(dctx); err != nil {
		shutdownErr = fmt.Errorf("daemon: retrieval shutdown: %w", err)
	}
	if a.dashboard != nil {
		if err := a.dashboard.Stop(dctx); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("daemon: dashboard shutdown: %w", err)
		}
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	logger.Info("Connector stopped")
	return shutdownErr
}

// initAdaptor retries transient init failures on the startup curve, racing
// the backoff sleep against Stop and the context.
func (a *Application) initAdaptor(ctx context.Context, actx *adaptor.Context) error {
	delay := startupRetryInitial
	for attempt := 1; ; attempt++ {
		err := a.adpt.Init(ctx, actx)
		if err == nil {
			logger.Info("Adaptor initialized", logger.KeyAttempt, attempt)
			return nil
		}
		if !adaptor.IsTransient(err) {
			return fmt.Errorf("daemon: adaptor init: %w", err)
		}
		logger.Warn("Adaptor init failed, backing off",
			logger.KeyAttempt, attempt, "delay", delay.String(), logger.KeyError, err.Error())

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-a.shutdown:
			t.Stop()
			return errStopped
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		delay *= 2
		if delay > startupRetryMax {
			delay = startupRetryMax
		}
	}
}

// scheduleListings registers the full and incremental listing jobs for the
// capabilities the adaptor implements.
func (a *Application) scheduleListings() error {
	lister, ok := a.adpt.(adaptor.Lister)
	if ok {
		task := schedule.OneAtATime(jobFullListing,
			schedule.WithRetry(jobFullListing, schedule.DefaultRetryPolicy(), a.fullListing(lister)))

		switch {
		case a.cfg.Adaptor.FullListingSchedule != "":
			sched, err := config.ParseScheduleSpec(a.cfg.Adaptor.FullListingSchedule)
			if err != nil {
				return fmt.Errorf("daemon: full listing schedule: %w", err)
			}
			a.scheduler.Add(jobFullListing, sched, task)
			if a.cfg.Adaptor.PushOnStart {
				a.scheduler.Trigger(jobFullListing)
			}
		case a.cfg.Adaptor.PushOnStart:
			// No recurring schedule; fire once now.
			a.scheduler.Add(jobFullListing, schedule.At(time.Now()), task)
		}
	}

	if inc, ok := a.adpt.(adaptor.PollingIncrementalLister); ok && a.cfg.Adaptor.IncrementalPollPeriod > 0 {
		task := schedule.OneAtATime(jobIncrementalListing, a.incrementalListing(inc))
		a.scheduler.Add(jobIncrementalListing, schedule.Every(a.cfg.Adaptor.IncrementalPollPeriod), task)
	}
	return nil
}

func (a *Application) fullListing(lister adaptor.Lister) schedule.Task {
	return func(ctx context.Context) error {
		start := time.Now()
		if err := lister.GetDocIDs(ctx, queuePusher{a.pusher}); err != nil {
			return err
		}
		a.jnl.RecordFullListing()
		logger.Info("Full listing finished",
			logger.DurationMs(float64(time.Since(start).Milliseconds())))
		return nil
	}
}

func (a *Application) incrementalListing(inc adaptor.PollingIncrementalLister) schedule.Task {
	return func(ctx context.Context) error {
		if err := inc.GetModifiedDocIDs(ctx, queuePusher{a.pusher}); err != nil {
			logger.Warn("Incremental listing failed", logger.KeyError, err.Error())
			return nil
		}
		a.jnl.RecordIncrementalListing()
		return nil
	}
}

func (a *Application) reportServerError(err error) {
	select {
	case a.serverErr <- err:
	default:
	}
}

// nudge issues a loopback request to the server's /sleep endpoint so idle
// keep-alive connections notice the shutdown. Errors are irrelevant.
func (a *Application) nudge(port int, secure bool) {
	scheme := "http"
	client := &http.Client{Timeout: 2 * time.Second}
	if secure {
		scheme = "https"
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	resp, err := client.Get(fmt.Sprintf("%s://127.0.0.1:%d/sleep", scheme, port))
	if err == nil {
		_ = resp.Body.Close()
	}
	client.CloseIdleConnections()
}

// queuePusher adapts the async pusher to the adaptor-facing interface.
type queuePusher struct {
	p *feed.AsyncPusher
}

func (q queuePusher) Push(rec feed.Record) bool { return q.p.Offer(rec) }

// aclRetriever adapts an adaptor's ACL capability to the acl package
// interface without the daemon importing its concrete type.
type aclRetriever struct {
	ar adaptor.ACLRetriever
}

func (r aclRetriever) RetrieveACLs(ctx context.Context, ids []docid.DocID) (map[docid.DocID]acl.ACL, error) {
	return r.ar.RetrieveACLs(ctx, ids)
}

// buildArchiver assembles the configured feed archivers: a local directory,
// an S3 bucket, both, or none.
func buildArchiver(ctx context.Context, cfg config.FeedConfig, codec secrets.Codec) (feed.Archiver, error) {
	var archivers []feed.Archiver

	if cfg.ArchiveDir != "" {
		dir, err := feed.NewDirArchiver(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("daemon: %w", err)
		}
		archivers = append(archivers, dir)
	}

	if cfg.S3.Enabled {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.AccessKeyID != "" {
			secret, err := codec.Decode(cfg.S3.SecretAccessKey)
			if err != nil {
				return nil, fmt.Errorf("daemon: S3 secret key: %w", err)
			}
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, secret, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("daemon: load AWS config: %w", err)
		}
		archivers = append(archivers, feed.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix))
	}

	switch len(archivers) {
	case 0:
		return nil, nil
	case 1:
		return archivers[0], nil
	default:
		return multiArchiver(archivers), nil
	}
}

// multiArchiver fans one feed out to several archivers.
type multiArchiver []feed.Archiver

func (m multiArchiver) Archive(ctx context.Context, datasource string, data []byte, failed bool) error {
	var errs []error
	for _, a := range m {
		if err := a.Archive(ctx, datasource, data, failed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
