package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"medvault/api/server"
	"medvault/core/auth"
	"medvault/core/billing"
	"medvault/core/config"
	"medvault/core/events"
	"medvault/core/genesis"
	"medvault/core/logging"
	"medvault/core/nodekey"
	"medvault/core/oracle"
	"medvault/core/settlement"
	"medvault/core/storage"
	"medvault/core/vault"
)

const staticFeedRefresh = 15 * time.Second

// node owns everything serve opens and must close.
type node struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.Storage
	index    *events.SQLiteSink
	dir      *oracle.StaticDirectory
	static   *oracle.StaticPriceFeed
	binder   *oracle.Binder
	receipts *oracle.ReceiptVerifier
	key      ed25519.PrivateKey
	vault    *vault.Machine
	closers  []io.Closer
}

func openNode(ctx context.Context, cfg *config.Config, logOut io.Writer) (*node, error) {
	n := &node{
		cfg: cfg,
		log: logging.New(logOut, cfg.LogLevel, cfg.LogFormat),
		dir: oracle.NewStaticDirectory(),
	}
	if err := n.open(ctx); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) open(ctx context.Context) error {
	var opts []storage.Option
	if n.cfg.DEK != "" {
		c, err := storage.CipherFromBase64(n.cfg.DEK)
		if err != nil {
			return err
		}
		opts = append(opts, storage.WithCipher(c))
	} else if n.cfg.IsProduction() {
		return errors.New("VAULT_DEK is required in production")
	} else {
		n.log.Warn().Msg("[STORAGE] VAULT_DEK not set, state is stored unencrypted")
	}
	store, err := storage.NewStorage(n.cfg.DBPath, opts...)
	if err != nil {
		return fmt.Errorf("open storage %s: %w", n.cfg.DBPath, err)
	}
	n.store = store
	n.closers = append(n.closers, store)

	sinks := events.Fanout{events.NewLogSink(n.log)}
	if n.cfg.EventIndexPath != "" {
		idx, err := events.OpenSQLiteSink(n.cfg.EventIndexPath)
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		n.index = idx
		n.closers = append(n.closers, idx)
		sinks = append(sinks, idx)
	}

	if n.cfg.NodeKeyDir != "" {
		pub, priv, err := nodekey.LoadOrCreate(n.cfg.NodeKeyDir)
		if err != nil {
			return fmt.Errorf("node key: %w", err)
		}
		n.key = priv
		n.log.Info().Hex("pubkey", pub).Msg("[KEY] node checkpoint key loaded")
	}

	if err := n.openOracles(); err != nil {
		return err
	}
	sinks = append(sinks, n.binder)

	vopts := []vault.Option{
		vault.WithLogger(n.log),
		vault.WithSink(sinks),
		vault.WithTransferer(n.transferer()),
	}
	n.vault = vault.New(store, n.dir, vopts...)

	if err := n.applyGenesis(ctx); err != nil {
		return err
	}
	return n.bindOracles()
}

func (n *node) transferer() billing.Transferer {
	if n.cfg.SettlementWebhookURL == "" {
		return settlement.NewLogTransferer(n.log)
	}
	return settlement.NewWebhookTransferer(n.cfg.SettlementWebhookURL, 30*time.Second, n.log)
}

// applyGenesis initializes an empty vault from the genesis file. An existing
// vault ignores the file.
func (n *node) applyGenesis(ctx context.Context) error {
	ok, err := n.vault.Initialized()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	g, err := genesis.Load(n.cfg.GenesisPath)
	if errors.Is(err, os.ErrNotExist) {
		n.log.Warn().Str("path", n.cfg.GenesisPath).Msg("[GENESIS] no genesis file, vault stays uninitialized")
		return nil
	}
	if err != nil {
		return err
	}
	return n.vault.Init(ctx, g)
}

// openOracles builds the price feed, attestation verifier and payment
// receipt verifier this node serves from its configuration.
func (n *node) openOracles() error {
	n.binder = &oracle.Binder{Dir: n.dir}
	switch {
	case n.cfg.PriceFeedURL != "":
		n.binder.Feed = oracle.NewHTTPPriceFeed(n.cfg.PriceFeedURL, 10*time.Second)
	case n.cfg.StaticPrice > 0:
		n.static = oracle.NewStaticPriceFeed(n.cfg.StaticPrice, n.cfg.StaticPriceDecimals, time.Now())
		n.binder.Feed = n.static
	default:
		n.log.Warn().Msg("[ORACLE] no price source configured")
	}

	if n.cfg.AttestationKeyPath != "" {
		key, err := oracle.LoadPublicKeyPEM(n.cfg.AttestationKeyPath)
		if err != nil {
			return fmt.Errorf("load attestation key: %w", err)
		}
		n.binder.Verifier = &oracle.JWTVerifier{
			Keys:        oracle.NewStaticKeyProvider(key),
			Destination: n.cfg.AttestationDestination,
			MaxAge:      n.cfg.AttestationMaxAge,
		}
	} else {
		n.log.Warn().Msg("[ORACLE] no attestation key configured")
	}

	if n.cfg.ReceiptKeyPath != "" {
		key, err := oracle.LoadPublicKeyPEM(n.cfg.ReceiptKeyPath)
		if err != nil {
			return fmt.Errorf("load receipt key: %w", err)
		}
		n.receipts = &oracle.ReceiptVerifier{Keys: oracle.NewStaticKeyProvider(key), MaxAge: n.cfg.ReceiptMaxAge}
	} else {
		n.log.Warn().Msg("[PAYMENT] VAULT_RECEIPT_KEY_PATH not set, native payments are disabled")
	}
	return nil
}

// bindOracles serves the node's oracles at the addresses bound in vault
// state. Later rebindings reach the binder through the event sinks.
func (n *node) bindOracles() error {
	ok, err := n.vault.Initialized()
	if err != nil || !ok {
		return err
	}
	bound, err := n.vault.Oracles()
	if err != nil {
		return err
	}
	n.binder.Bind(bound)
	return nil
}

// refreshStatic restamps the operator price so it never reads as stale.
func (n *node) refreshStatic(ctx context.Context) {
	if n.static == nil {
		return
	}
	t := time.NewTicker(staticFeedRefresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n.static.Set(n.cfg.StaticPrice, n.cfg.StaticPriceDecimals, now)
		}
	}
}

func (n *node) Serve(ctx context.Context) error {
	a := auth.NewAuthenticator(n.cfg.JWTSecret, n.cfg.JWTIssuer)
	if a.DevMode() {
		n.log.Warn().Msg("[AUTH] VAULT_JWT_SECRET not set, trusting " + auth.CallerHeader)
	}
	go n.refreshStatic(ctx)
	srv := server.NewServer(n.vault, a, server.Options{
		ListenAddr:     n.cfg.ListenAddr,
		RateLimitRPS:   n.cfg.RateLimitRPS,
		RateLimitBurst: n.cfg.RateLimitBurst,
		NodeKey:        n.key,
		Receipts:       n.receipts,
	}, n.log)
	return srv.Start(ctx)
}

func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i].Close(); err != nil {
			n.log.Warn().Err(err).Msg("close failed")
		}
	}
	n.closers = nil
}
