// Package main: wallet service.
//
// The service builds the wallets of the coins table and serves them over the REST API. Wallet events are forwarded to
// the message broker and the transactions found by the watcher come back through it. With the in process broker and
// networks configured, the watcher runs inside the service.
package main

import (
	"context"
	"encoding/hex"
	"flag"

	"github.com/tarancss/hd"

	"github.com/tarancss/mcw/api"
	"github.com/tarancss/mcw/cmd/internal/boot"
	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/event"
	"github.com/tarancss/mcw/lib/logger"
	"github.com/tarancss/mcw/lib/msg"
	"github.com/tarancss/mcw/lib/store/db"
	"github.com/tarancss/mcw/wallet"
	"github.com/tarancss/mcw/watcher"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9090")
	coin := flag.String("coin", "", "only create the wallet of this coin id")
	account := flag.Uint("account", 0, "HD account whose keys sign the EVM coins")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(conf.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log.Infow("configuration", "dbtype", conf.DBType, "mbtype", conf.MbType, "coins", conf.Coins,
		"networks", len(conf.Networks))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn, log)
	if err != nil {
		log.Fatalw("connecting to database", "err", err)
	}
	defer func() { _ = dbConn.Close(context.Background()) }()

	// load Prometheus monitor
	if *monitor {
		boot.Metrics(ctx, log)
	}

	// load message broker
	mb, err := boot.Broker(conf, log)
	if err != nil {
		log.Fatalw("connecting to message broker", "err", err)
	}
	defer func() {
		if errClose := mb.Close(); errClose != nil {
			log.Warnw("closing message broker", "err", errClose)
		}
	}()

	// create wallets
	bus := event.New()
	opts := []wallet.Option{wallet.WithBus(bus), wallet.WithLogger(log), wallet.WithDB(dbConn)}
	if conf.ConfigDir != "" {
		opts = append(opts, wallet.WithManager(config.NewFileManager(conf.ConfigDir)))
	}
	wallets, err := wallet.CreateWallets(ctx, wallet.FileSource(conf.Coins), *coin, opts...)
	if wallets == nil {
		log.Fatalw("creating wallets", "err", err)
	}
	if err != nil {
		log.Warnw("some wallets were not created", "err", err)
	}

	// load HD wallet
	var hdw *hd.HdWallet
	if conf.Seed != "" {
		seed, err := hex.DecodeString(conf.Seed)
		if err != nil {
			log.Fatalw("decoding seed", "err", err)
		}
		if hdw, err = hd.Init(seed); err != nil {
			log.Fatalw("loading HD wallet", "err", err)
		}
	}

	// create wallet service
	s := api.New(wallets, hdw, log)
	n, err := s.LoadHDKeys(uint32(*account))
	if err != nil {
		log.Fatalw("loading HD keys", "err", err)
	}
	log.Infow("wallets created", "coins", len(wallets.Coins), "keyed", n)

	// forward wallet events and receive the transactions of watched addresses
	var ids []string
	for _, w := range wallets.All() {
		ids = append(ids, w.ID())
	}
	relay := msg.NewRelay(mb, bus, log)
	if err = relay.Watch(ids...); err != nil {
		log.Fatalw("relaying wallet events", "err", err)
	}
	for _, c := range wallets.Coins {
		c := c
		go func() {
			if err := msg.Consume(ctx, mb, c.ID(), bus, log); err != nil && ctx.Err() == nil {
				log.Errorw("consuming transaction events", "coin", c.ID(), "err", err)
			}
		}()
		if addr := c.Address(); addr != "" {
			if err = msg.Listen(mb, c.ID(), addr); err != nil {
				log.Warnw("asking to watch address", "coin", c.ID(), "err", err)
			}
		}
	}

	// embedded watcher
	watching := make(chan struct{})
	if _, local := mb.(*msg.Local); local && len(conf.Networks) > 0 {
		wt := watcher.New(dbConn, watcher.WithBroker(mb), watcher.WithLogger(log))
		closeNets, err := boot.Networks(wt, conf.Networks, log)
		if err != nil {
			log.Fatalw("loading networks", "err", err)
		}
		go func() {
			defer close(watching)
			defer closeNets()
			if err := wt.Run(ctx); err != nil {
				log.Errorw("watcher", "err", err)
			}
		}()
	} else {
		close(watching)
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	boot.OnSignal(log, func() {
		// do last actions and wait for all write operations to end
		cancel()
		relay.Close()
		s.Stop()
	})

	// init RESTful API, wait for its return and log response
	log.Infow("wallet service", "result", s.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))
	<-watching
}
