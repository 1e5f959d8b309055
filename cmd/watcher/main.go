// Package main: watcher service.
//
// The watcher scans the blocks of the configured networks and publishes the transactions of watched addresses to the
// message broker. Addresses are watched on request of the wallet service.
package main

import (
	"context"
	"flag"

	"github.com/tarancss/mcw/cmd/internal/boot"
	"github.com/tarancss/mcw/lib/config"
	"github.com/tarancss/mcw/lib/logger"
	"github.com/tarancss/mcw/lib/store/db"
	"github.com/tarancss/mcw/watcher"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9090")
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
	log.Infow("configuration", "dbtype", conf.DBType, "mbtype", conf.MbType, "networks", len(conf.Networks))
	if conf.MbType != boot.AMQP {
		log.Warnw("no message broker shared with the wallet service, events stay in process", "mbtype", conf.MbType)
	}

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

	// create watcher service and load the networks
	w := watcher.New(dbConn, watcher.WithBroker(mb), watcher.WithLogger(log))
	closeNets, err := boot.Networks(w, conf.Networks, log)
	if err != nil {
		log.Fatalw("loading networks", "err", err)
	}
	defer closeNets()

	// capture CTRL+C or docker's SIGTERM for gracious exit
	boot.OnSignal(log, func() {
		w.Stop()
		cancel()
	})

	// launch the watcher for each network and wait for them to end
	if err = w.Run(ctx); err != nil {
		log.Errorw("watcher", "err", err)
	}
	log.Infow("watcher done")
}
