// Package mcw and its sub-packages implement a multi-currency wallet: one wallet abstraction over UTXO chains, EVM
// chains and their tokens, backed by pluggable blockchain explorers.
/*
mcw provides a library and two microservices.

Wallets

Package wallet builds coins and tokens from a declarative coins table (CreateWallets, CreateCoin, CreateEVMCoin). Every
wallet exposes the same operations: balances in minimal units and in currency, account info, history, availability
checks, and the creation and broadcast of signed transactions. The chain specific parts (address derivation, signing,
fee rules) live in strategies for EVM and UTXO chains. Creating and sending a transaction also have a guarded variant
that runs at most once per operation within a 5 second cooldown.

Changes are published as topics on an in process event bus (package lib/event): balance updates, history updates, new
transactions and socket transactions.

Explorers

Wallets reach their chain through explorers (package lib/explorer), registered by class name: a go-ethereum client, a
raw node client through ethcli and a Blockbook v2 REST client. An explorer that does not implement an operation returns
ErrUnsupported.

Services

The wallet service (cmd/walletd) serves the wallets over a RESTful API (package api). The watcher service (cmd/watcher)
scans mined blocks of the configured networks (package watcher) and sends transaction events when a watched address is
involved. Both talk through a product agnostic message broker layer (package lib/msg, AMQP in lib/msg/amqp) and persist
their data through a product agnostic store (package lib/store: mongo, postgres, redis or memory).

Both binaries take the JSON configuration with "-c" and serve Prometheus metrics with "-m".
*/
package mcw
