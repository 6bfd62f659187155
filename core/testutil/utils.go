package testutil

import (
	"context"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/allegro/bigcache/v3"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/storage"
)

// Well known dev chain keys. They hold nothing on any real network.
const (
	ExecutorKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	SponsorKeyHex  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	RelayKeyHex    = "5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"

	RecipientAddress = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
)

func Executor() *signer.Identity { return mustIdentity(ExecutorKeyHex) }
func Sponsor() *signer.Identity  { return mustIdentity(SponsorKeyHex) }
func Relay() *signer.Identity    { return mustIdentity(RelayKeyHex) }

func mustIdentity(hex string) *signer.Identity {
	id, err := signer.FromPrivateKeyHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}

// Shortcut to initialize an in-memory storage, panic if we cannot create db
func TestMustDB() storage.Storage {
	db, err := storage.NewInMemory()
	if err != nil {
		panic(err)
	}
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

func GetDefaultCache() *bigcache.BigCache {
	config := bigcache.DefaultConfig(10 * time.Minute)
	// a handful of token entries at most
	config.Shards = 16
	config.MaxEntriesInWindow = 64
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		panic(err)
	}
	return cache
}
