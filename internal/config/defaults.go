package config

import "time"

const (
	defaultStoreURI       = "memory://"
	defaultStoreDB        = "livraison"
	defaultHTTPAddr       = ":8080"
	defaultConnectRetries = 5
)

var defaultDispatch = Dispatch{
	FanOut:          5,
	MaxWaves:        2,
	RestaurantTTLms: 30000,
	CourierTTLms:    15000,
}

var defaultWatch = Watch{
	Partitions:    8,
	ShutdownGrace: 10 * time.Second,
}

var defaultSimulator = Simulator{
	RestaurantAcceptRate: 0.8,
	CourierAcceptRate:    0.7,
	ReplyDelayMin:        200 * time.Millisecond,
	ReplyDelayMax:        2 * time.Second,
	DeliveryDuration:     30 * time.Second,
	SeedCouriers:         10,
	SeedRestaurants:      3,
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Store: Store{
			URI:            defaultStoreURI,
			DB:             defaultStoreDB,
			RetryBase:      100 * time.Millisecond,
			RetryMax:       30 * time.Second,
			ConnectRetries: defaultConnectRetries,
		},
		HTTP:      HTTP{Addr: defaultHTTPAddr, InspectRate: 5, InspectBurst: 10},
		Log:       Log{Level: "info", Format: "json"},
		Dispatch:  defaultDispatch,
		Watch:     defaultWatch,
		Sweep:     Sweep{Interval: time.Second},
		Simulator: defaultSimulator,
	}
}
